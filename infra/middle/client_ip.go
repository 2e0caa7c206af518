package middle

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the host part of the request's remote address. Proxy
// headers are honoured only after chi's RealIP middleware has rewritten
// RemoteAddr, which the router enables when TRUST_PROXY is set.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
