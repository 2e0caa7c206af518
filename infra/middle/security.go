package middle

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/response"
)

// MaxBodyBytes bounds every request body the API accepts
const MaxBodyBytes = 1 << 20

// SecurityHeadersMiddleware adds security headers to responses
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Referrer-Policy", "no-referrer")

			next.ServeHTTP(w, r)
		})
	}
}

// WebhookAllowlistMiddleware restricts callback sources per gateway. The
// gateway comes from the {gateway} route parameter; gateways without a list
// accept any source. Entries are single addresses or CIDR prefixes.
func WebhookAllowlistMiddleware(allowlists map[string][]string) func(http.Handler) http.Handler {
	prefixes := make(map[string][]netip.Prefix, len(allowlists))
	for gateway, entries := range allowlists {
		for _, entry := range entries {
			if prefix, ok := parseAllowEntry(entry); ok {
				key := strings.ToLower(gateway)
				prefixes[key] = append(prefixes[key], prefix)
			} else {
				logger.Warn("ignoring invalid webhook allowlist entry", logger.LogContext{
					Gateway: gateway,
					Fields:  map[string]any{"entry": entry},
				})
			}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gateway := strings.ToLower(chi.URLParam(r, "gateway"))
			allowed, restricted := prefixes[gateway]
			if !restricted {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := GetClientIP(r)
			addr, err := netip.ParseAddr(clientIP)
			if err == nil {
				addr = addr.Unmap()
				for _, prefix := range allowed {
					if prefix.Contains(addr) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("webhook source not allowed", logger.LogContext{
				Gateway:   gateway,
				RequestID: GetRequestIDFromContext(r.Context()),
				Fields:    map[string]any{"client_ip": clientIP},
			})
			response.Error(w, http.StatusForbidden, "Source not allowed", nil)
		})
	}
}

func parseAllowEntry(entry string) (netip.Prefix, bool) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, false
		}
		return prefix.Masked(), true
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), true
}

// RequestValidationMiddleware validates common request properties
func RequestValidationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > MaxBodyBytes {
				response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
				return
			}

			if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
				contentType := r.Header.Get("Content-Type")

				// gateways post JSON or forms
				isWebhook := strings.HasPrefix(r.URL.Path, "/webhooks")

				switch {
				case isWebhook:
					if contentType != "" &&
						!strings.Contains(contentType, "application/json") &&
						!strings.Contains(contentType, "application/x-www-form-urlencoded") {
						response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/x-www-form-urlencoded", nil)
						return
					}
				case contentType == "":
					if r.ContentLength != 0 {
						response.Error(w, http.StatusBadRequest, "Content-Type header is required", nil)
						return
					}
				case !strings.Contains(contentType, "application/json"):
					response.Error(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
					return
				}
			}

			r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}
