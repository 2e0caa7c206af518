package middle

import (
	"context"
	"net/http"
	"regexp"

	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/infra/response"
)

const TenantHeader = "X-Tenant-ID"

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// TenantMiddleware requires an X-Tenant-ID header and stores the academy id
// in the request context
func TenantMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get(TenantHeader)
			if tenantID == "" {
				response.Error(w, http.StatusBadRequest, "X-Tenant-ID header required", nil)
				return
			}
			if !tenantPattern.MatchString(tenantID) {
				response.Error(w, http.StatusBadRequest, "Invalid X-Tenant-ID header", nil)
				return
			}

			ctx := context.WithValue(r.Context(), config.TenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantIDFromContext returns the tenant stored by TenantMiddleware
func GetTenantIDFromContext(ctx context.Context) string {
	if tenantID, ok := ctx.Value(config.TenantIDKey).(string); ok {
		return tenantID
	}
	return ""
}
