package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

type tenantLookup func(r *http.Request) (*tenancy.Tenant, error)

func bySlugParam(dir tenancy.Directory) tenantLookup {
	return func(r *http.Request) (*tenancy.Tenant, error) {
		return tenancy.Resolve(r.Context(), dir, chi.URLParam(r, "tenant"))
	}
}

func byHost(dir tenancy.Directory) tenantLookup {
	return func(r *http.Request) (*tenancy.Tenant, error) {
		if dir == nil {
			return nil, tenancy.ErrTenantNotFound
		}
		return dir.ByDomain(r.Context(), r.Host)
	}
}

// resolveTenant enters the tenant scope for the rest of the request. An
// unknown tenant is a 404 unless lenient, in which case the request goes on
// without a scope and the handler decides how to degrade.
func resolveTenant(lookup tenantLookup, logger *logging.Logger, lenient bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := lookup(r)
			if err != nil {
				if !errors.Is(err, tenancy.ErrTenantNotFound) {
					logger.Error("tenant lookup failed", "path", r.URL.Path, "error", err)
				}
				if lenient {
					next.ServeHTTP(w, r)
					return
				}
				if errors.Is(err, tenancy.ErrTenantNotFound) {
					writeError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found")
				} else {
					writeError(w, http.StatusInternalServerError, "INTERNAL", "tenant lookup failed")
				}
				return
			}
			ctx := tenancy.WithTenantID(r.Context(), tenant.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}
