package middleware

import (
	"net/http"
	"sort"
	"strings"
)

// CORSOptions configures CORS. Methods should be the methods the router
// actually serves; OPTIONS is always added.
type CORSOptions struct {
	Origins []string
	Methods []string
}

// CORS provides an allowlist-based CORS middleware.
// If Origins contains "*", any Origin is echoed back. Preflights asking for
// a method no route serves are answered 405 without CORS headers.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range opts.Origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAny = true
			continue
		}
		allow[origin] = struct{}{}
	}

	methods := map[string]struct{}{http.MethodOptions: {}}
	for _, m := range opts.Methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods[m] = struct{}{}
		}
	}
	allowedMethods := joinSorted(methods)
	allowedHeaders := "Authorization, Content-Type, X-Request-ID"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			allowed := origin != "" && (allowAny || isAllowedOrigin(allow, origin))
			requested := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
			preflight := r.Method == http.MethodOptions && origin != "" && requested != ""

			if preflight {
				if _, ok := methods[requested]; !ok {
					w.Header().Set("Allow", allowedMethods)
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Expose-Headers", "Retry-After, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAllowedOrigin(allow map[string]struct{}, origin string) bool {
	_, ok := allow[origin]
	return ok
}

func joinSorted(set map[string]struct{}) string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
