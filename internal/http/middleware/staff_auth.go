package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

type contextKey string

const staffClaimsKey contextKey = "staffClaims"

var errNoBearer = errors.New("missing authorization header")

// StaffClaims identify a clinic staff member. An empty TenantID is a
// platform operator allowed on every tenant.
type StaffClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// StaffJWT requires an HMAC-signed staff token bound to the request's tenant.
func StaffJWT(secret string) func(http.Handler) http.Handler {
	return staffAuth(secret, true)
}

// OptionalStaffJWT attaches staff claims when a token is sent and lets
// anonymous requests through. A token that is sent but invalid is rejected.
func OptionalStaffJWT(secret string) func(http.Handler) http.Handler {
	return staffAuth(secret, false)
}

func staffAuth(secret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseStaffToken(r, secret)
			if errors.Is(err, errNoBearer) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			if claims.TenantID != "" {
				if tenantID, ok := tenancy.TenantIDFromContext(r.Context()); ok && tenantID != claims.TenantID {
					writeError(w, http.StatusForbidden, "FORBIDDEN", "token is not valid for this tenant")
					return
				}
			}
			ctx := context.WithValue(r.Context(), staffClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseStaffToken(r *http.Request, secret string) (*StaffClaims, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return nil, errNoBearer
	}
	if secret == "" {
		return nil, errors.New("staff auth disabled")
	}
	claims := &StaffClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// StaffClaimsFromContext returns staff JWT claims if present.
func StaffClaimsFromContext(ctx context.Context) (StaffClaims, bool) {
	claims, ok := ctx.Value(staffClaimsKey).(StaffClaims)
	return claims, ok
}

// IsStaff reports whether the request carried a valid staff token.
func IsStaff(ctx context.Context) bool {
	_, ok := StaffClaimsFromContext(ctx)
	return ok
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "error": msg})
}
