package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/medspa-capacity/internal/http/middleware"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders the {code, error} body every endpoint uses.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}

// requireScope fails the request with 404 when no tenant was resolved.
func requireScope(w http.ResponseWriter, r *http.Request) (tenancy.Scope, bool) {
	scope, err := tenancy.ScopeFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "TENANT_NOT_FOUND", "tenant not found")
		return tenancy.Scope{}, false
	}
	return scope, true
}

// actor names the staff member behind a request for the audit trail.
func actor(r *http.Request) string {
	claims, ok := middleware.StaffClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}
