package tenancy

import "strings"

// Scope pins storage operations to exactly one tenant. The zero value is not
// a valid scope and is rejected by every scoped store.
type Scope struct {
	tenantID string
}

// NewScope builds a scope for tenantID.
func NewScope(tenantID string) (Scope, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Scope{}, ErrNoTenant
	}
	return Scope{tenantID: tenantID}, nil
}

// MustScope is NewScope for fixtures and wiring code; it panics on an empty id.
func MustScope(tenantID string) Scope {
	s, err := NewScope(tenantID)
	if err != nil {
		panic(err)
	}
	return s
}

// TenantID returns the scoped tenant id.
func (s Scope) TenantID() string { return s.tenantID }

// Valid reports whether the scope names a tenant.
func (s Scope) Valid() bool { return s.tenantID != "" }

// Owns reports whether a row stamped with tenantID belongs to this scope.
// Key lookups that cannot filter by tenant must check it after the fetch.
func (s Scope) Owns(tenantID string) bool {
	return s.Valid() && s.tenantID == tenantID
}

// Check returns ErrNoTenant for an invalid scope.
func (s Scope) Check() error {
	if !s.Valid() {
		return ErrNoTenant
	}
	return nil
}
