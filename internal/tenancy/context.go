// Package tenancy carries the current tenant through a request and resolves
// tenants from their public identifiers.
package tenancy

import (
	"context"
	"errors"
)

type ctxKey string

const tenantKey ctxKey = "medspa.tenant_id"

// ErrNoTenant is returned when an operation needs a tenant and none is in scope.
var ErrNoTenant = errors.New("tenancy: no tenant in scope")

// WithTenantID stores the tenant id in context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// TenantIDFromContext extracts the tenant id if present.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	val := ctx.Value(tenantKey)
	if val == nil {
		return "", false
	}
	tenantID, ok := val.(string)
	return tenantID, ok && tenantID != ""
}

// ScopeFromContext returns the tenant scope of the current request or
// ErrNoTenant. Callers must not fall back to another tenant.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	tenantID, ok := TenantIDFromContext(ctx)
	if !ok {
		return Scope{}, ErrNoTenant
	}
	return Scope{tenantID: tenantID}, nil
}
