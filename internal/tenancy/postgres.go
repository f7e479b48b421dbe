package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory resolves tenants from the tenants table.
type PostgresDirectory struct {
	db DB
}

// NewPostgresDirectory creates a directory backed by pgx.
func NewPostgresDirectory(db DB) *PostgresDirectory {
	if db == nil {
		panic("tenancy: db required")
	}
	return &PostgresDirectory{db: db}
}

const tenantColumns = `id, slug, name, domains`

func (d *PostgresDirectory) ByID(ctx context.Context, id string) (*Tenant, error) {
	return d.scanOne(ctx, "by id", `SELECT `+tenantColumns+` FROM tenants WHERE id::text = $1`, id)
}

func (d *PostgresDirectory) BySlug(ctx context.Context, slug string) (*Tenant, error) {
	return d.scanOne(ctx, "by slug", `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, strings.ToLower(strings.TrimSpace(slug)))
}

func (d *PostgresDirectory) ByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return d.scanOne(ctx, "by domain", `SELECT `+tenantColumns+` FROM tenants WHERE $1 = ANY(domains)`, normalizeDomain(domain))
}

func (d *PostgresDirectory) scanOne(ctx context.Context, op, query string, arg string) (*Tenant, error) {
	var t Tenant
	err := d.db.QueryRow(ctx, query, arg).Scan(&t.ID, &t.Slug, &t.Name, &t.Domains)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy: lookup %s: %w", op, err)
	}
	return &t, nil
}
