// Package catalog looks up the bookable packages a tenant offers. Packages
// are reference data managed outside this service; admission only needs to
// know that one exists, is visible and which tier it books against.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// ErrPackageNotFound covers missing, foreign and hidden packages alike.
var ErrPackageNotFound = errors.New("catalog: package not found")

// Package is a bookable service.
type Package struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenantId"`
	Name     string        `json:"name"`
	Visible  bool          `json:"visible"`
	Tier     schedule.Tier `json:"tier"`
}

// Catalog resolves packages for a tenant.
type Catalog interface {
	Lookup(ctx context.Context, scope tenancy.Scope, id string) (*Package, error)
}

// checkOwned applies the rules shared by every catalog: the row must belong
// to the scope and be visible. Primary-key lookups carry no tenant filter,
// so ownership is verified here after the fetch.
func checkOwned(scope tenancy.Scope, p *Package) (*Package, error) {
	if p == nil || !scope.Owns(p.TenantID) || !p.Visible {
		return nil, ErrPackageNotFound
	}
	if p.Tier == "" {
		p.Tier = schedule.TierBasic
	}
	return p, nil
}

// MemoryCatalog is an in-process Catalog.
type MemoryCatalog struct {
	mu       sync.RWMutex
	packages map[string]Package
}

func NewMemoryCatalog(pkgs ...Package) *MemoryCatalog {
	c := &MemoryCatalog{packages: make(map[string]Package)}
	for _, p := range pkgs {
		c.Put(p)
	}
	return c
}

// Put adds or replaces a package.
func (c *MemoryCatalog) Put(p Package) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packages[p.ID] = p
}

func (c *MemoryCatalog) Lookup(_ context.Context, scope tenancy.Scope, id string) (*Package, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	p, ok := c.packages[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrPackageNotFound
	}
	return checkOwned(scope, &p)
}

// PostgresCatalog reads the packages table.
type PostgresCatalog struct {
	db scoped.Querier
}

func NewPostgresCatalog(db scoped.Querier) *PostgresCatalog {
	if db == nil {
		panic("catalog: db required")
	}
	return &PostgresCatalog{db: db}
}

// Lookup fetches by primary key alone and then re-verifies ownership, so a
// package id guessed from another tenant is reported as not found.
func (c *PostgresCatalog) Lookup(ctx context.Context, scope tenancy.Scope, id string) (*Package, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	var p Package
	var tier string
	err := c.db.QueryRow(ctx,
		`SELECT id::text, tenant_id, name, visible, tier FROM packages WHERE id::text = $1`, id).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Visible, &tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: lookup package: %w", err)
	}
	p.Tier = schedule.Tier(tier)
	return checkOwned(scope, &p)
}
