package tenancy

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrTenantNotFound is returned when no tenant matches an identifier.
var ErrTenantNotFound = errors.New("tenancy: tenant not found")

// Tenant is a clinic or organization that owns capacity data.
type Tenant struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Name    string   `json:"name,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// Directory resolves tenants by their public identifiers.
type Directory interface {
	ByID(ctx context.Context, id string) (*Tenant, error)
	BySlug(ctx context.Context, slug string) (*Tenant, error)
	ByDomain(ctx context.Context, domain string) (*Tenant, error)
}

// Resolve looks a tenant up by slug, falling back to its id.
func Resolve(ctx context.Context, dir Directory, ref string) (*Tenant, error) {
	ref = strings.TrimSpace(ref)
	if dir == nil || ref == "" {
		return nil, ErrTenantNotFound
	}
	t, err := dir.BySlug(ctx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}
	return dir.ByID(ctx, ref)
}

// MemoryDirectory is an in-process Directory for tests and local development.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewMemoryDirectory creates a directory seeded with tenants.
func NewMemoryDirectory(tenants ...Tenant) *MemoryDirectory {
	d := &MemoryDirectory{tenants: make(map[string]*Tenant)}
	for _, t := range tenants {
		d.Put(t)
	}
	return d
}

// Put adds or replaces a tenant.
func (d *MemoryDirectory) Put(t Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := t
	cp.Slug = strings.ToLower(strings.TrimSpace(cp.Slug))
	cp.Domains = normalizeDomains(cp.Domains)
	d.tenants[cp.ID] = &cp
}

func (d *MemoryDirectory) ByID(_ context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (d *MemoryDirectory) BySlug(_ context.Context, slug string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (d *MemoryDirectory) ByDomain(_ context.Context, domain string) (*Tenant, error) {
	domain = normalizeDomain(domain)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, t := range d.tenants {
		for _, candidate := range t.Domains {
			if candidate == domain {
				cp := *t
				return &cp, nil
			}
		}
	}
	return nil, ErrTenantNotFound
}

func normalizeDomains(domains []string) []string {
	var out []string
	for _, d := range domains {
		if n := normalizeDomain(d); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalizeDomain lower-cases a host and strips any port.
func normalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
