// Package scoped constrains tenant-owned storage to a single tenant. Every
// read is filtered by the tenant in scope and every write is stamped with it,
// so callers cannot observe another tenant's rows by forgetting a filter.
package scoped

import (
	"errors"
	"sync"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

var (
	// ErrNotFound is returned when a key does not exist within the scope.
	ErrNotFound = errors.New("scoped: not found")
	// ErrForeignTenant is returned when a write names a tenant outside the scope.
	ErrForeignTenant = errors.New("scoped: row belongs to another tenant")
)

// Owned is implemented by tenant-owned rows.
type Owned interface {
	OwnerID() string
	SetOwnerID(tenantID string)
}

// Table is an in-memory tenant-scoped collection keyed by string. T is
// normally a pointer type; rows are cloned on the way in and out so callers
// never alias stored state.
type Table[T Owned] struct {
	mu    sync.RWMutex
	rows  map[string]T
	key   func(T) string
	clone func(T) T
}

// NewTable builds an empty table. key derives each row's primary key and
// clone copies a row.
func NewTable[T Owned](key func(T) string, clone func(T) T) *Table[T] {
	if clone == nil {
		clone = func(row T) T { return row }
	}
	return &Table[T]{rows: make(map[string]T), key: key, clone: clone}
}

// Find returns rows of the scoped tenant that satisfy match (nil matches all).
func (t *Table[T]) Find(scope tenancy.Scope, match func(T) bool) ([]T, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []T
	for _, row := range t.rows {
		if !scope.Owns(row.OwnerID()) {
			continue
		}
		if match == nil || match(row) {
			out = append(out, t.clone(row))
		}
	}
	return out, nil
}

// Count returns how many scoped rows satisfy match.
func (t *Table[T]) Count(scope tenancy.Scope, match func(T) bool) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.countLocked(scope, match), nil
}

func (t *Table[T]) countLocked(scope tenancy.Scope, match func(T) bool) int {
	n := 0
	for _, row := range t.rows {
		if scope.Owns(row.OwnerID()) && (match == nil || match(row)) {
			n++
		}
	}
	return n
}

// Create stamps the scoped tenant on row (when unset) and stores it,
// replacing any row with the same key owned by the same tenant.
func (t *Table[T]) Create(scope tenancy.Scope, row T) (T, error) {
	var zero T
	if err := scope.Check(); err != nil {
		return zero, err
	}
	row = t.clone(row)
	if err := stamp(scope, row); err != nil {
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.putLocked(scope, row)
}

func (t *Table[T]) putLocked(scope tenancy.Scope, row T) (T, error) {
	var zero T
	k := t.key(row)
	if existing, ok := t.rows[k]; ok && !scope.Owns(existing.OwnerID()) {
		return zero, ErrForeignTenant
	}
	t.rows[k] = row
	return t.clone(row), nil
}

// Update applies fn to the scoped row with key and stores the result.
func (t *Table[T]) Update(scope tenancy.Scope, key string, fn func(T) (T, error)) (T, error) {
	var zero T
	if err := scope.Check(); err != nil {
		return zero, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.rows[key]
	if !ok || !scope.Owns(row.OwnerID()) {
		return zero, ErrNotFound
	}
	updated, err := fn(t.clone(row))
	if err != nil {
		return zero, err
	}
	if updated.OwnerID() != row.OwnerID() {
		return zero, ErrForeignTenant
	}
	t.rows[key] = t.clone(updated)
	return updated, nil
}

// Delete removes scoped rows that satisfy match and reports how many went.
func (t *Table[T]) Delete(scope tenancy.Scope, match func(T) bool) (int, error) {
	if err := scope.Check(); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, row := range t.rows {
		if scope.Owns(row.OwnerID()) && (match == nil || match(row)) {
			delete(t.rows, k)
			n++
		}
	}
	return n, nil
}

// Get is an unscoped primary-key lookup. The key carries no tenant, so
// callers must verify ownership with Scope.Owns before using the row.
func (t *Table[T]) Get(key string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.clone(row), true
}

// Guarded runs fn while holding the table's write lock. fn receives a
// transaction view whose reads and writes are scoped like the table's own
// methods, making check-then-insert sequences atomic.
func (t *Table[T]) Guarded(scope tenancy.Scope, fn func(tx *TableTx[T]) error) error {
	if err := scope.Check(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(&TableTx[T]{table: t, scope: scope})
}

// TableTx is the view handed to Guarded callbacks.
type TableTx[T Owned] struct {
	table *Table[T]
	scope tenancy.Scope
}

// Count counts scoped rows under the held lock.
func (tx *TableTx[T]) Count(match func(T) bool) int {
	return tx.table.countLocked(tx.scope, match)
}

// Find lists scoped rows under the held lock.
func (tx *TableTx[T]) Find(match func(T) bool) []T {
	var out []T
	for _, row := range tx.table.rows {
		if tx.scope.Owns(row.OwnerID()) && (match == nil || match(row)) {
			out = append(out, tx.table.clone(row))
		}
	}
	return out
}

// Create stamps and stores row under the held lock.
func (tx *TableTx[T]) Create(row T) (T, error) {
	var zero T
	row = tx.table.clone(row)
	if err := stamp(tx.scope, row); err != nil {
		return zero, err
	}
	return tx.table.putLocked(tx.scope, row)
}

func stamp[T Owned](scope tenancy.Scope, row T) error {
	switch owner := row.OwnerID(); {
	case owner == "":
		row.SetOwnerID(scope.TenantID())
	case !scope.Owns(owner):
		return ErrForeignTenant
	}
	return nil
}
