package scoped

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// ErrTenantColumn is returned when a caller tries to write the tenant column itself.
var ErrTenantColumn = errors.New("scoped: tenant column is injected, not supplied")

const defaultTenantColumn = "tenant_id"

// Relation names a table and whether its rows are tenant-owned.
type Relation struct {
	Name         string
	TenantColumn string
	owned        bool
}

// OwnedRelation declares a tenant-owned table keyed by tenant_id.
func OwnedRelation(name string) Relation {
	return Relation{Name: name, TenantColumn: defaultTenantColumn, owned: true}
}

// SharedRelation declares a table whose rows belong to no tenant.
func SharedRelation(name string) Relation {
	return Relation{Name: name}
}

// Owned reports whether the relation is tenant-owned.
func (r Relation) Owned() bool { return r.owned }

type clause struct {
	expr string
	args []any
}

// paramWriter renumbers ? placeholders into pgx $n parameters.
type paramWriter struct {
	sb   strings.Builder
	args []any
}

func (w *paramWriter) write(expr string, args ...any) error {
	used := 0
	for i := 0; i < len(expr); i++ {
		if expr[i] != '?' {
			w.sb.WriteByte(expr[i])
			continue
		}
		if used >= len(args) {
			return fmt.Errorf("scoped: %q has more placeholders than args", expr)
		}
		w.args = append(w.args, args[used])
		used++
		w.sb.WriteByte('$')
		w.sb.WriteString(strconv.Itoa(len(w.args)))
	}
	if used != len(args) {
		return fmt.Errorf("scoped: %q has %d placeholders for %d args", expr, used, len(args))
	}
	return nil
}

func (w *paramWriter) raw(s string) { w.sb.WriteString(s) }

// writeWhere emits the WHERE clause, always leading with the tenant predicate
// for owned relations.
func writeWhere(w *paramWriter, rel Relation, scope tenancy.Scope, conds []clause) error {
	var all []clause
	if rel.owned {
		all = append(all, clause{expr: rel.TenantColumn + " = ?", args: []any{scope.TenantID()}})
	}
	all = append(all, conds...)
	for i, c := range all {
		if i == 0 {
			w.raw(" WHERE ")
		} else {
			w.raw(" AND ")
		}
		if i > 0 || !rel.owned {
			w.raw("(")
		}
		if err := w.write(c.expr, c.args...); err != nil {
			return err
		}
		if i > 0 || !rel.owned {
			w.raw(")")
		}
	}
	return nil
}

func checkScope(rel Relation, scope tenancy.Scope) error {
	if rel.owned {
		return scope.Check()
	}
	return nil
}

// SelectQuery builds a SELECT against one relation.
type SelectQuery struct {
	rel       Relation
	scope     tenancy.Scope
	cols      []string
	conds     []clause
	groupBy   []string
	orderBy   string
	limit     int
	forUpdate bool
}

// Select starts a tenant-scoped SELECT.
func Select(scope tenancy.Scope, rel Relation, cols ...string) *SelectQuery {
	return &SelectQuery{rel: rel, scope: scope, cols: cols}
}

// Where adds a predicate; ? placeholders bind args in order.
func (q *SelectQuery) Where(expr string, args ...any) *SelectQuery {
	q.conds = append(q.conds, clause{expr: expr, args: args})
	return q
}

func (q *SelectQuery) GroupBy(cols ...string) *SelectQuery {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

func (q *SelectQuery) OrderBy(expr string) *SelectQuery {
	q.orderBy = expr
	return q
}

func (q *SelectQuery) Limit(n int) *SelectQuery {
	q.limit = n
	return q
}

// ForUpdate locks the selected rows for the enclosing transaction.
func (q *SelectQuery) ForUpdate() *SelectQuery {
	q.forUpdate = true
	return q
}

// Build renders the statement and its args.
func (q *SelectQuery) Build() (string, []any, error) {
	if err := checkScope(q.rel, q.scope); err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.cols) > 0 {
		cols = strings.Join(q.cols, ", ")
	}
	w := &paramWriter{}
	w.raw("SELECT " + cols + " FROM " + q.rel.Name)
	if err := writeWhere(w, q.rel, q.scope, q.conds); err != nil {
		return "", nil, err
	}
	if len(q.groupBy) > 0 {
		w.raw(" GROUP BY " + strings.Join(q.groupBy, ", "))
	}
	if q.orderBy != "" {
		w.raw(" ORDER BY " + q.orderBy)
	}
	if q.limit > 0 {
		w.raw(" LIMIT " + strconv.Itoa(q.limit))
	}
	if q.forUpdate {
		w.raw(" FOR UPDATE")
	}
	return w.sb.String(), w.args, nil
}

// InsertQuery builds an INSERT that stamps the scoped tenant.
type InsertQuery struct {
	rel        Relation
	scope      tenancy.Scope
	cols       []string
	vals       []any
	onConflict *clause
	returning  []string
}

// Insert starts an INSERT; the tenant column and value are prepended for
// owned relations and must not appear in cols.
func Insert(scope tenancy.Scope, rel Relation, cols []string, vals ...any) *InsertQuery {
	return &InsertQuery{rel: rel, scope: scope, cols: cols, vals: vals}
}

// OnConflict appends an ON CONFLICT clause, e.g. "(a, b) DO UPDATE SET c = EXCLUDED.c".
func (q *InsertQuery) OnConflict(expr string, args ...any) *InsertQuery {
	q.onConflict = &clause{expr: expr, args: args}
	return q
}

func (q *InsertQuery) Returning(cols ...string) *InsertQuery {
	q.returning = cols
	return q
}

func (q *InsertQuery) Build() (string, []any, error) {
	if err := checkScope(q.rel, q.scope); err != nil {
		return "", nil, err
	}
	if len(q.cols) != len(q.vals) {
		return "", nil, fmt.Errorf("scoped: insert into %s has %d columns for %d values", q.rel.Name, len(q.cols), len(q.vals))
	}
	cols := q.cols
	vals := q.vals
	if q.rel.owned {
		for _, c := range cols {
			if c == q.rel.TenantColumn {
				return "", nil, ErrTenantColumn
			}
		}
		cols = append([]string{q.rel.TenantColumn}, cols...)
		vals = append([]any{q.scope.TenantID()}, vals...)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")

	w := &paramWriter{}
	w.raw("INSERT INTO " + q.rel.Name + " (" + strings.Join(cols, ", ") + ") VALUES (")
	if err := w.write(marks, vals...); err != nil {
		return "", nil, err
	}
	w.raw(")")
	if q.onConflict != nil {
		w.raw(" ON CONFLICT ")
		if err := w.write(q.onConflict.expr, q.onConflict.args...); err != nil {
			return "", nil, err
		}
	}
	if len(q.returning) > 0 {
		w.raw(" RETURNING " + strings.Join(q.returning, ", "))
	}
	return w.sb.String(), w.args, nil
}

// UpdateQuery builds an UPDATE limited to the scoped tenant's rows.
type UpdateQuery struct {
	rel       Relation
	scope     tenancy.Scope
	sets      []clause
	conds     []clause
	returning []string
}

func Update(scope tenancy.Scope, rel Relation) *UpdateQuery {
	return &UpdateQuery{rel: rel, scope: scope}
}

// Set adds an assignment such as "status = ?".
func (q *UpdateQuery) Set(expr string, args ...any) *UpdateQuery {
	q.sets = append(q.sets, clause{expr: expr, args: args})
	return q
}

func (q *UpdateQuery) Where(expr string, args ...any) *UpdateQuery {
	q.conds = append(q.conds, clause{expr: expr, args: args})
	return q
}

func (q *UpdateQuery) Returning(cols ...string) *UpdateQuery {
	q.returning = cols
	return q
}

func (q *UpdateQuery) Build() (string, []any, error) {
	if err := checkScope(q.rel, q.scope); err != nil {
		return "", nil, err
	}
	if len(q.sets) == 0 {
		return "", nil, fmt.Errorf("scoped: update %s without assignments", q.rel.Name)
	}
	w := &paramWriter{}
	w.raw("UPDATE " + q.rel.Name + " SET ")
	for i, s := range q.sets {
		if i > 0 {
			w.raw(", ")
		}
		if q.rel.owned && strings.HasPrefix(strings.TrimSpace(s.expr), q.rel.TenantColumn+" ") {
			return "", nil, ErrTenantColumn
		}
		if err := w.write(s.expr, s.args...); err != nil {
			return "", nil, err
		}
	}
	if err := writeWhere(w, q.rel, q.scope, q.conds); err != nil {
		return "", nil, err
	}
	if len(q.returning) > 0 {
		w.raw(" RETURNING " + strings.Join(q.returning, ", "))
	}
	return w.sb.String(), w.args, nil
}

// DeleteQuery builds a DELETE limited to the scoped tenant's rows.
type DeleteQuery struct {
	rel   Relation
	scope tenancy.Scope
	conds []clause
}

func Delete(scope tenancy.Scope, rel Relation) *DeleteQuery {
	return &DeleteQuery{rel: rel, scope: scope}
}

func (q *DeleteQuery) Where(expr string, args ...any) *DeleteQuery {
	q.conds = append(q.conds, clause{expr: expr, args: args})
	return q
}

func (q *DeleteQuery) Build() (string, []any, error) {
	if err := checkScope(q.rel, q.scope); err != nil {
		return "", nil, err
	}
	if !q.rel.owned && len(q.conds) == 0 {
		return "", nil, fmt.Errorf("scoped: unconditional delete from %s", q.rel.Name)
	}
	w := &paramWriter{}
	w.raw("DELETE FROM " + q.rel.Name)
	if err := writeWhere(w, q.rel, q.scope, q.conds); err != nil {
		return "", nil, err
	}
	return w.sb.String(), w.args, nil
}
