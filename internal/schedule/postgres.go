package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

var (
	templatesRel = scoped.OwnedRelation("slot_templates")
	overridesRel = scoped.OwnedRelation("closure_overrides")
)

var templateColumns = []string{"id", "day_of_week", "start_time", "end_time", "seats", "created_at", "updated_at"}

var overrideColumns = []string{"to_char(date, 'YYYY-MM-DD')", "tier", "closed", "planned_capacity", "updated_at"}

// PostgresStore persists templates and overrides with pgx.
type PostgresStore struct {
	db  scoped.Querier
	now func() time.Time
}

// NewPostgresStore creates a store over a pool or transaction.
func NewPostgresStore(db scoped.Querier) *PostgresStore {
	if db == nil {
		panic("schedule: db required")
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) ListTemplates(ctx context.Context, scope tenancy.Scope) ([]SlotTemplate, error) {
	rows, err := scoped.Query(ctx, s.db, scoped.Select(scope, templatesRel, templateColumns...).
		OrderBy("day_of_week, start_time"))
	if err != nil {
		return nil, fmt.Errorf("schedule: list templates: %w", err)
	}
	defer rows.Close()

	var out []SlotTemplate
	for rows.Next() {
		t := SlotTemplate{TenantID: scope.TenantID()}
		if err := rows.Scan(&t.ID, &t.DayOfWeek, &t.Start, &t.End, &t.Seats, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateTemplate(ctx context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	t.TenantID = scope.TenantID()
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt

	_, err := scoped.Exec(ctx, s.db, scoped.Insert(scope, templatesRel, templateColumns,
		t.ID, t.DayOfWeek, t.Start, t.End, t.Seats, t.CreatedAt, t.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("schedule: create template: %w", err)
	}
	return &t, nil
}

// UpdateTemplate replaces the window and seats of an existing template.
// No history is kept.
func (s *PostgresStore) UpdateTemplate(ctx context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.TenantID = scope.TenantID()
	t.UpdatedAt = s.now()

	err := scoped.QueryRow(ctx, s.db, scoped.Update(scope, templatesRel).
		Set("day_of_week = ?", t.DayOfWeek).
		Set("start_time = ?", t.Start).
		Set("end_time = ?", t.End).
		Set("seats = ?", t.Seats).
		Set("updated_at = ?", t.UpdatedAt).
		Where("id = ?", t.ID).
		Returning("created_at")).Scan(&t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("schedule: update template: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) DeleteTemplate(ctx context.Context, scope tenancy.Scope, id string) error {
	tag, err := scoped.Exec(ctx, s.db, scoped.Delete(scope, templatesRel).Where("id = ?", id))
	if err != nil {
		return fmt.Errorf("schedule: delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// UpsertOverride writes the override for (date, tier), replacing any prior row.
func (s *PostgresStore) UpsertOverride(ctx context.Context, scope tenancy.Scope, o ClosureOverride) (*ClosureOverride, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.TenantID = scope.TenantID()
	o.UpdatedAt = s.now()

	_, err := scoped.Exec(ctx, s.db, scoped.Insert(scope, overridesRel,
		[]string{"date", "tier", "closed", "planned_capacity", "updated_at"},
		o.Date, string(o.Tier), o.Closed, o.PlannedCapacity, o.UpdatedAt).
		OnConflict("(tenant_id, date, tier) DO UPDATE SET closed = EXCLUDED.closed, planned_capacity = EXCLUDED.planned_capacity, updated_at = EXCLUDED.updated_at"))
	if err != nil {
		return nil, fmt.Errorf("schedule: upsert override: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, scope tenancy.Scope, date string, tier Tier) error {
	if _, err := ParseDate(date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	if _, err := scoped.Exec(ctx, s.db, scoped.Delete(scope, overridesRel).
		Where("date = ?::date", date).
		Where("tier = ?", string(tier))); err != nil {
		return fmt.Errorf("schedule: delete override: %w", err)
	}
	return nil
}

func (s *PostgresStore) OverridesInRange(ctx context.Context, scope tenancy.Scope, from, to string) ([]ClosureOverride, error) {
	rows, err := scoped.Query(ctx, s.db, scoped.Select(scope, overridesRel, overrideColumns...).
		Where("date BETWEEN ?::date AND ?::date", from, to).
		OrderBy("date, tier"))
	if err != nil {
		return nil, fmt.Errorf("schedule: list overrides: %w", err)
	}
	defer rows.Close()

	var out []ClosureOverride
	for rows.Next() {
		o := ClosureOverride{TenantID: scope.TenantID()}
		var tier string
		if err := rows.Scan(&o.Date, &tier, &o.Closed, &o.PlannedCapacity, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("schedule: scan override: %w", err)
		}
		o.Tier = Tier(tier)
		out = append(out, o)
	}
	return out, rows.Err()
}
