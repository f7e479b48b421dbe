package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

// Store persists slot templates and closure overrides. Every method is
// pinned to the tenant named by scope.
type Store interface {
	ListTemplates(ctx context.Context, scope tenancy.Scope) ([]SlotTemplate, error)
	CreateTemplate(ctx context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error)
	UpdateTemplate(ctx context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error)
	DeleteTemplate(ctx context.Context, scope tenancy.Scope, id string) error

	UpsertOverride(ctx context.Context, scope tenancy.Scope, o ClosureOverride) (*ClosureOverride, error)
	DeleteOverride(ctx context.Context, scope tenancy.Scope, date string, tier Tier) error
	// OverridesInRange returns every override dated within [from, to].
	OverridesInRange(ctx context.Context, scope tenancy.Scope, from, to string) ([]ClosureOverride, error)
}

// ListTemplatesForWeekday returns the tenant's templates that apply to wd.
func ListTemplatesForWeekday(ctx context.Context, s Store, scope tenancy.Scope, wd time.Weekday) ([]SlotTemplate, error) {
	all, err := s.ListTemplates(ctx, scope)
	if err != nil {
		return nil, err
	}
	return TemplatesForWeekday(all, wd), nil
}

// OverridesForDate returns the overrides stored for a single date.
func OverridesForDate(ctx context.Context, s Store, scope tenancy.Scope, date string) ([]ClosureOverride, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	return s.OverridesInRange(ctx, scope, date, date)
}

// MemoryStore is an in-process Store backed by scoped tables.
type MemoryStore struct {
	templates *scoped.Table[*SlotTemplate]
	overrides *scoped.Table[*ClosureOverride]
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: scoped.NewTable(
			func(t *SlotTemplate) string { return t.ID },
			func(t *SlotTemplate) *SlotTemplate { cp := *t; return &cp },
		),
		overrides: scoped.NewTable(
			func(o *ClosureOverride) string { return o.key() },
			func(o *ClosureOverride) *ClosureOverride {
				cp := *o
				if o.PlannedCapacity != nil {
					v := *o.PlannedCapacity
					cp.PlannedCapacity = &v
				}
				return &cp
			},
		),
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) ListTemplates(_ context.Context, scope tenancy.Scope) ([]SlotTemplate, error) {
	rows, err := m.templates.Find(scope, nil)
	if err != nil {
		return nil, err
	}
	out := make([]SlotTemplate, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	SortTemplates(out)
	return out, nil
}

func (m *MemoryStore) CreateTemplate(_ context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	t.TenantID = ""
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	return m.templates.Create(scope, &t)
}

func (m *MemoryStore) UpdateTemplate(_ context.Context, scope tenancy.Scope, t SlotTemplate) (*SlotTemplate, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	updated, err := m.templates.Update(scope, t.ID, func(cur *SlotTemplate) (*SlotTemplate, error) {
		cur.DayOfWeek = t.DayOfWeek
		cur.Start = t.Start
		cur.End = t.End
		cur.Seats = t.Seats
		cur.UpdatedAt = m.now()
		return cur, nil
	})
	if errors.Is(err, scoped.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	return updated, err
}

func (m *MemoryStore) DeleteTemplate(_ context.Context, scope tenancy.Scope, id string) error {
	n, err := m.templates.Delete(scope, func(t *SlotTemplate) bool { return t.ID == id })
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (m *MemoryStore) UpsertOverride(_ context.Context, scope tenancy.Scope, o ClosureOverride) (*ClosureOverride, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.TenantID = scope.TenantID()
	o.UpdatedAt = m.now()
	return m.overrides.Create(scope, &o)
}

func (m *MemoryStore) DeleteOverride(_ context.Context, scope tenancy.Scope, date string, tier Tier) error {
	if _, err := ParseDate(date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	_, err := m.overrides.Delete(scope, func(o *ClosureOverride) bool {
		return o.Date == date && o.Tier == tier
	})
	return err
}

func (m *MemoryStore) OverridesInRange(_ context.Context, scope tenancy.Scope, from, to string) ([]ClosureOverride, error) {
	rows, err := m.overrides.Find(scope, func(o *ClosureOverride) bool {
		return o.Date >= from && o.Date <= to
	})
	if err != nil {
		return nil, err
	}
	out := make([]ClosureOverride, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}

// SortTemplates orders templates by weekday then start time.
func SortTemplates(ts []SlotTemplate) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].DayOfWeek != ts[j].DayOfWeek {
			return ts[i].DayOfWeek < ts[j].DayOfWeek
		}
		return ts[i].Start < ts[j].Start
	})
}
