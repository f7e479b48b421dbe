package capacity

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medspa-capacity/internal/bookings"
	"github.com/wolfman30/medspa-capacity/internal/observability/metrics"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/settings"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

type fixture struct {
	schedules *schedule.MemoryStore
	ledger    *bookings.MemoryRepository
	settings  *settings.MemoryStore
	agg       *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		schedules: schedule.NewMemoryStore(),
		ledger:    bookings.NewMemoryRepository(nil),
		settings:  settings.NewMemoryStore(),
	}
	f.agg = NewAggregator(f.schedules, f.ledger, f.settings, metrics.NewCapacityMetrics(prometheus.NewRegistry()), nil)
	return f
}

func (f *fixture) book(t *testing.T, scope tenancy.Scope, date, clock string, tier schedule.Tier, status bookings.Status) {
	t.Helper()
	b, err := f.ledger.Admit(context.Background(), scope, bookings.Booking{
		PackageID: "pkg", Tier: tier, Date: date, Time: clock, Status: bookings.StatusRequested,
		Name: "Ada", Phone: "+15550100", EffectiveDate: date,
	}, bookings.Limits{Slot: Unlimited, Day: Unlimited, Tier: Unlimited})
	require.NoError(t, err)
	if status != bookings.StatusRequested {
		next := *b
		next.Status = status
		_, err = f.ledger.UpdateStatus(context.Background(), scope, next, bookings.StatusRequested)
		require.NoError(t, err)
	}
}

func TestForDateClosedBasicCascadesScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")

	_, err := f.schedules.CreateTemplate(ctx, scope, schedule.SlotTemplate{DayOfWeek: 1, Start: "09:00", End: "12:00", Seats: 10})
	require.NoError(t, err)
	_, err = f.schedules.UpsertOverride(ctx, scope, schedule.ClosureOverride{Date: "2025-01-06", Tier: schedule.TierBasic, Closed: true})
	require.NoError(t, err)
	_, err = f.schedules.UpsertOverride(ctx, scope, schedule.ClosureOverride{Date: "2025-01-06", Tier: schedule.TierA, Closed: false})
	require.NoError(t, err)

	snap, err := f.agg.ForDate(ctx, scope, "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, 70, snap.Cap)
	assert.Equal(t, Flags{Basic: true, TierA: true, TierB: true}, snap.Closed)
}

func TestForDateCountsOnlyActiveBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")

	f.book(t, scope, "2025-01-06", "10:00", schedule.TierBasic, bookings.StatusRequested)
	f.book(t, scope, "2025-01-06", "10:00", schedule.TierBasic, bookings.StatusReserved)
	f.book(t, scope, "2025-01-06", "10:30", schedule.TierA, bookings.StatusConfirmed)
	f.book(t, scope, "2025-01-06", "11:00", schedule.TierBasic, bookings.StatusCanceled)

	snap, err := f.agg.ForDate(ctx, scope, "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, snap.Cap)
	assert.Equal(t, 3, snap.Used)
	assert.Equal(t, 1, snap.TierUsed(schedule.TierA))
}

func TestForDateDefaultCapacitySetting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")
	require.NoError(t, f.settings.Set(ctx, scope, settings.Settings{DefaultCapacity: intPtr(1)}))

	f.book(t, scope, "2025-01-07", "10:00", schedule.TierBasic, bookings.StatusRequested)
	snap, err := f.agg.ForDate(ctx, scope, "2025-01-07")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Cap)
	assert.True(t, snap.Full.Basic)
	assert.True(t, snap.Closed.TierB)
}

type brokenSettings struct{}

func (brokenSettings) Get(context.Context, tenancy.Scope) (*settings.Settings, error) {
	return nil, errors.New("redis: connection refused")
}

func (brokenSettings) Set(context.Context, tenancy.Scope, settings.Settings) error {
	return errors.New("redis: connection refused")
}

func TestForDateSettingsOutageFallsBackToUnlimited(t *testing.T) {
	agg := NewAggregator(schedule.NewMemoryStore(), bookings.NewMemoryRepository(nil), brokenSettings{}, nil, nil)
	snap, err := agg.ForDate(context.Background(), tenancy.MustScope("clinic-a"), "2025-01-07")
	require.NoError(t, err)
	assert.Equal(t, Unlimited, snap.Cap)
}

func TestForMonthCoversEveryDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")

	_, err := f.schedules.CreateTemplate(ctx, scope, schedule.SlotTemplate{DayOfWeek: 1, Start: "09:00", End: "12:00", Seats: 10})
	require.NoError(t, err)
	_, err = f.schedules.UpsertOverride(ctx, scope, schedule.ClosureOverride{Date: "2025-02-14", Tier: schedule.TierB, Closed: true})
	require.NoError(t, err)
	f.book(t, scope, "2025-02-03", "09:00", schedule.TierBasic, bookings.StatusRequested)

	days, err := f.agg.ForMonth(ctx, scope, "2025-02")
	require.NoError(t, err)
	assert.Len(t, days, 28)
	assert.Equal(t, 70, days["2025-02-03"].Cap)
	assert.Equal(t, 1, days["2025-02-03"].Used)
	assert.Equal(t, Unlimited, days["2025-02-04"].Cap)
	assert.Equal(t, Flags{TierB: true}, days["2025-02-14"].Closed)
	assert.Equal(t, Flags{}, days["2025-02-13"].Closed)
}

func TestForRangeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")
	_, err := f.schedules.CreateTemplate(ctx, scope, schedule.SlotTemplate{DayOfWeek: 3, Start: "10:00", End: "11:00", Seats: 2})
	require.NoError(t, err)
	f.book(t, scope, "2025-01-08", "10:00", schedule.TierBasic, bookings.StatusConfirmed)

	first, err := f.agg.ForRange(ctx, scope, "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	second, err := f.agg.ForRange(ctx, scope, "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestForRangeIsolatesTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := tenancy.MustScope("clinic-a")
	b := tenancy.MustScope("clinic-b")
	_, err := f.schedules.UpsertOverride(ctx, a, schedule.ClosureOverride{Date: "2025-01-06", Tier: schedule.TierBasic, Closed: true})
	require.NoError(t, err)
	f.book(t, a, "2025-01-06", "10:00", schedule.TierBasic, bookings.StatusRequested)

	snap, err := f.agg.ForDate(ctx, b, "2025-01-06")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Used)
	assert.Equal(t, Flags{}, snap.Closed)
}

func TestForRangeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := tenancy.MustScope("clinic-a")

	_, err := f.agg.ForRange(ctx, scope, "2025-01-31", "2025-01-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.agg.ForRange(ctx, scope, "2025-02-30", "2025-03-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.agg.ForRange(ctx, scope, "2025-01-01", "2025-12-31")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.agg.ForMonth(ctx, scope, "2025-13")
	assert.ErrorIs(t, err, ErrInvalidMonth)
	_, err = f.agg.ForDate(ctx, tenancy.Scope{}, "2025-01-01")
	assert.ErrorIs(t, err, tenancy.ErrNoTenant)
}

func TestMonthBounds(t *testing.T) {
	from, to, err := MonthBounds("2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", from)
	assert.Equal(t, "2024-02-29", to)
}
