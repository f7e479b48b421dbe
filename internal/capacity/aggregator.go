package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-capacity/internal/bookings"
	"github.com/wolfman30/medspa-capacity/internal/observability/metrics"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/settings"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// MaxRangeDays bounds a single range read.
const MaxRangeDays = 92

var (
	ErrInvalidRange = errors.New("capacity: invalid date range")
	ErrInvalidMonth = errors.New("capacity: invalid month")
)

var capacityTracer = otel.Tracer("medspa.internal.capacity")

// Counter is the slice of the booking ledger the aggregator reads.
type Counter interface {
	CountActive(ctx context.Context, scope tenancy.Scope, from, to string) ([]bookings.DayCount, error)
}

// Aggregator combines templates, overrides and booking counts into snapshots.
type Aggregator struct {
	schedules schedule.Store
	ledger    Counter
	settings  settings.Store
	metrics   *metrics.CapacityMetrics
	logger    *logging.Logger
}

// NewAggregator wires an aggregator. settings and m may be nil.
func NewAggregator(schedules schedule.Store, ledger Counter, prefs settings.Store, m *metrics.CapacityMetrics, logger *logging.Logger) *Aggregator {
	if schedules == nil || ledger == nil {
		panic("capacity: schedule store and ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Aggregator{schedules: schedules, ledger: ledger, settings: prefs, metrics: m, logger: logger}
}

// ForDate returns the snapshot of a single date.
func (a *Aggregator) ForDate(ctx context.Context, scope tenancy.Scope, date string) (Snapshot, error) {
	ctx, span := capacityTracer.Start(ctx, "capacity.for_date")
	defer span.End()
	span.SetAttributes(attribute.String("medspa.tenant_id", scope.TenantID()), attribute.String("medspa.date", date))

	days, err := a.compute(ctx, scope, date, date)
	if err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}
	a.metrics.ObserveSnapshot("day", 1)
	return days[date], nil
}

// ForRange returns snapshots for every date in [from, to]. Overrides and
// booking counts are each read with a single query for the whole range.
func (a *Aggregator) ForRange(ctx context.Context, scope tenancy.Scope, from, to string) (map[string]Snapshot, error) {
	ctx, span := capacityTracer.Start(ctx, "capacity.for_range")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.tenant_id", scope.TenantID()),
		attribute.String("medspa.from", from),
		attribute.String("medspa.to", to),
	)

	days, err := a.compute(ctx, scope, from, to)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	a.metrics.ObserveSnapshot("range", len(days))
	return days, nil
}

// ForMonth returns snapshots for every day of month ("YYYY-MM").
func (a *Aggregator) ForMonth(ctx context.Context, scope tenancy.Scope, month string) (map[string]Snapshot, error) {
	from, to, err := MonthBounds(month)
	if err != nil {
		return nil, err
	}
	return a.ForRange(ctx, scope, from, to)
}

// MonthBounds returns the first and last calendar dates of "YYYY-MM".
func MonthBounds(month string) (string, string, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	end := start.AddDate(0, 1, -1)
	return start.Format(schedule.DateLayout), end.Format(schedule.DateLayout), nil
}

func (a *Aggregator) compute(ctx context.Context, scope tenancy.Scope, from, to string) (map[string]Snapshot, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	start, err := schedule.ParseDate(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	end, err := schedule.ParseDate(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}
	if int(end.Sub(start).Hours()/24)+1 > MaxRangeDays {
		return nil, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxRangeDays)
	}

	templates, err := a.schedules.ListTemplates(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("capacity: list templates: %w", err)
	}
	overrides, err := a.schedules.OverridesInRange(ctx, scope, from, to)
	if err != nil {
		return nil, fmt.Errorf("capacity: list overrides: %w", err)
	}
	counts, err := a.ledger.CountActive(ctx, scope, from, to)
	if err != nil {
		return nil, fmt.Errorf("capacity: count bookings: %w", err)
	}
	defaultCap := a.defaultCapacity(ctx, scope)

	overridesByDate := make(map[string][]schedule.ClosureOverride)
	for _, o := range overrides {
		overridesByDate[o.Date] = append(overridesByDate[o.Date], o)
	}
	countsByDate := make(map[string]map[schedule.Tier]int)
	for _, c := range counts {
		if countsByDate[c.Date] == nil {
			countsByDate[c.Date] = make(map[schedule.Tier]int)
		}
		countsByDate[c.Date][c.Tier] += c.Count
	}

	out := make(map[string]Snapshot)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(schedule.DateLayout)
		out[date] = Derive(Inputs{
			Templates:       schedule.TemplatesForWeekday(templates, d.Weekday()),
			DefaultCapacity: defaultCap,
			Overrides:       overridesByDate[date],
			Counts:          countsByDate[date],
		})
	}
	return out, nil
}

// defaultCapacity reads the tenant's configured fallback. An unreachable
// settings store degrades to no default rather than failing the read.
func (a *Aggregator) defaultCapacity(ctx context.Context, scope tenancy.Scope) *int {
	if a.settings == nil {
		return nil
	}
	s, err := a.settings.Get(ctx, scope)
	if err != nil {
		a.logger.Warn("capacity settings unavailable", "tenant_id", scope.TenantID(), "error", err)
		return nil
	}
	return s.DefaultCapacity
}
