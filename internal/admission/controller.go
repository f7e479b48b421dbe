package admission

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-capacity/internal/bookings"
	"github.com/wolfman30/medspa-capacity/internal/capacity"
	"github.com/wolfman30/medspa-capacity/internal/catalog"
	"github.com/wolfman30/medspa-capacity/internal/effectivedate"
	"github.com/wolfman30/medspa-capacity/internal/observability/metrics"
	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/settings"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

var admissionTracer = otel.Tracer("medspa.internal.admission")

// Request is an inbound booking request.
type Request struct {
	// TenantRef is a slug or id. When empty the tenant already in the
	// context is used.
	TenantRef string
	PackageID string
	Date      string
	Time      string
	Name      string
	Phone     string
	Email     string
	Note      string
	// Staff bookings skip the requested stage.
	Staff bool
}

// Deps are the collaborators a Controller needs. Settings and Metrics are optional.
type Deps struct {
	Tenants    tenancy.Directory
	Catalog    catalog.Catalog
	Schedules  schedule.Store
	Aggregator *capacity.Aggregator
	Ledger     bookings.Ledger
	Settings   settings.Store
	Metrics    *metrics.CapacityMetrics
	Logger     *logging.Logger
}

// Controller runs the admission pipeline.
type Controller struct {
	tenants    tenancy.Directory
	catalog    catalog.Catalog
	schedules  schedule.Store
	aggregator *capacity.Aggregator
	ledger     bookings.Ledger
	settings   settings.Store
	metrics    *metrics.CapacityMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewController wires a Controller from d. It panics when a required
// collaborator is missing.
func NewController(d Deps) *Controller {
	if d.Tenants == nil || d.Catalog == nil || d.Schedules == nil || d.Aggregator == nil || d.Ledger == nil {
		panic("admission: tenants, catalog, schedules, aggregator and ledger are required")
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Controller{
		tenants:    d.Tenants,
		catalog:    d.Catalog,
		schedules:  d.Schedules,
		aggregator: d.Aggregator,
		ledger:     d.Ledger,
		settings:   d.Settings,
		metrics:    d.Metrics,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Admit validates req and, if capacity allows, commits a booking. Every
// failure is an *Error carrying a Code.
func (c *Controller) Admit(ctx context.Context, req Request) (*bookings.Booking, error) {
	started := time.Now()
	ctx, span := admissionTracer.Start(ctx, "admission.admit")
	defer span.End()

	b, err := c.admit(ctx, req)
	code := CodeOf(err)
	span.SetAttributes(attribute.String("medspa.admission_code", string(code)))
	c.metrics.ObserveAdmission(string(code), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		if code == CodeInternal {
			c.logger.Error("booking admission failed", "tenant", req.TenantRef, "date", req.Date, "time", req.Time, "error", err)
		} else {
			c.logger.Info("booking rejected", "tenant", req.TenantRef, "date", req.Date, "time", req.Time, "code", code)
		}
		return nil, err
	}
	c.logger.Info("booking admitted",
		"tenant_id", b.TenantID,
		"booking_id", b.ID,
		"date", b.Date,
		"time", b.Time,
		"seat", b.Seat,
		"status", b.Status,
	)
	return b, nil
}

func (c *Controller) admit(ctx context.Context, req Request) (*bookings.Booking, error) {
	scope, err := c.resolveScope(ctx, req.TenantRef)
	if err != nil {
		return nil, err
	}

	day, minute, err := c.validate(ctx, scope, req)
	if err != nil {
		return nil, err
	}
	req.Date = day.Format(schedule.DateLayout)
	req.Time = schedule.FormatClock(minute)

	pkg, err := c.catalog.Lookup(ctx, scope, strings.TrimSpace(req.PackageID))
	if errors.Is(err, catalog.ErrPackageNotFound) {
		return nil, reject(CodePackageNotFound, "package not found", err)
	}
	if err != nil {
		return nil, reject(CodeInternal, "package lookup failed", err)
	}

	snap, err := c.aggregator.ForDate(ctx, scope, req.Date)
	if err != nil {
		return nil, reject(CodeInternal, "capacity lookup failed", err)
	}
	if snap.ClosedByOverride(pkg.Tier) {
		return nil, reject(CodeClosed, "date is closed for "+string(pkg.Tier), nil)
	}
	if snap.Full.Get(pkg.Tier) {
		return nil, reject(CodeFull, "date is fully booked", nil)
	}
	if snap.Closed.Get(pkg.Tier) {
		return nil, reject(CodeClosed, "date is closed for "+string(pkg.Tier), nil)
	}

	templates, err := c.schedules.ListTemplates(ctx, scope)
	if err != nil {
		return nil, reject(CodeInternal, "template lookup failed", err)
	}
	limits := bookings.Limits{
		Slot: capacity.SlotCapacity(templates, day.Weekday(), minute),
		Day:  snap.Cap,
		Tier: snap.TierLimit(pkg.Tier),
	}

	booking := c.newBooking(req, pkg)
	admitted, err := c.ledger.Admit(ctx, scope, booking, limits)
	if errors.Is(err, bookings.ErrFull) {
		return nil, reject(CodeFull, "no capacity left for "+req.Date+" "+req.Time, err)
	}
	if err != nil {
		return nil, reject(CodeInternal, "could not record booking", err)
	}
	return admitted, nil
}

// resolveScope finds the tenant named by ref, or the one already in ctx.
func (c *Controller) resolveScope(ctx context.Context, ref string) (tenancy.Scope, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		id, ok := tenancy.TenantIDFromContext(ctx)
		if !ok {
			return tenancy.Scope{}, reject(CodeTenantNotFound, "tenant not found", tenancy.ErrNoTenant)
		}
		ref = id
	}
	t, err := tenancy.Resolve(ctx, c.tenants, ref)
	if errors.Is(err, tenancy.ErrTenantNotFound) {
		return tenancy.Scope{}, reject(CodeTenantNotFound, "tenant not found", err)
	}
	if err != nil {
		return tenancy.Scope{}, reject(CodeInternal, "tenant lookup failed", err)
	}
	scope, err := tenancy.NewScope(t.ID)
	if err != nil {
		return tenancy.Scope{}, reject(CodeTenantNotFound, "tenant not found", err)
	}
	return scope, nil
}

// validate checks the request shape and returns the parsed date and slot minute.
func (c *Controller) validate(ctx context.Context, scope tenancy.Scope, req Request) (time.Time, int, error) {
	var missing []string
	if strings.TrimSpace(req.PackageID) == "" {
		missing = append(missing, "packageId")
	}
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return time.Time{}, 0, reject(CodeInvalidInput, "missing "+strings.Join(missing, ", "), nil)
	}

	day, err := schedule.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, 0, reject(CodeInvalidInput, "date must be YYYY-MM-DD", err)
	}
	minute, err := schedule.ParseClock(req.Time)
	if err != nil {
		return time.Time{}, 0, reject(CodeInvalidInput, "time must be HH:MM", err)
	}
	if minute%schedule.SlotMinutes != 0 {
		return time.Time{}, 0, reject(CodeInvalidInput, "time must fall on a half hour", nil)
	}

	if !req.Staff {
		today := c.now().In(c.location(ctx, scope)).Format(schedule.DateLayout)
		if day.Format(schedule.DateLayout) < today {
			return time.Time{}, 0, reject(CodeInvalidInput, "date is in the past", nil)
		}
	}
	return day, minute, nil
}

func (c *Controller) location(ctx context.Context, scope tenancy.Scope) *time.Location {
	if c.settings == nil {
		return time.UTC
	}
	s, err := c.settings.Get(ctx, scope)
	if err != nil {
		c.logger.Warn("tenant settings unavailable", "tenant_id", scope.TenantID(), "error", err)
		return time.UTC
	}
	return s.Location()
}

func (c *Controller) newBooking(req Request, pkg *catalog.Package) bookings.Booking {
	meta := map[string]any{"source": "public"}
	status := bookings.StatusRequested
	if req.Staff {
		meta["source"] = "staff"
		meta[effectivedate.ConfirmedAtKey] = c.now().Format(time.RFC3339)
		status = bookings.StatusConfirmed
	}
	return bookings.Booking{
		PackageID:     pkg.ID,
		Tier:          pkg.Tier,
		Date:          req.Date,
		Time:          req.Time,
		Status:        status,
		Name:          strings.TrimSpace(req.Name),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		Note:          strings.TrimSpace(req.Note),
		Metadata:      meta,
		EffectiveDate: effectivedate.Resolve(req.Date, meta),
	}
}
