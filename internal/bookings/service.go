package bookings

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medspa-capacity/internal/effectivedate"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

var bookingsTracer = otel.Tracer("medspa.internal.bookings")

// Service applies staff status changes to existing bookings.
type Service struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewService constructs a bookings service.
func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Reserve(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	return s.Transition(ctx, scope, id, StatusReserved)
}

// Confirm stamps confirmed_at, which moves the effective date.
func (s *Service) Confirm(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	return s.Transition(ctx, scope, id, StatusConfirmed)
}

// Complete stamps completed_at, which takes precedence over confirmation.
func (s *Service) Complete(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	return s.Transition(ctx, scope, id, StatusCompleted)
}

func (s *Service) Cancel(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	return s.Transition(ctx, scope, id, StatusCanceled)
}

func (s *Service) MarkNoShow(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	return s.Transition(ctx, scope, id, StatusNoShow)
}

// Transition moves a booking to status to. Every update re-derives the
// effective date from the metadata it will be saved with.
func (s *Service) Transition(ctx context.Context, scope tenancy.Scope, id string, to Status) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("medspa.tenant_id", scope.TenantID()),
		attribute.String("medspa.booking_id", id),
		attribute.String("medspa.status", string(to)),
	)

	current, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := current.Status
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	next := *current.clone()
	next.Status = to
	if next.Metadata == nil {
		next.Metadata = make(map[string]any)
	}
	stamp := s.now().Format(time.RFC3339)
	switch to {
	case StatusConfirmed:
		next.Metadata[effectivedate.ConfirmedAtKey] = stamp
	case StatusCompleted:
		next.Metadata[effectivedate.CompletedAtKey] = stamp
	case StatusCanceled:
		next.Metadata["canceled_at"] = stamp
	}
	next.EffectiveDate = effectivedate.Resolve(next.Date, next.Metadata)

	updated, err := s.repo.UpdateStatus(ctx, scope, next, from)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.WithTenant(scope.TenantID()).Info("booking status changed",
		"booking_id", id,
		"from", from,
		"to", to,
		"effective_date", updated.EffectiveDate,
	)
	return updated, nil
}
