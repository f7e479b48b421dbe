package bookings

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medspa-capacity/internal/events"
	"github.com/wolfman30/medspa-capacity/internal/scoped"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
	"github.com/wolfman30/medspa-capacity/pkg/logging"
)

// MemoryRepository is an in-process Repository. Admission runs under the
// table's write lock, which is the in-memory equivalent of the Postgres
// advisory lock.
type MemoryRepository struct {
	table  *scoped.Table[*Booking]
	outbox events.Recorder
	logger *logging.Logger
	now    func() time.Time
}

// NewMemoryRepository creates an empty repository. outbox may be nil.
func NewMemoryRepository(outbox events.Recorder) *MemoryRepository {
	return &MemoryRepository{
		table: scoped.NewTable(
			func(b *Booking) string { return b.ID },
			func(b *Booking) *Booking { return b.clone() },
		),
		outbox: outbox,
		logger: logging.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the logger used to report outbox failures.
func (m *MemoryRepository) WithLogger(l *logging.Logger) *MemoryRepository {
	if l != nil {
		m.logger = l
	}
	return m
}

// record appends an event after the booking write. The write is already
// visible, so a failure here is logged rather than returned.
func (m *MemoryRepository) record(ctx context.Context, scope tenancy.Scope, eventType string, payload any) {
	if m.outbox == nil {
		return
	}
	if _, err := m.outbox.Insert(ctx, scope, eventType, payload); err != nil {
		m.logger.Warn("booking event not recorded", "tenant_id", scope.TenantID(), "type", eventType, "error", err)
	}
}

func (m *MemoryRepository) Admit(ctx context.Context, scope tenancy.Scope, b Booking, limits Limits) (*Booking, error) {
	var admitted *Booking
	err := m.table.Guarded(scope, func(tx *scoped.TableTx[*Booking]) error {
		sameDay := tx.Find(func(row *Booking) bool { return row.Date == b.Date && row.Status.Active() })
		var slot, tier int
		var seats []int
		for _, row := range sameDay {
			if row.Time == b.Time {
				slot++
				seats = append(seats, row.Seat)
			}
			if row.Tier == b.Tier {
				tier++
			}
		}
		if exceeds(limits, slot, len(sameDay), tier) {
			return ErrFull
		}

		now := m.now()
		b.ID = uuid.NewString()
		b.TenantID = ""
		b.Seat = lowestFreeSeat(seats)
		b.CreatedAt = now
		b.UpdatedAt = now
		row, err := tx.Create(&b)
		if err != nil {
			return err
		}
		admitted = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.record(ctx, scope, events.TypeBookingAdmitted, admittedEvent(admitted))
	return admitted, nil
}

func (m *MemoryRepository) CountActive(_ context.Context, scope tenancy.Scope, from, to string) ([]DayCount, error) {
	rows, err := m.table.Find(scope, func(b *Booking) bool {
		return b.Status.Active() && b.Date >= from && b.Date <= to
	})
	if err != nil {
		return nil, err
	}
	type key struct {
		date string
		tier string
	}
	counts := make(map[key]int)
	for _, b := range rows {
		counts[key{b.Date, string(b.Tier)}]++
	}
	out := make([]DayCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DayCount{Date: k.date, Tier: tierOf(k.tier), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Tier < out[j].Tier
	})
	return out, nil
}

// CountActiveAt counts active bookings in one slot.
func (m *MemoryRepository) CountActiveAt(_ context.Context, scope tenancy.Scope, date, clock string) (int, error) {
	return m.table.Count(scope, func(b *Booking) bool {
		return b.Status.Active() && b.Date == date && b.Time == clock
	})
}

// Get is a key lookup; the row's tenant is checked against scope after the fetch.
func (m *MemoryRepository) Get(_ context.Context, scope tenancy.Scope, id string) (*Booking, error) {
	if err := scope.Check(); err != nil {
		return nil, err
	}
	b, ok := m.table.Get(id)
	if !ok || !scope.Owns(b.TenantID) {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *MemoryRepository) List(_ context.Context, scope tenancy.Scope, from, to string) ([]Booking, error) {
	rows, err := m.table.Find(scope, func(b *Booking) bool { return b.Date >= from && b.Date <= to })
	if err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(rows))
	for _, b := range rows {
		out = append(out, *b)
	}
	sortBookings(out)
	return out, nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, scope tenancy.Scope, b Booking, from Status) (*Booking, error) {
	updated, err := m.table.Update(scope, b.ID, func(cur *Booking) (*Booking, error) {
		if cur.Status != from {
			return nil, ErrInvalidTransition
		}
		cur.Status = b.Status
		cur.Metadata = b.Metadata
		cur.EffectiveDate = b.EffectiveDate
		cur.UpdatedAt = m.now()
		return cur, nil
	})
	if errors.Is(err, scoped.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.record(ctx, scope, events.TypeBookingStatusChanged, statusChangedEvent(updated, from))
	return updated, nil
}

func sortBookings(bs []Booking) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Date != bs[j].Date {
			return bs[i].Date < bs[j].Date
		}
		if bs[i].Time != bs[j].Time {
			return bs[i].Time < bs[j].Time
		}
		return bs[i].Seat < bs[j].Seat
	})
}

func admittedEvent(b *Booking) events.BookingAdmittedV1 {
	return events.BookingAdmittedV1{
		BookingID:     b.ID,
		TenantID:      b.TenantID,
		PackageID:     b.PackageID,
		Tier:          string(b.Tier),
		Date:          b.Date,
		Time:          b.Time,
		Seat:          b.Seat,
		Status:        string(b.Status),
		EffectiveDate: b.EffectiveDate,
		AdmittedAt:    b.CreatedAt,
	}
}

func statusChangedEvent(b *Booking, from Status) events.BookingStatusChangedV1 {
	return events.BookingStatusChangedV1{
		BookingID:     b.ID,
		TenantID:      b.TenantID,
		From:          string(from),
		To:            string(b.Status),
		Date:          b.Date,
		EffectiveDate: b.EffectiveDate,
		ChangedAt:     b.UpdatedAt,
	}
}
