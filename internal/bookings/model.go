// Package bookings is the booking ledger: it admits new bookings under a
// capacity guard and moves existing ones through their lifecycle.
package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/medspa-capacity/internal/schedule"
	"github.com/wolfman30/medspa-capacity/internal/tenancy"
)

var (
	// ErrFull is returned when admitting would exceed a capacity limit.
	ErrFull = errors.New("bookings: capacity exhausted")
	// ErrNotFound covers missing bookings and bookings owned by another tenant.
	ErrNotFound = errors.New("bookings: not found")
	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("bookings: invalid status transition")
)

// Status is a booking lifecycle state.
type Status string

const (
	StatusRequested Status = "requested"
	StatusReserved  Status = "reserved"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// ActiveStatuses hold capacity.
var ActiveStatuses = []Status{StatusRequested, StatusReserved, StatusConfirmed}

// Active reports whether the status consumes capacity.
func (s Status) Active() bool {
	switch s {
	case StatusRequested, StatusReserved, StatusConfirmed:
		return true
	}
	return false
}

func activeStatusStrings() []string {
	out := make([]string, len(ActiveStatuses))
	for i, s := range ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

var transitions = map[Status][]Status{
	StatusRequested: {StatusReserved, StatusConfirmed, StatusCanceled},
	StatusReserved:  {StatusConfirmed, StatusCanceled},
	StatusConfirmed: {StatusCompleted, StatusCanceled, StatusNoShow},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking is a reservation of one seat in one half-hour slot.
type Booking struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	PackageID     string         `json:"packageId"`
	Tier          schedule.Tier  `json:"tier"`
	Date          string         `json:"date"`
	Time          string         `json:"time"`
	Seat          int            `json:"seat"`
	Status        Status         `json:"status"`
	Name          string         `json:"name"`
	Phone         string         `json:"phone"`
	Email         string         `json:"email,omitempty"`
	Note          string         `json:"note,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	EffectiveDate string         `json:"effectiveDate"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (b *Booking) OwnerID() string      { return b.TenantID }
func (b *Booking) SetOwnerID(id string) { b.TenantID = id }

func (b *Booking) clone() *Booking {
	cp := *b
	if b.Metadata != nil {
		cp.Metadata = make(map[string]any, len(b.Metadata))
		for k, v := range b.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Limits bound an admission. Every field must be set; callers pass a large
// sentinel for pools that are not managed.
type Limits struct {
	// Slot caps active bookings at the exact date and time.
	Slot int
	// Day caps active bookings across the whole date.
	Day int
	// Tier caps active bookings of the booking's tier on the date.
	Tier int
}

// DayCount is the number of active bookings for one date and tier.
type DayCount struct {
	Date  string
	Tier  schedule.Tier
	Count int
}

// Ledger admits bookings atomically with respect to capacity: the count of
// active bookings and the insert happen as one unit, so concurrent
// admissions for the same slot cannot both pass the check.
type Ledger interface {
	Admit(ctx context.Context, scope tenancy.Scope, b Booking, limits Limits) (*Booking, error)
	CountActive(ctx context.Context, scope tenancy.Scope, from, to string) ([]DayCount, error)
}

// Repository is the full ledger used by the lifecycle service and handlers.
type Repository interface {
	Ledger
	// Get looks a booking up by id and verifies it belongs to scope.
	Get(ctx context.Context, scope tenancy.Scope, id string) (*Booking, error)
	List(ctx context.Context, scope tenancy.Scope, from, to string) ([]Booking, error)
	// UpdateStatus persists a new status, metadata and effective date and
	// records the change.
	UpdateStatus(ctx context.Context, scope tenancy.Scope, b Booking, from Status) (*Booking, error)
}

// lowestFreeSeat returns the smallest non-negative ordinal not in taken.
func lowestFreeSeat(taken []int) int {
	used := make(map[int]bool, len(taken))
	for _, s := range taken {
		used[s] = true
	}
	seat := 0
	for used[seat] {
		seat++
	}
	return seat
}

// exceeds reports which limit an admission would break given current counts.
func exceeds(limits Limits, slot, day, tier int) bool {
	return slot >= limits.Slot || day >= limits.Day || tier >= limits.Tier
}
