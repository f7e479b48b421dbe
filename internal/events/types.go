package events

import "time"

// Event types written to the outbox.
const (
	TypeBookingAdmitted      = "booking.admitted.v1"
	TypeBookingStatusChanged = "booking.status_changed.v1"
	TypeOverrideChanged      = "capacity.override_changed.v1"
)

type BookingAdmittedV1 struct {
	BookingID     string    `json:"booking_id"`
	TenantID      string    `json:"tenant_id"`
	PackageID     string    `json:"package_id"`
	Tier          string    `json:"tier"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Seat          int       `json:"seat"`
	Status        string    `json:"status"`
	EffectiveDate string    `json:"effective_date"`
	AdmittedAt    time.Time `json:"admitted_at"`
}

type BookingStatusChangedV1 struct {
	BookingID     string    `json:"booking_id"`
	TenantID      string    `json:"tenant_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Date          string    `json:"date"`
	EffectiveDate string    `json:"effective_date"`
	ChangedAt     time.Time `json:"changed_at"`
}

type OverrideChangedV1 struct {
	TenantID        string    `json:"tenant_id"`
	Date            string    `json:"date"`
	Tier            string    `json:"tier"`
	Closed          bool      `json:"closed"`
	PlannedCapacity *int      `json:"planned_capacity,omitempty"`
	Deleted         bool      `json:"deleted,omitempty"`
	ChangedAt       time.Time `json:"changed_at"`
}
