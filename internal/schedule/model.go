// Package schedule stores recurring weekly slot templates and per-date
// closure overrides for each tenant.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SlotMinutes is the booking granularity.
const SlotMinutes = 30

var (
	ErrInvalidTemplate  = errors.New("schedule: invalid slot template")
	ErrInvalidOverride  = errors.New("schedule: invalid closure override")
	ErrTemplateNotFound = errors.New("schedule: template not found")
	ErrInvalidDate      = errors.New("schedule: invalid date")
	ErrInvalidTime      = errors.New("schedule: invalid time")
	ErrInvalidTier      = errors.New("schedule: invalid resource tier")
)

// Tier is a capacity pool. Specialty tiers depend on basic.
type Tier string

const (
	TierBasic Tier = "basic"
	TierA     Tier = "tierA"
	TierB     Tier = "tierB"
)

// Tiers lists every tier, basic first.
var Tiers = []Tier{TierBasic, TierA, TierB}

// ParseTier validates a tier name. An empty name means basic.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.TrimSpace(s)) {
	case "", TierBasic:
		return TierBasic, nil
	case TierA:
		return TierA, nil
	case TierB:
		return TierB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
}

// SlotTemplate is a recurring weekly availability rule.
type SlotTemplate struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	DayOfWeek int       `json:"dayOfWeek"` // 0 = Sunday
	Start     string    `json:"start"`     // "09:00"
	End       string    `json:"end"`       // "12:00"
	Seats     int       `json:"seats"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *SlotTemplate) OwnerID() string      { return t.TenantID }
func (t *SlotTemplate) SetOwnerID(id string) { t.TenantID = id }

// Validate checks day range, window order and seat count.
func (t SlotTemplate) Validate() error {
	if t.DayOfWeek < 0 || t.DayOfWeek > 6 {
		return fmt.Errorf("%w: day of week %d out of range", ErrInvalidTemplate, t.DayOfWeek)
	}
	start, err := ParseClock(t.Start)
	if err != nil {
		return fmt.Errorf("%w: start: %v", ErrInvalidTemplate, err)
	}
	end, err := ParseClock(t.End)
	if err != nil {
		return fmt.Errorf("%w: end: %v", ErrInvalidTemplate, err)
	}
	if start >= end {
		return fmt.Errorf("%w: start %s must be before end %s", ErrInvalidTemplate, t.Start, t.End)
	}
	if t.Seats < 0 {
		return fmt.Errorf("%w: seats must be non-negative", ErrInvalidTemplate)
	}
	return nil
}

// SlotCount is the number of half-hour slots in the window, both ends included.
func (t SlotTemplate) SlotCount() int {
	start, err1 := ParseClock(t.Start)
	end, err2 := ParseClock(t.End)
	if err1 != nil || err2 != nil || end < start {
		return 0
	}
	return (end-start)/SlotMinutes + 1
}

// NominalSeats is SlotCount × Seats.
func (t SlotTemplate) NominalSeats() int {
	return t.SlotCount() * t.Seats
}

// Covers reports whether minute-of-day falls inside the window.
func (t SlotTemplate) Covers(minute int) bool {
	start, err1 := ParseClock(t.Start)
	end, err2 := ParseClock(t.End)
	if err1 != nil || err2 != nil {
		return false
	}
	return minute >= start && minute <= end
}

// ClosureOverride closes or re-plans one tier on one date. No row means
// open with template defaults.
type ClosureOverride struct {
	TenantID        string    `json:"tenantId"`
	Date            string    `json:"date"`
	Tier            Tier      `json:"resource"`
	Closed          bool      `json:"close"`
	PlannedCapacity *int      `json:"plannedCapacity,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (o *ClosureOverride) OwnerID() string      { return o.TenantID }
func (o *ClosureOverride) SetOwnerID(id string) { o.TenantID = id }

func (o ClosureOverride) key() string {
	return o.TenantID + "|" + o.Date + "|" + string(o.Tier)
}

// Validate checks the date, tier and planned capacity.
func (o ClosureOverride) Validate() error {
	if _, err := ParseDate(o.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
	}
	if _, err := ParseTier(string(o.Tier)); err != nil || o.Tier == "" {
		return fmt.Errorf("%w: resource %q", ErrInvalidOverride, o.Tier)
	}
	if o.PlannedCapacity != nil && *o.PlannedCapacity < 0 {
		return fmt.Errorf("%w: planned capacity must be non-negative", ErrInvalidOverride)
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// DateLayout is the calendar date wire format.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar-valid "YYYY-MM-DD".
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// TemplatesForWeekday filters templates matching wd.
func TemplatesForWeekday(templates []SlotTemplate, wd time.Weekday) []SlotTemplate {
	var out []SlotTemplate
	for _, t := range templates {
		if t.DayOfWeek == int(wd) {
			out = append(out, t)
		}
	}
	return out
}
