// Package capacity derives per-date capacity snapshots from slot templates,
// closure overrides and live booking counts.
package capacity

import (
	"time"

	"github.com/wolfman30/medspa-capacity/internal/schedule"
)

// Unlimited stands in for capacity on days nobody manages. A day without
// templates must not read as fully booked.
const Unlimited = 9999

// Flags holds one boolean per resource tier.
type Flags struct {
	Basic bool `json:"basic"`
	TierA bool `json:"tierA"`
	TierB bool `json:"tierB"`
}

// Get returns the flag for tier.
func (f Flags) Get(tier schedule.Tier) bool {
	switch tier {
	case schedule.TierA:
		return f.TierA
	case schedule.TierB:
		return f.TierB
	default:
		return f.Basic
	}
}

func (f *Flags) set(tier schedule.Tier, v bool) {
	switch tier {
	case schedule.TierA:
		f.TierA = v
	case schedule.TierB:
		f.TierB = v
	default:
		f.Basic = v
	}
}

// Snapshot is the derived capacity view of one date. It is never stored.
type Snapshot struct {
	Cap    int   `json:"cap"`
	Used   int   `json:"used"`
	Closed Flags `json:"closed"`
	Full   Flags `json:"full"`

	tierUsed  map[schedule.Tier]int
	tierLimit map[schedule.Tier]int
	// administrative closures, before auto-full is applied
	closedByOverride Flags
}

// ClosedByOverride reports whether tier was closed by a stored override,
// directly or through the basic cascade. Auto-full does not count.
func (s Snapshot) ClosedByOverride(tier schedule.Tier) bool {
	return s.closedByOverride.Get(tier)
}

// TierLimit returns the planned capacity of a specialty tier, or Unlimited
// when the tier has none. The basic tier is bounded by Cap.
func (s Snapshot) TierLimit(tier schedule.Tier) int {
	if tier == schedule.TierBasic || tier == "" {
		return s.Cap
	}
	if n, ok := s.tierLimit[tier]; ok {
		return n
	}
	return Unlimited
}

// TierUsed returns the active bookings of tier on the date.
func (s Snapshot) TierUsed(tier schedule.Tier) int {
	return s.tierUsed[tier]
}

// Inputs are the raw facts one snapshot is derived from.
type Inputs struct {
	// Templates for the date's weekday.
	Templates []schedule.SlotTemplate
	// DefaultCapacity replaces Unlimited on days without templates. A day
	// whose templates carry zero seats keeps a capacity of zero.
	DefaultCapacity *int
	Overrides       []schedule.ClosureOverride
	// Counts holds active bookings per tier.
	Counts map[schedule.Tier]int
}

// NominalCapacity sums slots × seats over templates.
func NominalCapacity(templates []schedule.SlotTemplate) int {
	total := 0
	for _, t := range templates {
		total += t.NominalSeats()
	}
	return total
}

// Derive computes a snapshot. It is a pure function of in.
//
// A basic override's planned capacity replaces the day capacity, and a
// specialty tier's planned capacity bounds that tier. Closing basic closes
// every tier. Exhausting the day closes every tier; exhausting a tier's
// planned capacity closes that tier.
func Derive(in Inputs) Snapshot {
	snap := Snapshot{
		tierUsed:  make(map[schedule.Tier]int, len(schedule.Tiers)),
		tierLimit: make(map[schedule.Tier]int),
	}

	snap.Cap = NominalCapacity(in.Templates)
	if len(in.Templates) == 0 {
		snap.Cap = Unlimited
		if in.DefaultCapacity != nil {
			snap.Cap = *in.DefaultCapacity
		}
	}

	for _, o := range in.Overrides {
		tier := o.Tier
		if tier == "" {
			tier = schedule.TierBasic
		}
		snap.Closed.set(tier, o.Closed)
		if o.PlannedCapacity == nil {
			continue
		}
		if tier == schedule.TierBasic {
			snap.Cap = *o.PlannedCapacity
		} else {
			snap.tierLimit[tier] = *o.PlannedCapacity
		}
	}

	for tier, n := range in.Counts {
		if tier == "" {
			tier = schedule.TierBasic
		}
		snap.tierUsed[tier] += n
		snap.Used += n
	}

	if snap.Closed.Basic {
		snap.Closed.TierA = true
		snap.Closed.TierB = true
	}
	snap.closedByOverride = snap.Closed

	if snap.Used >= snap.Cap {
		snap.Full = Flags{Basic: true, TierA: true, TierB: true}
		snap.Closed = Flags{Basic: true, TierA: true, TierB: true}
	}
	for tier, limit := range snap.tierLimit {
		if snap.tierUsed[tier] >= limit {
			snap.Full.set(tier, true)
			snap.Closed.set(tier, true)
		}
	}
	return snap
}

// SlotCapacity sums the seats of every template on wd whose window contains
// minute. With no matching template the slot is Unlimited.
func SlotCapacity(templates []schedule.SlotTemplate, wd time.Weekday, minute int) int {
	seats, matched := 0, false
	for _, t := range templates {
		if t.DayOfWeek != int(wd) || !t.Covers(minute) {
			continue
		}
		matched = true
		seats += t.Seats
	}
	if !matched {
		return Unlimited
	}
	return seats
}
