package capacity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wolfman30/medspa-capacity/internal/schedule"
)

func intPtr(v int) *int { return &v }

func mondayMorning(seats int) schedule.SlotTemplate {
	return schedule.SlotTemplate{DayOfWeek: int(time.Monday), Start: "09:00", End: "12:00", Seats: seats}
}

func TestDeriveNoTemplatesIsUnlimited(t *testing.T) {
	snap := Derive(Inputs{})
	assert.Equal(t, Unlimited, snap.Cap)
	assert.Equal(t, 0, snap.Used)
	assert.Equal(t, Flags{}, snap.Closed)
}

func TestDeriveNoTemplatesUsesDefaultCapacity(t *testing.T) {
	snap := Derive(Inputs{DefaultCapacity: intPtr(12), Counts: map[schedule.Tier]int{schedule.TierBasic: 3}})
	assert.Equal(t, 12, snap.Cap)
	assert.Equal(t, 3, snap.Used)
	assert.False(t, snap.Closed.Basic)
}

func TestDeriveZeroSeatTemplatesAreFull(t *testing.T) {
	snap := Derive(Inputs{
		Templates:       []schedule.SlotTemplate{mondayMorning(0)},
		DefaultCapacity: intPtr(12),
	})
	assert.Equal(t, 0, snap.Cap, "configured templates are never replaced by the default")
	assert.Equal(t, Flags{Basic: true, TierA: true, TierB: true}, snap.Full)
	assert.False(t, snap.ClosedByOverride(schedule.TierBasic))
}

func TestDeriveClosedByOverrideIgnoresAutoFull(t *testing.T) {
	snap := Derive(Inputs{
		Templates: []schedule.SlotTemplate{{DayOfWeek: 1, Start: "09:00", End: "09:30", Seats: 1}},
		Overrides: []schedule.ClosureOverride{{Date: "2025-01-06", Tier: schedule.TierA, Closed: true}},
		Counts:    map[schedule.Tier]int{schedule.TierBasic: 2},
	})
	assert.True(t, snap.Full.Basic)
	assert.True(t, snap.ClosedByOverride(schedule.TierA))
	assert.False(t, snap.ClosedByOverride(schedule.TierBasic))
	assert.False(t, snap.ClosedByOverride(schedule.TierB))

	cascaded := Derive(Inputs{Overrides: []schedule.ClosureOverride{{Date: "2025-01-06", Tier: schedule.TierBasic, Closed: true}}})
	assert.True(t, cascaded.ClosedByOverride(schedule.TierB))
}

func TestDeriveNominalCapacitySumsTemplates(t *testing.T) {
	snap := Derive(Inputs{Templates: []schedule.SlotTemplate{
		mondayMorning(10),
		{DayOfWeek: int(time.Monday), Start: "14:00", End: "15:00", Seats: 2},
	}})
	assert.Equal(t, 70+6, snap.Cap)
}

func TestDeriveBasicClosureCascades(t *testing.T) {
	snap := Derive(Inputs{
		Templates: []schedule.SlotTemplate{mondayMorning(10)},
		Overrides: []schedule.ClosureOverride{
			{Date: "2025-01-06", Tier: schedule.TierBasic, Closed: true},
			{Date: "2025-01-06", Tier: schedule.TierA, Closed: false},
		},
	})
	assert.Equal(t, Flags{Basic: true, TierA: true, TierB: true}, snap.Closed)
	assert.Equal(t, Flags{}, snap.Full, "closure does not imply exhaustion")
	assert.Equal(t, 70, snap.Cap)
}

func TestDeriveSpecialtyClosureDoesNotCascadeUp(t *testing.T) {
	snap := Derive(Inputs{
		Templates: []schedule.SlotTemplate{mondayMorning(10)},
		Overrides: []schedule.ClosureOverride{{Date: "2025-01-06", Tier: schedule.TierA, Closed: true}},
	})
	assert.Equal(t, Flags{TierA: true}, snap.Closed)
}

func TestDeriveAutoFullClosesEveryTier(t *testing.T) {
	snap := Derive(Inputs{
		Templates: []schedule.SlotTemplate{{DayOfWeek: 1, Start: "09:00", End: "09:30", Seats: 1}},
		Counts:    map[schedule.Tier]int{schedule.TierBasic: 1, schedule.TierA: 1},
	})
	assert.Equal(t, 2, snap.Cap)
	assert.Equal(t, 2, snap.Used)
	assert.Equal(t, Flags{Basic: true, TierA: true, TierB: true}, snap.Closed)
	assert.Equal(t, Flags{Basic: true, TierA: true, TierB: true}, snap.Full)
}

func TestDerivePlannedCapacityOverrideWins(t *testing.T) {
	snap := Derive(Inputs{
		Templates: []schedule.SlotTemplate{mondayMorning(10)},
		Overrides: []schedule.ClosureOverride{
			{Date: "2025-01-06", Tier: schedule.TierBasic, PlannedCapacity: intPtr(5)},
			{Date: "2025-01-06", Tier: schedule.TierB, PlannedCapacity: intPtr(2)},
		},
		Counts: map[schedule.Tier]int{schedule.TierBasic: 2, schedule.TierB: 2},
	})
	assert.Equal(t, 5, snap.Cap)
	assert.Equal(t, 4, snap.Used)
	assert.Equal(t, Flags{TierB: true}, snap.Closed)
	assert.Equal(t, Flags{TierB: true}, snap.Full)
	assert.Equal(t, 2, snap.TierLimit(schedule.TierB))
	assert.Equal(t, Unlimited, snap.TierLimit(schedule.TierA))
	assert.Equal(t, 5, snap.TierLimit(schedule.TierBasic))
	assert.Equal(t, 2, snap.TierUsed(schedule.TierB))
}

func TestDerivePlannedZeroIsFull(t *testing.T) {
	snap := Derive(Inputs{Overrides: []schedule.ClosureOverride{
		{Date: "2025-01-06", Tier: schedule.TierBasic, PlannedCapacity: intPtr(0)},
	}})
	assert.Equal(t, 0, snap.Cap)
	assert.True(t, snap.Full.Basic)
	assert.True(t, snap.Closed.TierA)
}

func TestDeriveIsIdempotent(t *testing.T) {
	in := Inputs{
		Templates: []schedule.SlotTemplate{mondayMorning(10)},
		Overrides: []schedule.ClosureOverride{{Date: "2025-01-06", Tier: schedule.TierA, Closed: true, PlannedCapacity: intPtr(3)}},
		Counts:    map[schedule.Tier]int{schedule.TierBasic: 4, schedule.TierA: 1},
	}
	assert.Equal(t, Derive(in), Derive(in))
}

func TestSlotCapacity(t *testing.T) {
	templates := []schedule.SlotTemplate{
		mondayMorning(10),
		{DayOfWeek: int(time.Monday), Start: "11:00", End: "13:00", Seats: 4},
		{DayOfWeek: int(time.Tuesday), Start: "09:00", End: "17:00", Seats: 99},
	}
	at := func(clock string) int {
		m, err := schedule.ParseClock(clock)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}

	assert.Equal(t, 10, SlotCapacity(templates, time.Monday, at("10:00")))
	assert.Equal(t, 10, SlotCapacity(templates, time.Monday, at("09:00")))
	assert.Equal(t, 14, SlotCapacity(templates, time.Monday, at("11:30")), "overlapping windows add up")
	assert.Equal(t, 14, SlotCapacity(templates, time.Monday, at("12:00")), "window end is inclusive")
	assert.Equal(t, 4, SlotCapacity(templates, time.Monday, at("12:30")))
	assert.Equal(t, Unlimited, SlotCapacity(templates, time.Monday, at("18:00")))
	assert.Equal(t, Unlimited, SlotCapacity(templates, time.Sunday, at("10:00")))
}

func TestFlagsGet(t *testing.T) {
	f := Flags{TierA: true}
	assert.True(t, f.Get(schedule.TierA))
	assert.False(t, f.Get(schedule.TierB))
	assert.False(t, f.Get(schedule.TierBasic))
}
