// Package reminder decides which reminder tier, if any, is due for an
// appointment.
package reminder

import (
	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/model"
)

// Tier identifies a reminder window. TierNone means nothing is due.
type Tier int

const (
	TierNone Tier = model.TierNone
	Tier1    Tier = model.Tier1
	Tier2    Tier = model.Tier2
	Tier3    Tier = model.Tier3
)

// window is a half-open hour range (Low, High]; Tier3 also includes Low.
type window struct {
	tier      Tier
	low, high int
}

var windows = []window{
	{Tier1, 24, 48},
	{Tier2, 5, 24},
	{Tier3, 0, 5},
}

func (w window) contains(hours int) bool {
	if w.tier == Tier3 {
		return hours >= w.low && hours <= w.high
	}
	return hours > w.low && hours <= w.high
}

// DueTier returns the tier whose window holds hoursToAppt, unless that tier
// has already been answered.
func DueTier(hoursToAppt int, answers []model.Answer) Tier {
	for _, w := range windows {
		if !w.contains(hoursToAppt) {
			continue
		}
		for _, a := range answers {
			if a.Tier == int(w.tier) {
				return TierNone
			}
		}
		return w.tier
	}
	return TierNone
}

// Evaluate applies DueTier to a clock delta. Only appointments within the
// current month-and-year span are considered; passed ones never are.
func Evaluate(d clock.Delta, answers []model.Answer) Tier {
	if d.Passed || d.Years != 0 || d.Months != 0 {
		return TierNone
	}
	return DueTier(d.HoursUntil(), answers)
}

// Label is the patient-facing lead time of a tier.
func (t Tier) Label() string {
	switch t {
	case Tier1:
		return "in 2 days"
	case Tier2:
		return "tomorrow"
	case Tier3:
		return "today"
	}
	return ""
}
