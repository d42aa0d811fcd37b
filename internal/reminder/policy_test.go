package reminder

import (
	"testing"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/model"
)

func answered(tiers ...int) []model.Answer {
	var out []model.Answer
	for _, t := range tiers {
		out = append(out, model.Answer{Tier: t, Value: model.AnswerYes})
	}
	return out
}

func TestThirtyHoursOutIsTierOne(t *testing.T) {
	if got := DueTier(30, nil); got != Tier1 {
		t.Errorf("DueTier(30) = %d, want %d", got, Tier1)
	}
}

func TestThreeHoursOutWithEarlierTiersAnswered(t *testing.T) {
	if got := DueTier(3, answered(1, 2)); got != Tier3 {
		t.Errorf("DueTier(3) = %d, want %d", got, Tier3)
	}
}

func TestWindowBoundaries(t *testing.T) {
	tests := []struct {
		hours int
		want  Tier
	}{
		{49, TierNone},
		{48, Tier1},
		{25, Tier1},
		{24, Tier2},
		{6, Tier2},
		{5, Tier3},
		{0, Tier3},
		{-1, TierNone},
	}
	for _, tt := range tests {
		if got := DueTier(tt.hours, nil); got != tt.want {
			t.Errorf("DueTier(%d) = %d, want %d", tt.hours, got, tt.want)
		}
	}
}

func TestAnsweredTierNeverReported(t *testing.T) {
	for h := -5; h <= 60; h++ {
		for _, tier := range []int{1, 2, 3} {
			if got := DueTier(h, answered(tier)); int(got) == tier {
				t.Errorf("DueTier(%d) reported answered tier %d", h, tier)
			}
		}
	}
}

func TestWindowsAreExclusive(t *testing.T) {
	for h := -5; h <= 60; h++ {
		matches := 0
		for _, w := range windows {
			if w.contains(h) {
				matches++
			}
		}
		if matches > 1 {
			t.Errorf("hour %d falls in %d windows", h, matches)
		}
	}
}

func TestEvaluateRequiresSameMonthSpan(t *testing.T) {
	d := clock.Delta{Months: 1, Hours: 3}
	if got := Evaluate(d, nil); got != TierNone {
		t.Errorf("Evaluate(months=1) = %d, want none", got)
	}
	d = clock.Delta{Years: 1}
	if got := Evaluate(d, nil); got != TierNone {
		t.Errorf("Evaluate(years=1) = %d, want none", got)
	}
}

func TestEvaluateCombinesDaysAndHours(t *testing.T) {
	d := clock.Delta{Days: 1, Hours: 6, Minutes: 59}
	if got := Evaluate(d, nil); got != Tier1 {
		t.Errorf("Evaluate(1d6h) = %d, want %d", got, Tier1)
	}
	d = clock.Delta{Days: 1}
	if got := Evaluate(d, answered(1)); got != Tier2 {
		t.Errorf("Evaluate(24h) = %d, want %d", got, Tier2)
	}
}

func TestEvaluatePassed(t *testing.T) {
	d := clock.Delta{Years: -1, Months: 11, Days: 30, Hours: 23, Passed: true}
	if got := Evaluate(d, nil); got != TierNone {
		t.Errorf("Evaluate(passed) = %d, want none", got)
	}
}

func TestEvaluateFromClock(t *testing.T) {
	c, err := clock.Parse("2021-03-25T08:00:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, err := c.CompareTo("2021-03-25T11:30:00")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if got := Evaluate(d, answered(1, 2)); got != Tier3 {
		t.Errorf("Evaluate = %d, want %d", got, Tier3)
	}
}
