// Package clock keeps the device's approximate date-time between server
// synchronizations and compares it against appointment timestamps.
package clock

import (
	"fmt"
	"strings"
	"time"
)

const layout = "2006-01-02T15:04:05"

// Clock is a naive (zone-less) date-time plus the monotonic tick captured
// when it was last anchored.
type Clock struct {
	at  time.Time
	ref Tick
}

// Parse reads "YYYY-MM-DDThh:mm:ss[.fff]" or the space separated variant.
// Fractional seconds are dropped.
func Parse(s string) (Clock, error) {
	t, err := parseTimestamp(s)
	if err != nil {
		return Clock{}, err
	}
	return Clock{at: t}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(layout, normalize(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.Truncate(time.Second), nil
}

// normalize zero-pads each date and time component so "2021-3-5 8:0:0.25"
// reads as "2021-03-05T08:00:00.25". Anything it does not recognize is
// returned as is for time.Parse to reject.
func normalize(s string) string {
	date, clk, ok := strings.Cut(s, "T")
	if !ok {
		date, clk, ok = strings.Cut(s, " ")
	}
	if !ok {
		return s
	}
	ymd := strings.Split(date, "-")
	hms := strings.Split(clk, ":")
	if len(ymd) != 3 || len(hms) != 3 {
		return s
	}
	sec, frac, hasFrac := strings.Cut(hms[2], ".")

	out := pad(ymd[0], 4) + "-" + pad(ymd[1], 2) + "-" + pad(ymd[2], 2) +
		"T" + pad(hms[0], 2) + ":" + pad(hms[1], 2) + ":" + pad(sec, 2)
	if hasFrac {
		out += "." + frac
	}
	return out
}

func pad(v string, width int) string {
	if v == "" || len(v) >= width {
		return v
	}
	return strings.Repeat("0", width-len(v)) + v
}

// String returns the zero-padded canonical form, without sub-seconds.
func (c Clock) String() string {
	return c.at.Format(layout)
}

// Time exposes the calendar value. The location is always UTC and carries no
// meaning beyond naive arithmetic.
func (c Clock) Time() time.Time {
	return c.at
}

// Hour returns the hour-of-day component.
func (c Clock) Hour() int {
	return c.at.Hour()
}

// Equal reports whether both clocks show the same second.
func (c Clock) Equal(other Clock) bool {
	return c.at.Equal(other.at)
}

// AdvanceBy moves the clock forward by d, carrying through the real calendar.
func (c *Clock) AdvanceBy(d time.Duration) {
	c.at = c.at.Add(d).Truncate(time.Second)
}

// Anchor records the monotonic tick that corresponds to the current value.
func (c *Clock) Anchor(now Tick) {
	c.ref = now
}

// Settle folds the ticks elapsed since the last anchor into the calendar
// value and re-anchors at now. Sub-second remainders are kept in the anchor
// so repeated settling does not drift.
func (c *Clock) Settle(now Tick) {
	elapsed := now.Since(c.ref)
	if elapsed <= 0 {
		return
	}
	whole := elapsed.Truncate(time.Second)
	c.at = c.at.Add(whole)
	c.ref = c.ref.Add(whole)
}

// Delta is the component-wise signed difference between a timestamp and the
// clock, normalized with cascading borrows.
type Delta struct {
	Years   int
	Months  int
	Days    int
	Hours   int
	Minutes int
	Seconds int

	// Passed is true when the compared timestamp lies before the clock.
	Passed bool
}

// HoursUntil collapses days and hours into a whole-hour count. Minutes and
// seconds are truncated.
func (d Delta) HoursUntil() int {
	return d.Hours + 24*d.Days
}

// monthDays is the assumed month length used when borrowing a day. Reminder
// windows are defined against this approximation, not the true calendar.
const monthDays = 31

// CompareTo returns ts minus the clock.
func (c Clock) CompareTo(ts string) (Delta, error) {
	t, err := parseTimestamp(ts)
	if err != nil {
		return Delta{}, err
	}
	return compare(c.at, t), nil
}

// CompareToClock returns other minus the clock.
func (c Clock) CompareToClock(other Clock) Delta {
	return compare(c.at, other.at)
}

func compare(now, then time.Time) Delta {
	d := Delta{
		Years:   then.Year() - now.Year(),
		Months:  int(then.Month()) - int(now.Month()),
		Days:    then.Day() - now.Day(),
		Hours:   then.Hour() - now.Hour(),
		Minutes: then.Minute() - now.Minute(),
		Seconds: then.Second() - now.Second(),
	}

	if d.Seconds < 0 {
		d.Minutes--
		d.Seconds += 60
	}
	if d.Minutes < 0 {
		d.Hours--
		d.Minutes += 60
	}
	if d.Hours < 0 {
		d.Days--
		d.Hours += 24
	}
	if d.Days < 0 {
		d.Months--
		d.Days += monthDays
	}
	if d.Months < 0 {
		d.Years--
		d.Months += 12
	}

	d.Passed = d.Years < 0 || d.Months < 0 || d.Days < 0 ||
		d.Hours < 0 || d.Minutes < 0 || d.Seconds < 0
	return d
}
