package device

import (
	"time"

	"github.com/dukerupert/doccolink/internal/clock"
)

// DutyCycle toggles the buzzer between an on phase and an off phase using
// tick comparisons only, so it can be advanced from any polling loop.
type DutyCycle struct {
	On  time.Duration
	Off time.Duration

	active bool
	lit    bool
	since  clock.Tick
}

// Start begins a cycle at now with the buzzer on.
func (d *DutyCycle) Start(now clock.Tick) bool {
	d.active = true
	d.lit = d.On > 0
	d.since = now
	return d.lit
}

// Stop silences the buzzer.
func (d *DutyCycle) Stop() {
	d.active = false
	d.lit = false
}

// Lit reports whether the buzzer should currently sound.
func (d *DutyCycle) Lit() bool {
	return d.lit
}

// Update advances the cycle to now. changed is true when the buzzer state
// differs from the previous call. Phases missed by a slow caller are skipped.
func (d *DutyCycle) Update(now clock.Tick) (on, changed bool) {
	if !d.active || d.On <= 0 || d.Off <= 0 {
		return d.lit, false
	}
	before := d.lit
	for {
		phase := d.Off
		if d.lit {
			phase = d.On
		}
		if now.Since(d.since) < phase {
			break
		}
		d.since = d.since.Add(phase)
		d.lit = !d.lit
	}
	return d.lit, d.lit != before
}
