package clock

import "time"

// Tick is a wrapping millisecond counter, the only time base available
// between synchronizations.
type Tick uint32

// Since returns the time elapsed from earlier to t. The subtraction is done
// modulo 2^32 so a single wraparound between the two samples is harmless.
func (t Tick) Since(earlier Tick) time.Duration {
	return time.Duration(int32(t-earlier)) * time.Millisecond
}

// Add returns t advanced by d, wrapping as the counter does.
func (t Tick) Add(d time.Duration) Tick {
	return t + Tick(uint32(d/time.Millisecond))
}

// Source is the monotonic time capability of the board.
type Source interface {
	// Now returns the current tick.
	Now() Tick
	// SinceBoot returns the time elapsed since the process started.
	SinceBoot() time.Duration
	// Wait yields for roughly d. Polling loops call it between samples.
	Wait(d time.Duration)
}

// System is a Source backed by the host's monotonic clock.
type System struct {
	boot time.Time
}

// NewSystem returns a Source whose tick zero is the moment of the call.
func NewSystem() *System {
	return &System{boot: time.Now()}
}

func (s *System) Now() Tick {
	return Tick(uint32(time.Since(s.boot) / time.Millisecond))
}

func (s *System) SinceBoot() time.Duration {
	return time.Since(s.boot)
}

func (s *System) Wait(d time.Duration) {
	time.Sleep(d)
}

// Manual is a Source driven by hand. Every Wait advances the counter, which
// lets bounded polling loops run to completion in tests without real time.
type Manual struct {
	now Tick
}

func (m *Manual) Now() Tick {
	return m.now
}

func (m *Manual) SinceBoot() time.Duration {
	return time.Duration(m.now) * time.Millisecond
}

func (m *Manual) Wait(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set moves the counter to an absolute value.
func (m *Manual) Set(t Tick) {
	m.now = t
}
