// Package device declares the board capabilities the wake cycle drives and
// provides host-side implementations of them.
package device

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Buttons is a debounced snapshot of the three front-panel buttons.
type Buttons struct {
	Yes    bool `json:"yes"`
	No     bool `json:"no"`
	Select bool `json:"select"`
}

// Any reports whether at least one button is down.
func (b Buttons) Any() bool {
	return b.Yes || b.No || b.Select
}

func (b Buttons) String() string {
	var names []string
	if b.Yes {
		names = append(names, "yes")
	}
	if b.No {
		names = append(names, "no")
	}
	if b.Select {
		names = append(names, "select")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

// ParseButtons reads a comma or plus separated list such as "yes,no".
// The empty string and "none" mean no button.
func ParseButtons(s string) (Buttons, error) {
	var b Buttons
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return b, nil
	}
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "yes":
			b.Yes = true
		case "no":
			b.No = true
		case "select", "sel":
			b.Select = true
		default:
			return Buttons{}, fmt.Errorf("unknown button %q", name)
		}
	}
	return b, nil
}

// UserInput samples the buttons.
type UserInput interface {
	ReadButtons() Buttons
}

// Notifier drives the display and the buzzer.
type Notifier interface {
	Show(text string, centered bool)
	Buzz(on bool)
}

// BiometricSensor captures a fingerprint and matches it against the
// enrolled patient. ok is false when nothing was captured within timeout.
type BiometricSensor interface {
	CaptureAndMatch(timeout time.Duration) (score int, ok bool)
	// Discard drops any capture taken before the current prompt.
	Discard()
}

// Battery reports the remaining charge in percent.
type Battery interface {
	Level() float64
}

// Maintenance runs the service modes entered from a button combination at
// boot. Each call returns after hold or when ctx is done.
type Maintenance interface {
	AccessPoint(ctx context.Context, hold time.Duration) error
	Serial(ctx context.Context, hold time.Duration) error
}
