package wake

import "github.com/dukerupert/doccolink/internal/device"

// Reason is why the device woke up.
type Reason int

const (
	Timer Reason = iota
	UserButton
	AccessPointRequest
	MaintenanceRequest
)

func (r Reason) String() string {
	switch r {
	case Timer:
		return "timer"
	case UserButton:
		return "user_button"
	case AccessPointRequest:
		return "access_point_request"
	case MaintenanceRequest:
		return "maintenance_request"
	}
	return "unknown"
}

// ReasonFromButtons maps the buttons held at boot to a wake reason. No
// button means the sleep timer fired.
func ReasonFromButtons(b device.Buttons) Reason {
	switch {
	case b.Yes && b.No && b.Select:
		return MaintenanceRequest
	case b.Yes && b.No:
		return AccessPointRequest
	case !b.Any():
		return Timer
	}
	return UserButton
}

// State is a step of the wake cycle.
type State string

const (
	StateColdStart   State = "cold_start"
	StateApMode      State = "ap_mode"
	StateUartMode    State = "uart_mode"
	StateNormalCycle State = "normal_cycle"
	StateSleep       State = "sleep"
)

// StatusCallback is called on every state transition.
type StatusCallback func(State)
