package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reply status texts returned by the answer endpoint.
const (
	StatusSent          = "The device message was successfully sent!"
	StatusMalformed     = "Malformed data!"
	StatusUnknownDevice = "The device with the given ID does not exist!"
	StatusWrongPassword = "Wrong device password!"
)

var (
	// ErrOffline covers transport failures and unparseable replies. The
	// cycle continues on local state.
	ErrOffline = errors.New("server unreachable")
	// ErrTransport marks the subset of ErrOffline where no reply arrived.
	ErrTransport = errors.New("transport failure")
	// ErrRejected means the server answered but refused the message.
	ErrRejected = errors.New("server rejected message")
)

type initialRequest struct {
	DeviceID       string  `json:"device_id"`
	DevicePassword string  `json:"device_password"`
	BatteryLevel   float64 `json:"battery_level"`
}

type answerRequest struct {
	DeviceID           string  `json:"device_id"`
	DevicePassword     string  `json:"device_password"`
	AppointmentID      int64   `json:"appointment_id"`
	Answer             *int    `json:"answer"`
	ResponseDateTime   string  `json:"response_date_time"`
	DeviceBatteryLevel float64 `json:"device_battery_level"`
}

type serverTime struct {
	ServerDateTime string `json:"server_date_time"`
}

type appointmentEntry struct {
	Fields appointmentFields `json:"fields"`
}

// appointmentFields is the subset of the server's appointment record the
// device uses. The server has used both id spellings.
type appointmentFields struct {
	AppointmentID    *int64 `json:"appointment_id"`
	AppointmentIDAlt *int64 `json:"appointment_ID"`
	StartDateTime    string `json:"appointment_start_date_time"`
	Cancelled        bool   `json:"cancelled"`
	Answer           *int   `json:"answer"`
}

func (f appointmentFields) id() (int64, bool) {
	if f.AppointmentID != nil {
		return *f.AppointmentID, true
	}
	if f.AppointmentIDAlt != nil {
		return *f.AppointmentIDAlt, true
	}
	return 0, false
}

// Diff is one appointment entry delivered by the initial pull.
type Diff struct {
	ID          int64
	ScheduledAt string
	Cancelled   bool
}

// parseInitial decodes either a bare object carrying server_date_time or an
// array whose head carries server_date_time and whose tail carries
// appointments.
func parseInitial(raw json.RawMessage) (string, []Diff, error) {
	var obj serverTime
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.ServerDateTime == "" {
			return "", nil, fmt.Errorf("reply has no server_date_time")
		}
		return obj.ServerDateTime, nil, nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", nil, fmt.Errorf("decode initial reply: %w", err)
	}
	if len(arr) == 0 {
		return "", nil, fmt.Errorf("empty initial reply")
	}
	if err := json.Unmarshal(arr[0], &obj); err != nil || obj.ServerDateTime == "" {
		return "", nil, fmt.Errorf("reply head has no server_date_time")
	}

	diffs := make([]Diff, 0, len(arr)-1)
	for i, item := range arr[1:] {
		var entry appointmentEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			return "", nil, fmt.Errorf("decode appointment %d: %w", i+1, err)
		}
		id, ok := entry.Fields.id()
		if !ok {
			return "", nil, fmt.Errorf("appointment %d has no id", i+1)
		}
		diffs = append(diffs, Diff{
			ID:          id,
			ScheduledAt: entry.Fields.StartDateTime,
			Cancelled:   entry.Fields.Cancelled,
		})
	}
	return obj.ServerDateTime, diffs, nil
}

// checkStatus interprets the answer endpoint reply.
func checkStatus(r Reply) error {
	if r.Kind != KindText {
		return fmt.Errorf("%w: unexpected %s reply", ErrOffline, r.Kind)
	}
	switch r.Text {
	case StatusSent:
		return nil
	case StatusMalformed, StatusUnknownDevice, StatusWrongPassword:
		return fmt.Errorf("%w: %s", ErrRejected, r.Text)
	}
	return fmt.Errorf("%w: unknown status %q", ErrRejected, r.Text)
}
