package model

// QuietHours is an hour-of-day range during which the buzzer stays silent.
// The range wraps midnight when Start > End; Start == End disables it.
type QuietHours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls inside the quiet range.
func (q QuietHours) Contains(hour int) bool {
	if q.Start == q.End {
		return false
	}
	if q.Start < q.End {
		return hour >= q.Start && hour < q.End
	}
	return hour >= q.Start || hour < q.End
}

type DeviceInfo struct {
	ID              string     `json:"id"`
	Secret          string     `json:"secret"`
	FirmwareVersion string     `json:"firmware_version"`
	LastKnownTime   string     `json:"last_known_time"`
	QuietHours      QuietHours `json:"quiet_hours"`
}

type WifiNetwork struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Document is the complete persisted device state.
type Document struct {
	DeviceInfo   DeviceInfo    `json:"device_info"`
	WifiParams   []WifiNetwork `json:"wifi_params"`
	Appointments []Appointment `json:"appointments"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	c := Document{DeviceInfo: d.DeviceInfo}
	if d.WifiParams != nil {
		c.WifiParams = make([]WifiNetwork, len(d.WifiParams))
		copy(c.WifiParams, d.WifiParams)
	}
	if d.Appointments != nil {
		c.Appointments = make([]Appointment, len(d.Appointments))
		for i, a := range d.Appointments {
			c.Appointments[i] = a.Clone()
		}
	}
	return c
}
