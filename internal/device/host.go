package device

import (
	"context"
	"log/slog"
	"time"
)

// Idle is a UserInput on which no button is ever pressed.
type Idle struct{}

func (Idle) ReadButtons() Buttons { return Buttons{} }

// LogNotifier writes display text and buzzer changes to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Show(text string, centered bool) {
	n.Logger.Info("display", "text", text, "centered", centered)
}

func (n LogNotifier) Buzz(on bool) {
	n.Logger.Debug("buzzer", "on", on)
}

// NoSensor never captures a fingerprint.
type NoSensor struct{}

func (NoSensor) CaptureAndMatch(time.Duration) (int, bool) { return 0, false }

func (NoSensor) Discard() {}

// FixedBattery reports a constant charge level.
type FixedBattery float64

func (b FixedBattery) Level() float64 { return float64(b) }

// HoldMaintenance logs the requested mode and waits out the hold period.
type HoldMaintenance struct {
	Logger *slog.Logger
}

func (m HoldMaintenance) AccessPoint(ctx context.Context, hold time.Duration) error {
	m.Logger.Info("access point mode", "hold", hold)
	return wait(ctx, hold)
}

func (m HoldMaintenance) Serial(ctx context.Context, hold time.Duration) error {
	m.Logger.Info("serial mode", "hold", hold)
	return wait(ctx, hold)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
