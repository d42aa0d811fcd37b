// Package wake runs one wake cycle of the reminder device: it interprets the
// wake reason, synchronizes with the server, delivers due reminders, collects
// confirmed answers and puts the device back to sleep.
package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/device"
	"github.com/dukerupert/doccolink/internal/model"
	"github.com/dukerupert/doccolink/internal/reconcile"
	"github.com/dukerupert/doccolink/internal/reminder"
)

// Store is the appointment store as seen by the controller.
type Store interface {
	reconcile.Store
	Load(ctx context.Context) error
	DeviceInfo() model.DeviceInfo
	SetLastKnownTime(ts string)
	All() []model.Appointment
	Cancelled() []model.Appointment
	Remove(id int64)
	AppendAnswer(id int64, value model.AnswerValue, c clock.Clock, tier int) error
}

// Syncer exchanges state with the server.
type Syncer interface {
	InitialSync(ctx context.Context, id reconcile.Identity) (*reconcile.InitialResult, error)
	SendAnswer(ctx context.Context, s reconcile.Store, id reconcile.Identity, appointmentID int64, tier int) error
	FlushUnsent(ctx context.Context, s reconcile.Store, id reconcile.Identity) reconcile.FlushReport
}

// Config holds cycle timing. Zero values take the firmware defaults.
type Config struct {
	SleepDuration  time.Duration
	ResponseWindow time.Duration
	CaptureTimeout time.Duration
	MatchThreshold int
	ModeHold       time.Duration
	PollInterval   time.Duration
	BuzzOn         time.Duration
	BuzzOff        time.Duration
}

func (c *Config) setDefaults() {
	if c.SleepDuration == 0 {
		c.SleepDuration = 60 * time.Minute
	}
	if c.ResponseWindow == 0 {
		c.ResponseWindow = 60 * time.Second
	}
	if c.CaptureTimeout == 0 {
		c.CaptureTimeout = 10 * time.Second
	}
	if c.MatchThreshold == 0 {
		c.MatchThreshold = 50
	}
	if c.ModeHold == 0 {
		c.ModeHold = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 50 * time.Millisecond
	}
	if c.BuzzOn == 0 {
		c.BuzzOn = 750 * time.Millisecond
	}
	if c.BuzzOff == 0 {
		c.BuzzOff = 5000 * time.Millisecond
	}
}

// Deps are the capabilities a cycle runs against.
type Deps struct {
	Store       Store
	Sync        Syncer
	Clock       clock.Source
	Input       device.UserInput
	Notifier    device.Notifier
	Sensor      device.BiometricSensor
	Battery     device.Battery
	Maintenance device.Maintenance
}

// Outcome summarizes a finished cycle.
type Outcome struct {
	CycleID  string
	Reason   Reason
	State    State
	NextWake time.Duration
	// Synced is true when the initial server exchange succeeded.
	Synced bool
	// UserPresent is false once an interactive loop timed out.
	UserPresent  bool
	Recorded     int
	Acknowledged int
	Expired      int
	Sent         int
}

// Controller sequences wake cycles.
type Controller struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	callback StatusCallback
}

// NewController creates a controller. cb may be nil.
func NewController(cfg Config, deps Deps, logger *slog.Logger, cb StatusCallback) *Controller {
	cfg.setDefaults()
	return &Controller{cfg: cfg, deps: deps, logger: logger, callback: cb}
}

// cycle is the mutable state of one Run.
type cycle struct {
	logger  *slog.Logger
	clk     clock.Clock
	info    model.DeviceInfo
	id      reconcile.Identity
	out     Outcome
	present bool

	// reachable turns false once a request fails without any reply, so
	// later sends in the same cycle do not wait out another timeout.
	reachable bool
}

// Run executes one wake cycle for the buttons held at boot. It always ends
// in StateSleep unless the persisted state cannot be loaded, in which case
// the error wraps store.ErrMalformedState.
func (c *Controller) Run(ctx context.Context, boot device.Buttons) (Outcome, error) {
	cy := &cycle{present: true, reachable: true}
	cy.out.CycleID = uuid.NewString()
	cy.out.Reason = ReasonFromButtons(boot)
	cy.logger = c.logger.With("cycle", cy.out.CycleID)

	c.transition(cy, StateColdStart)
	if err := c.coldStart(ctx, cy); err != nil {
		cy.logger.Error("cold start failed", "error", err)
		c.deps.Notifier.Show("Device data unreadable\n\nService required", true)
		return cy.out, err
	}
	cy.logger.Info("woke", "reason", cy.out.Reason, "buttons", boot.String(), "clock", cy.clk.String())

	switch cy.out.Reason {
	case AccessPointRequest:
		c.transition(cy, StateApMode)
		c.deps.Notifier.Show("Access Point Mode\n\nConnect to the device wifi\nand open 192.168.4.1", true)
		if err := c.deps.Maintenance.AccessPoint(ctx, c.cfg.ModeHold); err != nil && !errors.Is(err, context.Canceled) {
			cy.logger.Warn("access point mode", "error", err)
		}
	case MaintenanceRequest:
		c.transition(cy, StateUartMode)
		c.deps.Notifier.Show("Serial Mode\n\nConnect the device\nto a computer", true)
		if err := c.deps.Maintenance.Serial(ctx, c.cfg.ModeHold); err != nil && !errors.Is(err, context.Canceled) {
			cy.logger.Warn("serial mode", "error", err)
		}
	default:
		c.transition(cy, StateNormalCycle)
		c.normalCycle(ctx, cy)
	}

	c.sleep(ctx, cy)
	return cy.out, nil
}

func (c *Controller) transition(cy *cycle, s State) {
	cy.out.State = s
	cy.logger.Debug("state", "state", s)
	if c.callback != nil {
		c.callback(s)
	}
}

func (c *Controller) coldStart(ctx context.Context, cy *cycle) error {
	if err := c.deps.Store.Load(ctx); err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	cy.info = c.deps.Store.DeviceInfo()

	clk, err := clock.Parse(cy.info.LastKnownTime)
	if err != nil {
		return fmt.Errorf("parse last known time: %w", err)
	}
	clk.Anchor(c.deps.Clock.Now())
	cy.clk = clk

	cy.id = reconcile.Identity{
		DeviceID: cy.info.ID,
		Secret:   cy.info.Secret,
		Battery:  c.deps.Battery.Level(),
	}

	c.deps.Notifier.Show(fmt.Sprintf("DoccoLink Device\nFirmware V%s", cy.info.FirmwareVersion), true)
	return nil
}

func (c *Controller) normalCycle(ctx context.Context, cy *cycle) {
	if cy.out.Reason == Timer {
		cy.clk.AdvanceBy(c.cfg.SleepDuration)
	}

	c.sync(ctx, cy)
	c.remind(ctx, cy)
	c.acknowledge(ctx, cy)

	if !cy.reachable {
		cy.logger.Info("skipping flush, server unreachable")
		return
	}
	r := c.deps.Sync.FlushUnsent(ctx, c.deps.Store, cy.id)
	cy.out.Sent += r.Sent
}

func (c *Controller) sync(ctx context.Context, cy *cycle) {
	c.deps.Notifier.Show("Checking for appointments...", true)

	res, err := c.deps.Sync.InitialSync(ctx, cy.id)
	if err != nil {
		if errors.Is(err, reconcile.ErrTransport) {
			cy.reachable = false
		}
		cy.logger.Warn("working offline", "error", err)
		c.deps.Notifier.Show("Offline\n\nUsing saved appointments", true)
		return
	}

	clk, err := clock.Parse(res.ServerTime)
	if err != nil {
		cy.logger.Warn("working offline", "error", err)
		return
	}
	clk.Anchor(c.deps.Clock.Now())
	cy.clk = clk
	cy.out.Synced = true

	r := reconcile.Apply(c.deps.Store, res.Diffs)
	cy.logger.Info("applied server changes", "added", r.Added, "cancelled", r.Cancelled, "ignored", r.Ignored)
	c.commit(ctx, cy)
}

// remind walks the appointments in store order, dropping expired ones,
// cancelled or not, and prompting for the first due tier of the rest.
func (c *Controller) remind(ctx context.Context, cy *cycle) {
	for _, a := range c.deps.Store.All() {
		delta, ok := c.expire(ctx, cy, a)
		if !ok || a.Cancelled {
			continue
		}

		tier := reminder.Evaluate(delta, a.Answers)
		if tier == reminder.TierNone || !cy.present {
			continue
		}
		c.confirm(ctx, cy, a, tier)
	}
}

// acknowledge shows each cancelled appointment until the patient presses a
// button.
func (c *Controller) acknowledge(ctx context.Context, cy *cycle) {
	for _, a := range c.deps.Store.Cancelled() {
		if _, ok := c.expire(ctx, cy, a); !ok {
			continue
		}
		if !cy.present {
			continue
		}
		if c.ackLoop(ctx, cy, a) {
			c.deps.Store.Remove(a.ID)
			cy.out.Acknowledged++
			cy.logger.Info("cancellation acknowledged", "appointment_id", a.ID)
			c.commit(ctx, cy)
		}
	}
}

// expire compares a against the clock and removes it when its time has
// passed. ok is false when a was removed or its timestamp is unreadable.
func (c *Controller) expire(ctx context.Context, cy *cycle, a model.Appointment) (delta clock.Delta, ok bool) {
	cy.clk.Settle(c.deps.Clock.Now())

	delta, err := cy.clk.CompareTo(a.ScheduledAt)
	if err != nil {
		cy.logger.Warn("skip appointment", "appointment_id", a.ID, "error", err)
		return delta, false
	}
	if !delta.Passed {
		return delta, true
	}
	c.deps.Store.Remove(a.ID)
	cy.out.Expired++
	cy.logger.Info("appointment expired", "appointment_id", a.ID, "cancelled", a.Cancelled)
	c.commit(ctx, cy)
	return delta, false
}

func (c *Controller) sleep(ctx context.Context, cy *cycle) {
	cy.clk.Settle(c.deps.Clock.Now())
	c.deps.Store.SetLastKnownTime(cy.clk.String())
	c.commit(ctx, cy)

	c.deps.Notifier.Show("", false)
	cy.out.NextWake = c.cfg.SleepDuration
	cy.out.UserPresent = cy.present
	c.transition(cy, StateSleep)
	cy.logger.Info("sleeping",
		"next_wake", cy.out.NextWake,
		"clock", cy.clk.String(),
		"recorded", cy.out.Recorded,
		"acknowledged", cy.out.Acknowledged,
		"expired", cy.out.Expired,
		"sent", cy.out.Sent,
	)
}

// commit persists the document. A failed write is logged; the previous
// document stays intact and the next cycle retries.
func (c *Controller) commit(ctx context.Context, cy *cycle) {
	if err := c.deps.Store.Commit(ctx); err != nil {
		cy.logger.Error("commit store", "error", err)
	}
}
