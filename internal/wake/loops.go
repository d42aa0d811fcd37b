package wake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/device"
	"github.com/dukerupert/doccolink/internal/model"
	"github.com/dukerupert/doccolink/internal/reconcile"
	"github.com/dukerupert/doccolink/internal/reminder"
)

// releaseTimeout bounds how long a held button may delay the next prompt.
const releaseTimeout = 2 * time.Second

// poll samples the buttons until pressed reports true for a snapshot, the
// window elapses or ctx is done. The buzzer follows the duty cycle unless
// muted. It returns the pressing snapshot and whether one arrived in time.
func (c *Controller) poll(ctx context.Context, window time.Duration, muted bool, pressed func(device.Buttons) bool) (device.Buttons, bool) {
	src := c.deps.Clock
	start := src.Now()

	buzzer := device.DutyCycle{On: c.cfg.BuzzOn, Off: c.cfg.BuzzOff}
	if !muted && buzzer.Start(start) {
		c.deps.Notifier.Buzz(true)
	}
	defer func() {
		if buzzer.Lit() {
			c.deps.Notifier.Buzz(false)
		}
		buzzer.Stop()
	}()

	for {
		if ctx.Err() != nil {
			return device.Buttons{}, false
		}
		now := src.Now()
		if now.Since(start) >= window {
			return device.Buttons{}, false
		}
		if b := c.deps.Input.ReadButtons(); pressed(b) {
			return b, true
		}
		if on, changed := buzzer.Update(now); changed {
			c.deps.Notifier.Buzz(on)
		}
		src.Wait(c.cfg.PollInterval)
	}
}

// waitRelease returns once no button is held.
func (c *Controller) waitRelease() {
	src := c.deps.Clock
	start := src.Now()
	for c.deps.Input.ReadButtons().Any() && src.Now().Since(start) < releaseTimeout {
		src.Wait(c.cfg.PollInterval)
	}
}

func (c *Controller) muted(cy *cycle) bool {
	return cy.info.QuietHours.Contains(cy.clk.Hour())
}

// confirm prompts for one due tier. A timeout marks the patient absent.
func (c *Controller) confirm(ctx context.Context, cy *cycle, a model.Appointment, tier reminder.Tier) {
	log := cy.logger.With("appointment_id", a.ID, "tier", int(tier))
	c.deps.Notifier.Show(fmt.Sprintf("Appointment %s\n%s\n\nWill you attend?\nYES / NO", tier.Label(), displayTime(a.ScheduledAt)), true)

	b, ok := c.poll(ctx, c.cfg.ResponseWindow, c.muted(cy), func(b device.Buttons) bool {
		return b.Yes || b.No
	})
	if !ok {
		log.Info("no response")
		cy.present = false
		return
	}
	c.waitRelease()

	value := model.AnswerNo
	if b.Yes {
		value = model.AnswerYes
	}
	log.Info("answered", "answer", value.String())

	if !c.verify(ctx, cy) {
		return
	}

	cy.clk.Settle(c.deps.Clock.Now())
	if err := c.deps.Store.AppendAnswer(a.ID, value, cy.clk, int(tier)); err != nil {
		log.Warn("record answer", "error", err)
		return
	}
	cy.out.Recorded++
	c.commit(ctx, cy)
	c.deps.Notifier.Show("Thank you!\n\nYour answer was saved", true)

	if !cy.reachable {
		return
	}
	if err := c.deps.Sync.SendAnswer(ctx, c.deps.Store, cy.id, a.ID, int(tier)); err != nil {
		if errors.Is(err, reconcile.ErrTransport) {
			cy.reachable = false
		}
		log.Warn("answer queued", "error", err)
		return
	}
	cy.out.Sent++
}

// verify runs the fingerprint sub-loop. It returns true on a match above the
// threshold. Select cancels; an elapsed window marks the patient absent.
func (c *Controller) verify(ctx context.Context, cy *cycle) bool {
	src := c.deps.Clock
	start := src.Now()
	c.deps.Sensor.Discard()
	c.deps.Notifier.Show("Place your finger\non the sensor\n\nSELECT to cancel", true)

	for {
		if ctx.Err() != nil || src.Now().Since(start) >= c.cfg.ResponseWindow {
			cy.logger.Info("fingerprint window elapsed")
			cy.present = false
			return false
		}
		if c.deps.Input.ReadButtons().Select {
			c.waitRelease()
			cy.logger.Info("fingerprint cancelled")
			c.deps.Notifier.Show("Cancelled", true)
			return false
		}

		score, ok := c.deps.Sensor.CaptureAndMatch(c.cfg.CaptureTimeout)
		if ok && score >= c.cfg.MatchThreshold {
			return true
		}
		if ok {
			cy.logger.Debug("fingerprint rejected", "score", score)
			c.deps.Notifier.Show("No match\n\nPlace your finger again\nSELECT to cancel", true)
		}
		src.Wait(c.cfg.PollInterval)
	}
}

// ackLoop shows a cancellation until any button is pressed. A timeout
// leaves it pending and marks the patient absent.
func (c *Controller) ackLoop(ctx context.Context, cy *cycle, a model.Appointment) bool {
	c.deps.Notifier.Show(fmt.Sprintf("Appointment CANCELLED\n%s\n\nPress any button", displayTime(a.ScheduledAt)), true)

	if _, ok := c.poll(ctx, c.cfg.ResponseWindow, c.muted(cy), device.Buttons.Any); !ok {
		cy.logger.Info("cancellation not acknowledged", "appointment_id", a.ID)
		cy.present = false
		return false
	}
	c.waitRelease()
	return true
}

func displayTime(ts string) string {
	c, err := clock.Parse(ts)
	if err != nil {
		return ts
	}
	return c.Time().Format("Mon Jan 2 15:04")
}
