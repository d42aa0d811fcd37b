// Package reconcile keeps the local appointment store in step with the
// remote server: it pulls new and cancelled appointments and pushes answers
// until the server acknowledges them.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/model"
	"github.com/dukerupert/doccolink/internal/store"
)

// Store is the part of the appointment store the engine mutates.
type Store interface {
	Add(a model.Appointment) bool
	Cancel(id int64)
	Get(id int64) (model.Appointment, bool)
	MarkAnswerSent(id int64, tier int, sent bool)
	UnsentAnswers() []store.Unsent
	Commit(ctx context.Context) error
}

// Identity is what the device sends with every message.
type Identity struct {
	DeviceID string
	Secret   string
	Battery  float64
}

// Config names the two server endpoints.
type Config struct {
	InitialPath string
	ReplyPath   string
}

// Engine drives the server exchange for one wake cycle.
type Engine struct {
	conn   Connectivity
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates an engine. Empty paths fall back to the production
// endpoints.
func NewEngine(conn Connectivity, cfg Config, logger *slog.Logger) *Engine {
	if cfg.InitialPath == "" {
		cfg.InitialPath = "/getappointments/alpha/v1/"
	}
	if cfg.ReplyPath == "" {
		cfg.ReplyPath = "/devicemessagehandler/alpha/v1/"
	}
	return &Engine{conn: conn, cfg: cfg, logger: logger}
}

// InitialResult carries the authoritative time and appointment entries.
type InitialResult struct {
	ServerTime string
	Diffs      []Diff
}

// InitialSync announces the device and pulls appointment changes. Every
// failure is reported as ErrOffline; the caller keeps its local state.
func (e *Engine) InitialSync(ctx context.Context, id Identity) (*InitialResult, error) {
	reply, err := e.conn.Send(ctx, http.MethodPost, e.cfg.InitialPath, initialRequest{
		DeviceID:       id.DeviceID,
		DevicePassword: id.Secret,
		BatteryLevel:   id.Battery,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initial post: %w: %v", ErrOffline, ErrTransport, err)
	}

	switch reply.Kind {
	case KindJSON:
	case KindText:
		return nil, fmt.Errorf("%w: server said %q", ErrOffline, strings.TrimSpace(reply.Text))
	default:
		return nil, fmt.Errorf("%w: unexpected %s reply", ErrOffline, reply.Kind)
	}

	serverTime, diffs, err := parseInitial(reply.JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOffline, err)
	}
	if _, err := clock.Parse(serverTime); err != nil {
		return nil, fmt.Errorf("%w: server time: %v", ErrOffline, err)
	}
	for _, d := range diffs {
		if _, err := clock.Parse(d.ScheduledAt); err != nil {
			return nil, fmt.Errorf("%w: appointment %d: %v", ErrOffline, d.ID, err)
		}
	}

	e.logger.Info("initial sync", "server_time", serverTime, "entries", len(diffs))
	return &InitialResult{ServerTime: serverTime, Diffs: diffs}, nil
}

// ApplyReport counts what Apply changed.
type ApplyReport struct {
	Added     int
	Cancelled int
	Ignored   int
}

// Apply merges pulled entries into the store. New ids are appended;
// server-side cancellations only flag the local record so the patient can
// still be told about it. The caller commits.
func Apply(s Store, diffs []Diff) ApplyReport {
	var r ApplyReport
	for _, d := range diffs {
		existing, ok := s.Get(d.ID)
		switch {
		case !ok && d.Cancelled:
			r.Ignored++
		case !ok:
			if s.Add(model.Appointment{ID: d.ID, ScheduledAt: d.ScheduledAt}) {
				r.Added++
			} else {
				r.Ignored++
			}
		case d.Cancelled && !existing.Cancelled:
			s.Cancel(d.ID)
			r.Cancelled++
		default:
			r.Ignored++
		}
	}
	return r
}

// SendAnswer posts one recorded answer and marks it sent on
// acknowledgment. Any failure leaves the answer queued.
func (e *Engine) SendAnswer(ctx context.Context, s Store, id Identity, appointmentID int64, tier int) error {
	var target *model.Answer
	for _, u := range s.UnsentAnswers() {
		if u.Appointment.ID == appointmentID && u.Tier == tier {
			if ans, ok := u.Appointment.Answer(tier); ok {
				target = &ans
			}
			break
		}
	}
	if target == nil {
		return nil
	}

	reply, err := e.conn.Send(ctx, http.MethodPost, e.cfg.ReplyPath, answerRequest{
		DeviceID:           id.DeviceID,
		DevicePassword:     id.Secret,
		AppointmentID:      appointmentID,
		Answer:             target.Value.Wire(),
		ResponseDateTime:   target.AnsweredAt,
		DeviceBatteryLevel: id.Battery,
	})
	if err != nil {
		return fmt.Errorf("%w: answer post: %w: %v", ErrOffline, ErrTransport, err)
	}
	reply.Text = strings.TrimSpace(reply.Text)
	if err := checkStatus(reply); err != nil {
		return err
	}

	s.MarkAnswerSent(appointmentID, tier, true)
	if err := s.Commit(ctx); err != nil {
		// The server has the answer; a resend next cycle is harmless.
		return fmt.Errorf("commit sent answer: %w", err)
	}
	return nil
}

// FlushReport counts the outcome of a flush.
type FlushReport struct {
	Sent   int
	Failed int
}

// FlushUnsent sends every queued answer. Failed answers stay queued, so the
// call can be repeated every cycle.
func (e *Engine) FlushUnsent(ctx context.Context, s Store, id Identity) FlushReport {
	var r FlushReport
	for _, u := range s.UnsentAnswers() {
		err := e.SendAnswer(ctx, s, id, u.Appointment.ID, u.Tier)
		if err != nil {
			r.Failed++
			e.logger.Warn("answer not sent", "appointment_id", u.Appointment.ID, "tier", u.Tier, "error", err)
			if errors.Is(err, ErrTransport) && ctx.Err() != nil {
				break
			}
			continue
		}
		r.Sent++
	}
	if r.Sent > 0 || r.Failed > 0 {
		e.logger.Info("flushed answers", "sent", r.Sent, "failed", r.Failed)
	}
	return r
}
