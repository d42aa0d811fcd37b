package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/model"
)

var (
	// ErrMalformedState means the persisted document could not be read back.
	// There is no recovery path; the boot cycle must stop.
	ErrMalformedState = errors.New("malformed persisted state")
	// ErrTierAnswered is returned when a tier already holds an answer.
	ErrTierAnswered = errors.New("tier already answered")
	// ErrInvalidTier is returned for tiers outside 1..3.
	ErrInvalidTier = errors.New("invalid reminder tier")
	// ErrNotLoaded is returned by Commit before Load or Import.
	ErrNotLoaded = errors.New("store not loaded")
)

// Unsent identifies one answer still waiting for server acknowledgment.
type Unsent struct {
	Appointment model.Appointment
	Tier        int
	// HighestTier is the highest tier answered for the appointment.
	HighestTier int
}

// AppointmentStore owns the in-memory device document. Mutators only touch
// memory; Commit writes the whole document in a single transaction so an
// interrupted write leaves the previous document intact.
type AppointmentStore struct {
	db     *sql.DB
	doc    model.Document
	loaded bool
}

func NewAppointmentStore(db *sql.DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

// Load reads the full document. Any inconsistency is reported as
// ErrMalformedState.
func (s *AppointmentStore) Load(ctx context.Context) error {
	doc, err := s.read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	s.doc = doc
	s.loaded = true
	return nil
}

func (s *AppointmentStore) read(ctx context.Context) (model.Document, error) {
	var doc model.Document

	err := s.db.QueryRowContext(ctx,
		`SELECT device_id, secret, firmware_version, last_known_time, quiet_start, quiet_end FROM device_info WHERE id = 1`,
	).Scan(&doc.DeviceInfo.ID, &doc.DeviceInfo.Secret, &doc.DeviceInfo.FirmwareVersion,
		&doc.DeviceInfo.LastKnownTime, &doc.DeviceInfo.QuietHours.Start, &doc.DeviceInfo.QuietHours.End)
	if err == sql.ErrNoRows {
		return doc, fmt.Errorf("device info missing")
	}
	if err != nil {
		return doc, fmt.Errorf("read device info: %w", err)
	}
	if _, err := clock.Parse(doc.DeviceInfo.LastKnownTime); err != nil {
		return doc, fmt.Errorf("last known time: %w", err)
	}

	wifi, err := s.readWifi(ctx)
	if err != nil {
		return doc, err
	}
	doc.WifiParams = wifi

	appts, err := s.readAppointments(ctx)
	if err != nil {
		return doc, err
	}
	doc.Appointments = appts
	return doc, nil
}

func (s *AppointmentStore) readWifi(ctx context.Context) ([]model.WifiNetwork, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ssid, password FROM wifi_networks ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list wifi networks: %w", err)
	}
	defer rows.Close()

	var nets []model.WifiNetwork
	for rows.Next() {
		var n model.WifiNetwork
		if err := rows.Scan(&n.SSID, &n.Password); err != nil {
			return nil, fmt.Errorf("scan wifi network: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, rows.Err()
}

func (s *AppointmentStore) readAppointments(ctx context.Context) ([]model.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scheduled_at, cancelled, removed FROM appointments ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appts []model.Appointment
	index := make(map[int64]int)
	for rows.Next() {
		var a model.Appointment
		var cancelled, removed int
		if err := rows.Scan(&a.ID, &a.ScheduledAt, &cancelled, &removed); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		if _, err := clock.Parse(a.ScheduledAt); err != nil {
			return nil, fmt.Errorf("appointment %d: %w", a.ID, err)
		}
		a.Cancelled = cancelled != 0
		a.Removed = removed != 0
		index[a.ID] = len(appts)
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ansRows, err := s.db.QueryContext(ctx,
		`SELECT appointment_id, tier, value, answered_at, sent FROM answers ORDER BY appointment_id, tier`)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer ansRows.Close()

	for ansRows.Next() {
		var id int64
		var ans model.Answer
		var value string
		var sent int
		if err := ansRows.Scan(&id, &ans.Tier, &value, &ans.AnsweredAt, &sent); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		if ans.Value, err = model.ParseAnswerValue(value); err != nil {
			return nil, fmt.Errorf("answer for appointment %d: %w", id, err)
		}
		ans.Sent = sent != 0
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("answer references unknown appointment %d", id)
		}
		appts[i].Answers = append(appts[i].Answers, ans)
	}
	return appts, ansRows.Err()
}

// Commit writes the whole in-memory document in one transaction.
func (s *AppointmentStore) Commit(ctx context.Context) error {
	if !s.loaded {
		return ErrNotLoaded
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	if err := writeDocument(ctx, tx, s.doc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

func writeDocument(ctx context.Context, tx *sql.Tx, doc model.Document) error {
	info := doc.DeviceInfo
	_, err := tx.ExecContext(ctx,
		`INSERT INTO device_info (id, device_id, secret, firmware_version, last_known_time, quiet_start, quiet_end)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET device_id = excluded.device_id, secret = excluded.secret,
		   firmware_version = excluded.firmware_version, last_known_time = excluded.last_known_time,
		   quiet_start = excluded.quiet_start, quiet_end = excluded.quiet_end, updated_at = CURRENT_TIMESTAMP`,
		info.ID, info.Secret, info.FirmwareVersion, info.LastKnownTime, info.QuietHours.Start, info.QuietHours.End,
	)
	if err != nil {
		return fmt.Errorf("write device info: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM wifi_networks`); err != nil {
		return fmt.Errorf("clear wifi networks: %w", err)
	}
	for i, n := range doc.WifiParams {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wifi_networks (position, ssid, password) VALUES (?, ?, ?)`, i, n.SSID, n.Password,
		); err != nil {
			return fmt.Errorf("write wifi network: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers`); err != nil {
		return fmt.Errorf("clear answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments`); err != nil {
		return fmt.Errorf("clear appointments: %w", err)
	}
	for i, a := range doc.Appointments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO appointments (id, position, scheduled_at, cancelled, removed) VALUES (?, ?, ?, ?, ?)`,
			a.ID, i, a.ScheduledAt, boolInt(a.Cancelled), boolInt(a.Removed),
		); err != nil {
			return fmt.Errorf("write appointment %d: %w", a.ID, err)
		}
		for _, ans := range a.Answers {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO answers (appointment_id, tier, value, answered_at, sent) VALUES (?, ?, ?, ?, ?)`,
				a.ID, ans.Tier, ans.Value.String(), ans.AnsweredAt, boolInt(ans.Sent),
			); err != nil {
				return fmt.Errorf("write answer %d/%d: %w", a.ID, ans.Tier, err)
			}
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Import replaces the whole document and commits it.
func (s *AppointmentStore) Import(ctx context.Context, doc model.Document) error {
	if _, err := clock.Parse(doc.DeviceInfo.LastKnownTime); err != nil {
		return fmt.Errorf("import: last known time: %w", err)
	}
	for _, a := range doc.Appointments {
		if _, err := clock.Parse(a.ScheduledAt); err != nil {
			return fmt.Errorf("import: appointment %d: %w", a.ID, err)
		}
	}
	prev, prevLoaded := s.doc, s.loaded
	s.doc = doc.Clone()
	s.loaded = true
	if err := s.Commit(ctx); err != nil {
		s.doc, s.loaded = prev, prevLoaded
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

// Export returns a deep copy of the document.
func (s *AppointmentStore) Export() model.Document {
	return s.doc.Clone()
}

func (s *AppointmentStore) DeviceInfo() model.DeviceInfo {
	return s.doc.DeviceInfo
}

func (s *AppointmentStore) SetLastKnownTime(ts string) {
	s.doc.DeviceInfo.LastKnownTime = ts
}

func (s *AppointmentStore) WifiNetworks() []model.WifiNetwork {
	out := make([]model.WifiNetwork, len(s.doc.WifiParams))
	copy(out, s.doc.WifiParams)
	return out
}

func (s *AppointmentStore) find(id int64) *model.Appointment {
	for i := range s.doc.Appointments {
		if s.doc.Appointments[i].ID == id {
			return &s.doc.Appointments[i]
		}
	}
	return nil
}

// Add appends an appointment. A duplicate id is ignored and reported false.
func (s *AppointmentStore) Add(a model.Appointment) bool {
	if s.find(a.ID) != nil {
		return false
	}
	s.doc.Appointments = append(s.doc.Appointments, a.Clone())
	return true
}

// Remove deletes an appointment. Records still holding unacknowledged
// answers are only marked removed; MarkAnswerSent purges them once the last
// answer is acknowledged. Unknown ids are ignored.
func (s *AppointmentStore) Remove(id int64) {
	a := s.find(id)
	if a == nil {
		return
	}
	if a.HasUnsent() {
		a.Removed = true
		return
	}
	s.purge(id)
}

func (s *AppointmentStore) purge(id int64) {
	appts := s.doc.Appointments[:0]
	for _, a := range s.doc.Appointments {
		if a.ID != id {
			appts = append(appts, a)
		}
	}
	s.doc.Appointments = appts
}

// Cancel flags an appointment as cancelled by the server.
func (s *AppointmentStore) Cancel(id int64) {
	if a := s.find(id); a != nil {
		a.Cancelled = true
	}
}

// Get returns a visible appointment by id.
func (s *AppointmentStore) Get(id int64) (model.Appointment, bool) {
	a := s.find(id)
	if a == nil || a.Removed {
		return model.Appointment{}, false
	}
	return a.Clone(), true
}

// All returns visible appointments in store order.
func (s *AppointmentStore) All() []model.Appointment {
	var out []model.Appointment
	for _, a := range s.doc.Appointments {
		if !a.Removed {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Cancelled returns visible appointments awaiting cancellation acknowledgment.
func (s *AppointmentStore) Cancelled() []model.Appointment {
	var out []model.Appointment
	for _, a := range s.doc.Appointments {
		if a.Cancelled && !a.Removed {
			out = append(out, a.Clone())
		}
	}
	return out
}

// AppendAnswer records an answer for tier, stamped with the clock and
// queued as unsent. Unknown ids are ignored.
func (s *AppointmentStore) AppendAnswer(id int64, value model.AnswerValue, c clock.Clock, tier int) error {
	if tier < model.Tier1 || tier > model.Tier3 {
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	a := s.find(id)
	if a == nil {
		return nil
	}
	if _, ok := a.Answer(tier); ok {
		return fmt.Errorf("appointment %d: %w: %d", id, ErrTierAnswered, tier)
	}

	ans := model.Answer{Value: value, AnsweredAt: c.String(), Tier: tier}
	pos := len(a.Answers)
	for i, existing := range a.Answers {
		if existing.Tier > tier {
			pos = i
			break
		}
	}
	a.Answers = append(a.Answers, model.Answer{})
	copy(a.Answers[pos+1:], a.Answers[pos:])
	a.Answers[pos] = ans
	return nil
}

// MarkAnswerSent sets the acknowledgment flag of one answer.
func (s *AppointmentStore) MarkAnswerSent(id int64, tier int, sent bool) {
	a := s.find(id)
	if a == nil {
		return
	}
	for i := range a.Answers {
		if a.Answers[i].Tier == tier {
			a.Answers[i].Sent = sent
		}
	}
	if a.Removed && !a.HasUnsent() {
		s.purge(id)
	}
}

// UnsentAnswers lists every unacknowledged answer in store order, lowest
// tier first within an appointment.
func (s *AppointmentStore) UnsentAnswers() []Unsent {
	var out []Unsent
	for _, a := range s.doc.Appointments {
		highest := a.HighestTier()
		for _, ans := range a.Answers {
			if !ans.Sent {
				out = append(out, Unsent{Appointment: a.Clone(), Tier: ans.Tier, HighestTier: highest})
			}
		}
	}
	return out
}
