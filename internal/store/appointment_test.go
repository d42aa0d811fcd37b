package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/database"
	"github.com/dukerupert/doccolink/internal/model"
)

func baseDocument() model.Document {
	return model.Document{
		DeviceInfo: model.DeviceInfo{
			ID:              "838458",
			Secret:          "heyaedin",
			FirmwareVersion: "1.0",
			LastKnownTime:   "2021-03-25T08:00:00",
			QuietHours:      model.QuietHours{Start: 22, End: 7},
		},
		WifiParams: []model.WifiNetwork{{SSID: "home", Password: "secret"}},
	}
}

func setupAppointmentStore(t *testing.T) *AppointmentStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewAppointmentStore(db)
	if err := s.Import(context.Background(), baseDocument()); err != nil {
		t.Fatalf("import base document: %v", err)
	}
	return s
}

// reload opens a second store over the same database, as the next boot would.
func reload(t *testing.T, s *AppointmentStore) *AppointmentStore {
	t.Helper()
	fresh := NewAppointmentStore(s.db)
	if err := fresh.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return fresh
}

func testClock(t *testing.T) clock.Clock {
	t.Helper()
	c, err := clock.Parse("2021-03-25T09:15:00")
	if err != nil {
		t.Fatalf("parse clock: %v", err)
	}
	return c
}

func TestLoadEmptyDatabaseIsMalformed(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	s := NewAppointmentStore(db)
	err = s.Load(context.Background())
	if !errors.Is(err, ErrMalformedState) {
		t.Errorf("Load error = %v, want ErrMalformedState", err)
	}
}

func TestLoadRejectsBadTimestamp(t *testing.T) {
	s := setupAppointmentStore(t)
	if _, err := s.db.Exec(`INSERT INTO appointments (id, position, scheduled_at) VALUES (7, 0, 'not a date')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := NewAppointmentStore(s.db).Load(context.Background())
	if !errors.Is(err, ErrMalformedState) {
		t.Errorf("Load error = %v, want ErrMalformedState", err)
	}
}

func TestCommitBeforeLoad(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()

	if err := NewAppointmentStore(db).Commit(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Commit error = %v, want ErrNotLoaded", err)
	}
}

func TestAppointmentCRUD(t *testing.T) {
	ctx := context.Background()
	s := setupAppointmentStore(t)

	if !s.Add(model.Appointment{ID: 1, ScheduledAt: "2021-03-26T12:00:00"}) {
		t.Fatal("expected first add to succeed")
	}
	if !s.Add(model.Appointment{ID: 2, ScheduledAt: "2021-03-30T12:00:00"}) {
		t.Fatal("expected second add to succeed")
	}
	if s.Add(model.Appointment{ID: 1, ScheduledAt: "2021-04-01T00:00:00"}) {
		t.Error("duplicate id should not be added")
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s = reload(t, s)
	all := s.All()
	if len(all) != 2 {
		t.Fatalf("len(All) = %d, want 2", len(all))
	}
	if all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("order = [%d %d], want [1 2]", all[0].ID, all[1].ID)
	}
	if all[0].ScheduledAt != "2021-03-26T12:00:00" {
		t.Errorf("scheduled_at = %q, want original value", all[0].ScheduledAt)
	}

	s.Cancel(2)
	s.Cancel(99)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	s = reload(t, s)
	cancelled := s.Cancelled()
	if len(cancelled) != 1 || cancelled[0].ID != 2 {
		t.Fatalf("Cancelled = %+v, want only id 2", cancelled)
	}

	s.Remove(1)
	s.Remove(99)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	s = reload(t, s)
	if _, ok := s.Get(1); ok {
		t.Error("expected appointment 1 removed")
	}
	if _, ok := s.Get(2); !ok {
		t.Error("expected appointment 2 to remain")
	}
}

func TestAddThenRemoveRestoresSet(t *testing.T) {
	ctx := context.Background()
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 10, ScheduledAt: "2021-03-26T12:00:00"})
	s.Add(model.Appointment{ID: 11, ScheduledAt: "2021-03-27T12:00:00", Cancelled: true})
	if err := s.AppendAnswer(10, model.AnswerYes, testClock(t), model.Tier1); err != nil {
		t.Fatalf("append answer: %v", err)
	}
	s.MarkAnswerSent(10, model.Tier1, true)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before := reload(t, s).Export()

	s.Add(model.Appointment{ID: 12, ScheduledAt: "2021-03-28T12:00:00"})
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	s.Remove(12)
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	after := reload(t, s).Export()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("document changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestCommitPreservesDeviceInfo(t *testing.T) {
	ctx := context.Background()
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 3, ScheduledAt: "2021-03-26T12:00:00"})
	s.SetLastKnownTime("2021-03-25T10:00:00")
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s = reload(t, s)
	info := s.DeviceInfo()
	if info.ID != "838458" || info.Secret != "heyaedin" {
		t.Errorf("device identity = %q/%q, want preserved", info.ID, info.Secret)
	}
	if info.LastKnownTime != "2021-03-25T10:00:00" {
		t.Errorf("last_known_time = %q, want %q", info.LastKnownTime, "2021-03-25T10:00:00")
	}
	if info.QuietHours != (model.QuietHours{Start: 22, End: 7}) {
		t.Errorf("quiet hours = %+v, want 22-7", info.QuietHours)
	}
	wifi := s.WifiNetworks()
	if len(wifi) != 1 || wifi[0].SSID != "home" {
		t.Errorf("wifi = %+v, want home network", wifi)
	}
}

func TestAppendAnswer(t *testing.T) {
	ctx := context.Background()
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 5, ScheduledAt: "2021-03-26T12:00:00"})

	if err := s.AppendAnswer(5, model.AnswerNo, testClock(t), model.Tier2); err != nil {
		t.Fatalf("append tier 2: %v", err)
	}
	if err := s.AppendAnswer(5, model.AnswerYes, testClock(t), model.Tier1); err != nil {
		t.Fatalf("append tier 1: %v", err)
	}
	err := s.AppendAnswer(5, model.AnswerYes, testClock(t), model.Tier2)
	if !errors.Is(err, ErrTierAnswered) {
		t.Errorf("duplicate tier error = %v, want ErrTierAnswered", err)
	}
	if err := s.AppendAnswer(5, model.AnswerYes, testClock(t), 4); !errors.Is(err, ErrInvalidTier) {
		t.Errorf("tier 4 error = %v, want ErrInvalidTier", err)
	}
	if err := s.AppendAnswer(404, model.AnswerYes, testClock(t), model.Tier1); err != nil {
		t.Errorf("unknown id error = %v, want nil", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s = reload(t, s)
	a, ok := s.Get(5)
	if !ok {
		t.Fatal("appointment 5 missing")
	}
	if len(a.Answers) != 2 {
		t.Fatalf("len(answers) = %d, want 2", len(a.Answers))
	}
	if a.Answers[0].Tier != 1 || a.Answers[1].Tier != 2 {
		t.Errorf("tiers = [%d %d], want [1 2]", a.Answers[0].Tier, a.Answers[1].Tier)
	}
	if a.Answers[1].Value != model.AnswerNo {
		t.Errorf("tier 2 value = %v, want no", a.Answers[1].Value)
	}
	if a.Answers[0].AnsweredAt != "2021-03-25T09:15:00" {
		t.Errorf("answered_at = %q, want clock value", a.Answers[0].AnsweredAt)
	}
	if a.Answers[0].Sent || a.Answers[1].Sent {
		t.Error("new answers must start unsent")
	}
}

func TestUnsentAnswersAndMarkSent(t *testing.T) {
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 1, ScheduledAt: "2021-03-26T12:00:00"})
	s.Add(model.Appointment{ID: 2, ScheduledAt: "2021-03-27T12:00:00"})
	s.AppendAnswer(2, model.AnswerYes, testClock(t), model.Tier1)
	s.AppendAnswer(1, model.AnswerYes, testClock(t), model.Tier1)
	s.AppendAnswer(1, model.AnswerNo, testClock(t), model.Tier2)

	unsent := s.UnsentAnswers()
	if len(unsent) != 3 {
		t.Fatalf("len(unsent) = %d, want 3", len(unsent))
	}
	got := [][2]int64{}
	for _, u := range unsent {
		got = append(got, [2]int64{u.Appointment.ID, int64(u.Tier)})
	}
	want := [][2]int64{{1, 1}, {1, 2}, {2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unsent = %v, want %v", got, want)
	}
	if unsent[0].HighestTier != 2 {
		t.Errorf("highest tier = %d, want 2", unsent[0].HighestTier)
	}

	s.MarkAnswerSent(1, model.Tier1, true)
	s.MarkAnswerSent(404, model.Tier1, true)
	if n := len(s.UnsentAnswers()); n != 2 {
		t.Errorf("len(unsent) after mark = %d, want 2", n)
	}
}

func TestRemoveKeepsUnsentAnswers(t *testing.T) {
	ctx := context.Background()
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 42, ScheduledAt: "2021-03-26T12:00:00"})
	s.AppendAnswer(42, model.AnswerYes, testClock(t), model.Tier1)

	s.Remove(42)
	if _, ok := s.Get(42); ok {
		t.Error("removed appointment should be hidden")
	}
	if len(s.All()) != 0 {
		t.Error("removed appointment should not be listed")
	}
	if n := len(s.UnsentAnswers()); n != 1 {
		t.Fatalf("len(unsent) = %d, want 1", n)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	s = reload(t, s)
	if n := len(s.UnsentAnswers()); n != 1 {
		t.Fatalf("len(unsent) after reload = %d, want 1", n)
	}

	s.MarkAnswerSent(42, model.Tier1, true)
	if n := len(s.Export().Appointments); n != 0 {
		t.Errorf("appointments after ack = %d, want 0", n)
	}
}

func TestImportRejectsBadDocument(t *testing.T) {
	s := setupAppointmentStore(t)
	doc := baseDocument()
	doc.Appointments = []model.Appointment{{ID: 1, ScheduledAt: "soon"}}
	if err := s.Import(context.Background(), doc); err == nil {
		t.Fatal("expected import error")
	}
	if n := len(s.All()); n != 0 {
		t.Errorf("store changed after failed import: %d appointments", n)
	}
}

func TestExportIsDeepCopy(t *testing.T) {
	s := setupAppointmentStore(t)
	s.Add(model.Appointment{ID: 1, ScheduledAt: "2021-03-26T12:00:00"})
	s.AppendAnswer(1, model.AnswerYes, testClock(t), model.Tier1)

	doc := s.Export()
	doc.Appointments[0].Answers[0].Sent = true
	if len(s.UnsentAnswers()) != 1 {
		t.Error("mutating an export changed the store")
	}
}
