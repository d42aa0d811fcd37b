package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukerupert/doccolink/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProvisionAndExport(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DOCCO_DB_PATH", filepath.Join(dir, "device.db"))
	t.Setenv("DOCCO_LOG_LEVEL", "error")

	doc := model.Document{
		DeviceInfo: model.DeviceInfo{ID: "838458", Secret: "heyaedin", FirmwareVersion: "1.0", LastKnownTime: "2021-03-25T08:00:00"},
		WifiParams: []model.WifiNetwork{{SSID: "home", Password: "pw"}},
		Appointments: []model.Appointment{
			{ID: 7, ScheduledAt: "2021-03-26T20:00:00"},
		},
	}
	data, _ := json.Marshal(doc)
	file := filepath.Join(dir, "device.json")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "provision", "--file", file)
	if err != nil {
		t.Fatalf("provision: %v\n%s", err, out)
	}
	if !strings.Contains(out, "provisioned device 838458 with 1 appointments") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "export")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	var got model.Document
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode export %q: %v", out, err)
	}
	if got.DeviceInfo != doc.DeviceInfo {
		t.Errorf("device info = %+v, want %+v", got.DeviceInfo, doc.DeviceInfo)
	}
	if len(got.Appointments) != 1 || got.Appointments[0].ID != 7 {
		t.Errorf("appointments = %+v", got.Appointments)
	}
}

func TestProvisionRejectsBadDocument(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DOCCO_DB_PATH", filepath.Join(dir, "device.db"))
	t.Setenv("DOCCO_LOG_LEVEL", "error")

	file := filepath.Join(dir, "bad.json")
	os.WriteFile(file, []byte(`{"device_info":{"id":"1","last_known_time":"yesterday"}}`), 0o600)

	if _, err := execute(t, "provision", "--file", file); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestBackupRequiresConfiguration(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DOCCO_DB_PATH", filepath.Join(dir, "device.db"))

	_, err := execute(t, "backup")
	if err == nil || !strings.Contains(err.Error(), "backup disabled") {
		t.Errorf("error = %v, want backup disabled", err)
	}
}
