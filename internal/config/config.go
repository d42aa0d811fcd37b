// Package config loads device settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the device binary.
type Config struct {
	DBPath    string
	LogLevel  string
	LogFormat string

	// Server
	ServerURL   string
	InitialPath string
	ReplyPath   string
	HTTPTimeout time.Duration
	CertPath    string
	KeyPath     string
	CAPath      string

	// Wake cycle
	SleepDuration  time.Duration
	ResponseWindow time.Duration
	CaptureTimeout time.Duration
	MatchThreshold int
	ModeHold       time.Duration
	PollInterval   time.Duration
	BuzzOn         time.Duration
	BuzzOff        time.Duration
	Battery        float64

	// Panel simulator
	PanelAddr string

	// Snapshots
	S3Endpoint       string
	S3Bucket         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	BackupPassphrase string
}

// Load reads DOCCO_* variables, first seeding the environment from a .env
// file in the working directory when one exists. Variables already set take
// precedence over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var p parser
	cfg := &Config{
		DBPath:    getEnv("DOCCO_DB_PATH", "doccolink.db"),
		LogLevel:  getEnv("DOCCO_LOG_LEVEL", "info"),
		LogFormat: getEnv("DOCCO_LOG_FORMAT", "text"),

		ServerURL:   getEnv("DOCCO_SERVER_URL", "https://www.doccolink.com"),
		InitialPath: getEnv("DOCCO_INITIAL_PATH", "/getappointments/alpha/v1/"),
		ReplyPath:   getEnv("DOCCO_REPLY_PATH", "/devicemessagehandler/alpha/v1/"),
		HTTPTimeout: p.duration("DOCCO_HTTP_TIMEOUT", 10*time.Second),
		CertPath:    os.Getenv("DOCCO_TLS_CERT"),
		KeyPath:     os.Getenv("DOCCO_TLS_KEY"),
		CAPath:      os.Getenv("DOCCO_TLS_CA"),

		SleepDuration:  time.Duration(p.integer("DOCCO_SLEEP_MINUTES", 60)) * time.Minute,
		ResponseWindow: p.duration("DOCCO_RESPONSE_WINDOW", 60*time.Second),
		CaptureTimeout: p.duration("DOCCO_CAPTURE_TIMEOUT", 10*time.Second),
		MatchThreshold: p.integer("DOCCO_MATCH_THRESHOLD", 50),
		ModeHold:       p.duration("DOCCO_MODE_HOLD", 10*time.Second),
		PollInterval:   p.duration("DOCCO_POLL_INTERVAL", 50*time.Millisecond),
		BuzzOn:         time.Duration(p.integer("DOCCO_BUZZ_ON_MS", 750)) * time.Millisecond,
		BuzzOff:        time.Duration(p.integer("DOCCO_BUZZ_OFF_MS", 5000)) * time.Millisecond,
		Battery:        p.float("DOCCO_BATTERY", 100),

		PanelAddr: os.Getenv("DOCCO_PANEL_ADDR"),

		S3Endpoint:       os.Getenv("DOCCO_S3_ENDPOINT"),
		S3Bucket:         os.Getenv("DOCCO_S3_BUCKET"),
		S3Region:         getEnv("DOCCO_S3_REGION", "us-east-1"),
		S3AccessKey:      os.Getenv("DOCCO_S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("DOCCO_S3_SECRET_KEY"),
		BackupPassphrase: os.Getenv("DOCCO_BACKUP_PASSPHRASE"),
	}
	if p.err != nil {
		return nil, p.err
	}

	// Zero means "use the default" further down, so it is rejected here too.
	positive := []struct {
		key string
		ok  bool
	}{
		{"DOCCO_HTTP_TIMEOUT", cfg.HTTPTimeout > 0},
		{"DOCCO_SLEEP_MINUTES", cfg.SleepDuration > 0},
		{"DOCCO_RESPONSE_WINDOW", cfg.ResponseWindow > 0},
		{"DOCCO_CAPTURE_TIMEOUT", cfg.CaptureTimeout > 0},
		{"DOCCO_MATCH_THRESHOLD", cfg.MatchThreshold > 0},
		{"DOCCO_MODE_HOLD", cfg.ModeHold > 0},
		{"DOCCO_POLL_INTERVAL", cfg.PollInterval > 0},
		{"DOCCO_BUZZ_ON_MS", cfg.BuzzOn > 0},
		{"DOCCO_BUZZ_OFF_MS", cfg.BuzzOff > 0},
	}
	for _, v := range positive {
		if !v.ok {
			return nil, fmt.Errorf("%s must be positive, got %q", v.key, os.Getenv(v.key))
		}
	}
	if cfg.Battery < 0 || cfg.Battery > 100 {
		return nil, fmt.Errorf("DOCCO_BATTERY must be between 0 and 100, got %v", cfg.Battery)
	}
	return cfg, nil
}

// BackupEnabled reports whether snapshot storage is configured.
func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// parser keeps the first conversion error.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *parser) integer(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return n
}

func (p *parser) float(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return f
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return d
}
