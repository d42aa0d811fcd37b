// Package backup stores encrypted snapshots of the device document in
// S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/doccolink/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
	// Keep is how many snapshots per device Cleanup retains.
	Keep int
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	LastKey    string     `json:"last_key,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager uploads and restores encrypted document snapshots.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	client   s3Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a new backup manager. It is disabled unless the bucket,
// credentials and passphrase are all set.
func NewManager(cfg Config, logger *slog.Logger, callback StatusCallback) *Manager {
	if cfg.Keep == 0 {
		cfg.Keep = 10
	}
	m := &Manager{
		cfg:      cfg,
		callback: callback,
		logger:   logger,
		status:   Status{State: StateDisabled},
		now:      time.Now,
	}

	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}

	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) clientOrErr() (s3Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, fmt.Errorf("backup not configured: S3 settings or passphrase missing")
	}
	return m.client, nil
}

func prefix(deviceID string) string {
	return deviceID + "/"
}

// Backup encrypts doc and uploads it as <device>/snapshot-<utc>.json.enc.
// It returns the object key.
func (m *Manager) Backup(ctx context.Context, doc model.Document) (string, error) {
	client, err := m.clientOrErr()
	if err != nil {
		return "", err
	}

	m.setStatus(Status{State: StateRunning})

	plaintext, err := json.Marshal(doc)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", fmt.Errorf("marshal document: %w", err)
	}
	sealed, err := EncryptBytes(plaintext, m.cfg.Passphrase)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", fmt.Errorf("encrypt: %w", err)
	}

	now := m.now().UTC()
	key := fmt.Sprintf("%ssnapshot-%s.json.enc", prefix(doc.DeviceInfo.ID), now.Format("2006-01-02T150405Z"))

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	m.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: key})
	m.logger.Info("snapshot uploaded", "key", key, "bytes", len(sealed))
	return key, nil
}

// Restore downloads and decrypts the snapshot stored under key.
func (m *Manager) Restore(ctx context.Context, key string) (model.Document, error) {
	client, err := m.clientOrErr()
	if err != nil {
		return model.Document{}, err
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.Document{}, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	sealed, err := io.ReadAll(result.Body)
	if err != nil {
		return model.Document{}, fmt.Errorf("read snapshot: %w", err)
	}
	plaintext, err := DecryptBytes(sealed, m.cfg.Passphrase)
	if err != nil {
		return model.Document{}, err
	}

	var doc model.Document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return model.Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return doc, nil
}

// List returns the snapshot keys of a device, oldest first.
func (m *Manager) List(ctx context.Context, deviceID string) ([]string, error) {
	client, err := m.clientOrErr()
	if err != nil {
		return nil, err
	}

	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Prefix: aws.String(prefix(deviceID)),
	}
	for {
		out, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json.enc") {
				keys = append(keys, k)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}
	// Timestamped names sort chronologically.
	sort.Strings(keys)
	return keys, nil
}

// Cleanup deletes all but the newest Keep snapshots of a device.
func (m *Manager) Cleanup(ctx context.Context, deviceID string) (int, error) {
	client, err := m.clientOrErr()
	if err != nil {
		return 0, err
	}
	keys, err := m.List(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if len(keys) <= m.cfg.Keep {
		return 0, nil
	}

	stale := keys[:len(keys)-m.cfg.Keep]
	for i, key := range stale {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return i, fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return len(stale), nil
}
