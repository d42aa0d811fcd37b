// Package comms talks to the appointment server over HTTP.
package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/doccolink/internal/reconcile"
)

// Config holds server connection settings. Client certificates are
// optional; without them the default transport is used.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CertPath string
	KeyPath  string
	CAPath   string
}

// maxReplySize bounds how much of a reply body is read.
const maxReplySize = 1 << 20

// Client implements reconcile.Connectivity.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. It fails only when certificate paths are set
// and cannot be loaded.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://docco.link"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := &http.Client{}
	if cfg.CertPath != "" || cfg.KeyPath != "" || cfg.CAPath != "" {
		hc, err := BuildHTTP2Client(cfg.CertPath, cfg.KeyPath, cfg.CAPath)
		if err != nil {
			return nil, fmt.Errorf("build transport: %w", err)
		}
		httpClient = hc
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// Send posts body as JSON and classifies the reply. Transport failures and
// server errors (5xx) are returned as errors.
func (c *Client) Send(ctx context.Context, method, path string, body any) (reconcile.Reply, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return reconcile.Reply{}, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return reconcile.Reply{}, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reconcile.Reply{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return reconcile.Reply{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
	if err != nil {
		return reconcile.Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return Classify(data), nil
}

// Classify sorts a reply body into JSON, text, raw bytes or nothing.
func Classify(data []byte) reconcile.Reply {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return reconcile.Reply{Kind: reconcile.KindNone}
	}
	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return reconcile.Reply{Kind: reconcile.KindJSON, JSON: json.RawMessage(trimmed)}
	}
	if utf8.Valid(data) {
		return reconcile.Reply{Kind: reconcile.KindText, Text: string(data)}
	}
	return reconcile.Reply{Kind: reconcile.KindRaw, Raw: data}
}
