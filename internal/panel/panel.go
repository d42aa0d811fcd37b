// Package panel is a browser-based stand-in for the device front panel. It
// mirrors the display and buzzer over a WebSocket and accepts button
// presses and fingerprint scores from the page.
package panel

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/doccolink/internal/device"
	"github.com/dukerupert/doccolink/internal/middleware"
	"github.com/dukerupert/doccolink/internal/websocket"
)

//go:embed static
var staticFS embed.FS

// Panel implements device.UserInput, device.Notifier and
// device.BiometricSensor.
type Panel struct {
	hub    *websocket.Hub
	logger *slog.Logger

	mu      sync.Mutex
	pressed device.Buttons
	prints  chan int
}

func New(logger *slog.Logger) *Panel {
	p := &Panel{
		logger: logger,
		prints: make(chan int, 1),
	}
	p.hub = websocket.NewHub(logger, p.receive)
	return p
}

// Handler serves the panel page and its WebSocket endpoint.
func (p *Panel) Handler() http.Handler {
	static, _ := fs.Sub(staticFS, "static")
	mux := http.NewServeMux()
	mux.Handle("GET /ws", websocket.HandleWebSocket(p.hub))
	mux.Handle("GET /", http.FileServerFS(static))
	return middleware.RequestLogger(p.logger)(mux)
}

func (p *Panel) receive(m websocket.Message) {
	switch m.Type {
	case websocket.TypeButton:
		p.mu.Lock()
		switch m.Button {
		case "yes":
			p.pressed.Yes = true
		case "no":
			p.pressed.No = true
		case "select":
			p.pressed.Select = true
		default:
			p.logger.Warn("unknown panel button", "button", m.Button)
		}
		p.mu.Unlock()
	case websocket.TypeFingerprint:
		// Only the latest scan counts.
		select {
		case <-p.prints:
		default:
		}
		p.prints <- m.Score
	}
}

// ReadButtons returns the presses received since the last read. Presses
// latch, so a click between two polls is never lost. A latched press also
// reads as held, which means the controller's release wait consumes a click
// made while it waits for the previous button to come up.
func (p *Panel) ReadButtons() device.Buttons {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.pressed
	p.pressed = device.Buttons{}
	return b
}

func (p *Panel) Show(text string, centered bool) {
	p.hub.Broadcast(websocket.ShowMessage(text, centered))
}

func (p *Panel) Buzz(on bool) {
	p.hub.Broadcast(websocket.BuzzMessage(on))
}

// CaptureAndMatch waits up to timeout for a scan submitted from the page.
func (p *Panel) CaptureAndMatch(timeout time.Duration) (int, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case score := <-p.prints:
		return score, true
	case <-t.C:
		return 0, false
	}
}

// Discard drops a scan submitted before the page was asked for one.
func (p *Panel) Discard() {
	select {
	case <-p.prints:
	default:
	}
}

// Clients returns the number of connected pages.
func (p *Panel) Clients() int {
	return p.hub.ClientCount()
}
