package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/doccolink/internal/clock"
	"github.com/dukerupert/doccolink/internal/comms"
	"github.com/dukerupert/doccolink/internal/device"
	"github.com/dukerupert/doccolink/internal/panel"
	"github.com/dukerupert/doccolink/internal/reconcile"
	"github.com/dukerupert/doccolink/internal/wake"
)

var (
	runButtons   string
	runPanelAddr string
	runLoop      bool
	runBattery   float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a wake cycle",
	Long: `Run one wake cycle, as if the device had just woken up.

Examples:
  # Timer wake
  doccolink run

  # Wake by the select button with the browser panel on :8081
  doccolink run --buttons select --panel :8081

  # Access point mode
  doccolink run --buttons yes,no

  # Keep cycling, sleeping between cycles
  doccolink run --loop`,
	RunE: runCycle,
}

func init() {
	runCmd.Flags().StringVar(&runButtons, "buttons", "", "buttons held at boot: yes, no, select (comma separated)")
	runCmd.Flags().StringVar(&runPanelAddr, "panel", "", "serve the browser panel on this address (default DOCCO_PANEL_ADDR)")
	runCmd.Flags().BoolVar(&runLoop, "loop", false, "sleep and run timer cycles until interrupted")
	runCmd.Flags().Float64Var(&runBattery, "battery", -1, "battery level to report (default DOCCO_BATTERY)")
}

func runCycle(cmd *cobra.Command, args []string) error {
	boot, err := device.ParseButtons(runButtons)
	if err != nil {
		return err
	}
	if runPanelAddr == "" {
		runPanelAddr = cfg.PanelAddr
	}
	if runBattery < 0 {
		runBattery = cfg.Battery
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, s, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := comms.NewClient(comms.Config{
		BaseURL:  cfg.ServerURL,
		Timeout:  cfg.HTTPTimeout,
		CertPath: cfg.CertPath,
		KeyPath:  cfg.KeyPath,
		CAPath:   cfg.CAPath,
	})
	if err != nil {
		return err
	}
	engine := reconcile.NewEngine(client, reconcile.Config{
		InitialPath: cfg.InitialPath,
		ReplyPath:   cfg.ReplyPath,
	}, logger.With("component", "reconcile"))

	deps := wake.Deps{
		Store:       s,
		Sync:        engine,
		Clock:       clock.NewSystem(),
		Input:       device.Idle{},
		Notifier:    device.LogNotifier{Logger: logger.With("component", "display")},
		Sensor:      device.NoSensor{},
		Battery:     device.FixedBattery(runBattery),
		Maintenance: device.HoldMaintenance{Logger: logger.With("component", "maintenance")},
	}

	if runPanelAddr != "" {
		p := panel.New(logger.With("component", "panel"))
		deps.Input, deps.Notifier, deps.Sensor = p, p, p

		srv := &http.Server{
			Addr:              runPanelAddr,
			Handler:           p.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("panel listening", "addr", runPanelAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("panel server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	ctrl := wake.NewController(wake.Config{
		SleepDuration:  cfg.SleepDuration,
		ResponseWindow: cfg.ResponseWindow,
		CaptureTimeout: cfg.CaptureTimeout,
		MatchThreshold: cfg.MatchThreshold,
		ModeHold:       cfg.ModeHold,
		PollInterval:   cfg.PollInterval,
		BuzzOn:         cfg.BuzzOn,
		BuzzOff:        cfg.BuzzOff,
	}, deps, logger.With("component", "wake"), nil)

	for {
		out, err := ctrl.Run(ctx, boot)
		if err != nil {
			return fmt.Errorf("wake cycle: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cycle %s: reason=%s synced=%t recorded=%d acknowledged=%d expired=%d sent=%d next_wake=%s\n",
			out.CycleID, out.Reason, out.Synced, out.Recorded, out.Acknowledged, out.Expired, out.Sent, out.NextWake)

		if !runLoop {
			return nil
		}
		t := time.NewTimer(out.NextWake)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		boot = device.Buttons{}
	}
}
