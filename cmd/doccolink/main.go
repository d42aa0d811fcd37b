// Package main implements the doccolink device binary: it runs wake cycles
// against the local store and provides provisioning and snapshot commands.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/doccolink/internal/config"
	"github.com/dukerupert/doccolink/internal/database"
	"github.com/dukerupert/doccolink/internal/logging"
	"github.com/dukerupert/doccolink/internal/store"
)

var (
	// version is stamped at build time.
	version = "1.0"

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "doccolink",
	Short: "DoccoLink appointment reminder device",
	Long: `doccolink runs the wake cycle of the DoccoLink reminder device and manages
its persisted state.

Settings come from DOCCO_* environment variables, optionally seeded from a
.env file in the working directory.`,
	Version:       version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

// openStore opens the database and returns an unloaded store over it.
func openStore() (*sql.DB, *store.AppointmentStore, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return db, store.NewAppointmentStore(db), nil
}

// loadStore opens the database and loads the document.
func loadStore(ctx context.Context) (*sql.DB, *store.AppointmentStore, error) {
	db, s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	if err := s.Load(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, s, nil
}
