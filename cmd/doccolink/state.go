package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/doccolink/internal/backup"
	"github.com/dukerupert/doccolink/internal/model"
)

var provisionFile string

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Replace the device document with a JSON file",
	Long: `Replace the whole persisted device document with the contents of a JSON
file. The document is validated before anything is written.

Examples:
  doccolink provision --file device.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(provisionFile)
		if err != nil {
			return fmt.Errorf("read document: %w", err)
		}
		var doc model.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}

		db, s, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := s.Import(cmd.Context(), doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "provisioned device %s with %d appointments\n", doc.DeviceInfo.ID, len(doc.Appointments))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the device document as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, s, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s.Export())
	},
}

func newBackupManager() (*backup.Manager, error) {
	m := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
	}, logger.With("component", "backup"), nil)
	if m.Status().State == backup.StateDisabled {
		return nil, fmt.Errorf("backup disabled: set DOCCO_S3_BUCKET, DOCCO_S3_ACCESS_KEY, DOCCO_S3_SECRET_KEY and DOCCO_BACKUP_PASSPHRASE")
	}
	return m, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload an encrypted snapshot of the device document",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newBackupManager()
		if err != nil {
			return err
		}
		db, s, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		doc := s.Export()
		key, err := m.Backup(cmd.Context(), doc)
		if err != nil {
			return err
		}
		removed, err := m.Cleanup(cmd.Context(), doc.DeviceInfo.ID)
		if err != nil {
			logger.Warn("snapshot cleanup", "error", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d old snapshots removed)\n", key, removed)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the device document with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newBackupManager()
		if err != nil {
			return err
		}
		doc, err := m.Restore(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		db, s, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := s.Import(cmd.Context(), doc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
		return nil
	},
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List the stored snapshots of this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newBackupManager()
		if err != nil {
			return err
		}
		db, s, err := loadStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		keys, err := m.List(cmd.Context(), s.DeviceInfo().ID)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

func init() {
	provisionCmd.Flags().StringVarP(&provisionFile, "file", "f", "", "JSON document to import")
	provisionCmd.MarkFlagRequired("file")
}
