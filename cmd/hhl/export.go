package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hedgehog-learn/internal/export"
	"hedgehog-learn/internal/sftpclient"
	"hedgehog-learn/internal/sync"
)

var (
	exportOut    string
	exportUpload bool
)

var exportCmd = &cobra.Command{
	Use:       "export <modules|courses|pathways>",
	Short:     "Write a HubDB table's draft rows to CSV, optionally uploading it over SFTP",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"modules", "courses", "pathways"},
	RunE:      runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default <kind>-export.csv)")
	exportCmd.Flags().BoolVar(&exportUpload, "upload", false, "Upload the file to SFTP_HOST:SFTP_DIR")
}

func sftpConfig() sftpclient.Config {
	return sftpclient.Config{
		Host:                  cfg.SFTPHost,
		Port:                  cfg.SFTPPort,
		User:                  cfg.SFTPUser,
		Pass:                  cfg.SFTPPass,
		RemoteDir:             cfg.SFTPDir,
		KnownHostsFile:        cfg.SFTPKnownHostsFile,
		InsecureIgnoreHostKey: cfg.SFTPInsecureIgnoreHostKey,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	kind, err := sync.ParseKind(args[0])
	if err != nil {
		return err
	}
	tableID := tables()[kind]
	if tableID == "" {
		return fmt.Errorf("no table id configured for %s", kind)
	}
	hub, err := hubspotClient()
	if err != nil {
		return err
	}

	rows, err := hub.ListRows(ctx, tableID)
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		out = string(kind) + "-export.csv"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := export.WriteRowsCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("export written", zap.String("file", out), zap.Int("rows", len(rows)))
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d %s rows -> %s\n", len(rows), kind, out)

	if !exportUpload {
		return nil
	}
	if err := sftpclient.UploadFile(ctx, sftpConfig(), out, filepath.Base(out)); err != nil {
		return err
	}
	logger.Info("export uploaded", zap.String("host", cfg.SFTPHost), zap.String("dir", cfg.SFTPDir))
	return nil
}
