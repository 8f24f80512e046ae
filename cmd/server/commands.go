package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/feichai0017/pdf-rag/internal/vectorstore"
)

func newCleanupCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove documents older than the retention window",
		Long: `Remove documents whose last status change is older than --max-age,
together with their vector stores. Run it while the server is stopped;
a running server cleans up on its own schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if !cmd.Flags().Changed("max-age") {
				maxAge = cfg.Storage.Retention
			}
			cfg.Storage.Retention = 0

			ctx := cmd.Context()
			m, err := newManager(ctx, cfg, log, vectorstore.Deps{})
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Open(ctx); err != nil {
				return err
			}
			removed, err := m.Cleanup(ctx, maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d documents\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "remove documents older than this (0 removes everything)")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [file-id]",
		Short: "Print the status of one document, or of all documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			m, err := newManager(ctx, cfg, log, vectorstore.Deps{})
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.LoadRecords(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 0 {
				return enc.Encode(m.ListStatuses())
			}
			rec, err := m.GetStatus(args[0])
			if err != nil {
				return err
			}
			return enc.Encode(rec)
		},
	}
}
