package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/applytrack/internal/logging"
)

func newSyncCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the linked mailboxes of one owner once",
		Long: `Fetch recent mail from every Gmail account the owner linked, record new
messages and move matching applications to Interviewing, Offer or Rejected.

The result is printed as JSON on stdout, which makes the command suitable
for cron jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, owner)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose mailboxes are synced (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runSync(cmd *cobra.Command, owner string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := errors.Join(cfg.Validate(), cfg.ValidateGoogle()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server.ShutdownTimeout))
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Error("shutdown incomplete", logging.Err(err))
		}
	}()

	result, err := a.service.SyncInbox(ctx, owner)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
