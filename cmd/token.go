package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/applytrack/internal/server"
)

func newTokenCmd() *cobra.Command {
	var (
		owner string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an owner",
		Long: `Sign an HS256 bearer token for the HTTP API with the configured JWT
secret. In production the tracker issues these tokens itself; this command
is meant for development and scripts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.Auth.JWTSecret) < 32 {
				return fmt.Errorf("auth.jwt_secret must be at least 32 bytes (JWT_SECRET)")
			}

			auth := server.NewAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.StateTTL)
			raw, err := auth.IssueToken(owner, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner the token identifies (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
