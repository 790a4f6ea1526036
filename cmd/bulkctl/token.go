package main

import (
	"fmt"
	"io"
	"time"

	"go-bulkops/internal/config"
	"go-bulkops/pkg/utils"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Print a bearer token for actor-id signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return runToken(utils.NewTokens(cfg.JWTSecret, cfg.AppId), args[0], roles, ttl, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to embed (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func runToken(tokens *utils.Tokens, actorID string, roles []string, ttl time.Duration, out io.Writer) error {
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive, got %s", ttl)
	}
	token, err := tokens.Issue(actorID, roles, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
