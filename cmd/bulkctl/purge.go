package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go-bulkops/internal/config"
	"go-bulkops/internal/database"
	"go-bulkops/internal/features/bulk_operation"

	"github.com/spf13/cobra"
)

func newPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete terminal operations last updated before --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.RetentionMaxAge
			}

			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return runPurge(cmd.Context(), store, olderThan, time.Now().UTC(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "minimum age of purged operations (defaults to RETENTION_MAX_AGE)")
	return cmd
}

// openStore connects the persistent store named by STORE_DRIVER.
func openStore(cfg *config.Config) (bulk_operation.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		mongodb, client, err := database.ConnectMongo(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := bulk_operation.SelectStore(cfg, mongodb, nil)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return store, func() { _ = client.Disconnect(context.Background()) }, nil
	case config.StoreDriverPostgres:
		pg, err := database.ConnectPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := bulk_operation.SelectStore(cfg, nil, pg)
		if err != nil {
			pg.DB.Close()
			return nil, nil, err
		}
		return store, func() { pg.DB.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("purge needs a persistent store, STORE_DRIVER is %q", cfg.StoreDriver)
	}
}

func runPurge(ctx context.Context, store bulk_operation.Store, olderThan time.Duration, now time.Time, out io.Writer) error {
	if olderThan <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", olderThan)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := now.Add(-olderThan)
	purged, err := store.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	_, err = fmt.Fprintf(out, "purged %d operation(s) last updated before %s\n", purged, cutoff.Format(time.RFC3339))
	return err
}
