package main

import (
	"fmt"

	"go-bulkops/internal/features/bulk_operation"

	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	var (
		operationsTable string
		itemsTable      string
	)

	tables := func() bulk_operation.TableConfig {
		tc := bulk_operation.DefaultTableConfig()
		if operationsTable != "" {
			tc.OperationsTable = operationsTable
		}
		if itemsTable != "" {
			tc.ItemsTable = itemsTable
		}
		return tc
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Print the Postgres DDL for the bulk operation tables",
	}
	cmd.PersistentFlags().StringVar(&operationsTable, "operations-table", "", "override the operations table name")
	cmd.PersistentFlags().StringVar(&itemsTable, "items-table", "", "override the items table name")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Print the create statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), bulk_operation.MigrationUp(tables()))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Print the drop statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), bulk_operation.MigrationDown(tables()))
			return err
		},
	})
	return cmd
}
