package main

import (
	"fmt"

	"github.com/boddenberg/finance-dashboard-api/internal/infra/sqlstore"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var (
		down   int
		status bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
		Long: `Apply pending migrations to the configured SQL store (sqlite or postgres).
Use --down N to roll back N steps and --status to print the current version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := sqlstore.ParseDialect(cfg.StoreBackend)
			if err != nil {
				return fmt.Errorf("migrations apply to sqlite and postgres backends, not %q", cfg.StoreBackend)
			}
			dsn := storeDSN(cfg, d)
			out := cmd.OutOrStdout()

			switch {
			case status:
				version, dirty, ok, err := sqlstore.MigrationVersion(d, dsn)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "no migrations applied")
					return nil
				}
				fmt.Fprintf(out, "version %d (dirty: %t)\n", version, dirty)

			case down > 0:
				if err := sqlstore.RollbackMigrations(d, dsn, down); err != nil {
					return err
				}
				fmt.Fprintf(out, "rolled back %d migration(s)\n", down)

			default:
				if err := sqlstore.RunMigrations(d, dsn); err != nil {
					return err
				}
				fmt.Fprintln(out, "migrations applied")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations")
	cmd.Flags().BoolVar(&status, "status", false, "print the current migration version")
	return cmd
}
