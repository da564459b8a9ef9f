package main

import (
	"fmt"

	"appshell/internal/schema"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and generate the table definitions",
	}

	var name, dir string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the next migration pair for the current table definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := schema.Generate(dir, name, schema.Tables())
			if err != nil {
				return err
			}
			logger.Info("migration generated",
				zap.Int("version", m.Version),
				zap.String("up", m.UpPath),
				zap.String("down", m.DownPath))
			fmt.Fprintln(cmd.OutOrStdout(), m.UpPath)
			fmt.Fprintln(cmd.OutOrStdout(), m.DownPath)
			return nil
		},
	}
	generate.Flags().StringVar(&name, "name", "schema", "Migration name")
	generate.Flags().StringVar(&dir, "dir", schema.MigrationsDir, "Migrations directory")

	show := &cobra.Command{
		Use:   "sql",
		Short: "Print the DDL of the current table definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), schema.UpSQL(schema.Tables()))
			return nil
		},
	}

	cmd.AddCommand(generate, show)
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back migrations on DATABASE_URL",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", schema.MigrationsDir, "Migrations directory")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := schema.MigrateUp(cfg.DatabaseURL, dir); err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("dir", dir))
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			if err := schema.MigrateDown(cfg.DatabaseURL, dir, steps); err != nil {
				return err
			}
			logger.Info("migrations rolled back", zap.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
