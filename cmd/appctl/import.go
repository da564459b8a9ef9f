package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"appshell/internal/models"
	"appshell/internal/store"
	"appshell/pkg/importer"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd() *cobra.Command {
	var (
		owner, email, file, mapping string
		dryRun                      bool
		maxErrors                   int
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import projects from an .xlsx workbook for one owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a UUID: %w", err)
			}

			var mappingData []byte
			if mapping != "" {
				if mappingData, err = os.ReadFile(mapping); err != nil {
					return fmt.Errorf("read mapping: %w", err)
				}
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer f.Close()

			pool, err := pgxpool.New(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			db := stdlib.OpenDBFromPool(pool)
			defer db.Close()
			if err := ensureOwner(cmd.Context(), store.NewProfileStore(db), ownerID, email); err != nil {
				return err
			}

			summary, err := importer.ImportProjects(cmd.Context(), pool, f, importer.ImportOptions{
				OwnerID:   ownerID,
				Mapping:   mappingData,
				DryRun:    dryRun,
				MaxErrors: maxErrors,
			})
			printSummary(cmd, summary)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			// A running server's cached queries expire after CACHE_TTL.
			logger.Info("import finished", zap.String("owner", ownerID.String()), zap.Bool("dry_run", dryRun))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner user id")
	cmd.Flags().StringVar(&email, "email", "", "Create the owner's profile with this email when it does not exist")
	cmd.Flags().StringVar(&file, "file", "", "Path to the .xlsx workbook")
	cmd.Flags().StringVar(&mapping, "mapping", "", "YAML header mapping (embedded default when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and count without committing")
	cmd.Flags().IntVar(&maxErrors, "max-errors", importer.DefaultMaxErrors, "Abort above this many row errors")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type ownerProfiles interface {
	Get(ctx context.Context, id uuid.UUID) (models.Profile, error)
	Ensure(ctx context.Context, id uuid.UUID, email string) error
}

// ensureOwner makes sure the projects' owner has a profile row before any
// row references it.
func ensureOwner(ctx context.Context, profiles ownerProfiles, owner uuid.UUID, email string) error {
	_, err := profiles.Get(ctx, owner)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("look up owner: %w", err)
	case email == "":
		return fmt.Errorf("owner %s has no profile: sign in once as that user or pass --email to create it", owner)
	}
	if err := profiles.Ensure(ctx, owner, email); err != nil {
		return fmt.Errorf("create owner profile: %w", err)
	}
	logger.Info("owner profile created", zap.String("owner", owner.String()))
	return nil
}

func printSummary(cmd *cobra.Command, summary importer.ImportSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "inserted=%d updated=%d skipped=%d errors=%d dry_run=%v\n",
		summary.Inserted, summary.Updated, summary.Skipped, summary.Errors, summary.DryRun)
	for _, sheet := range summary.Sheets {
		fmt.Fprintf(out, "  %s: inserted=%d, updated=%d, skipped=%d, errors=%d\n",
			sheet.Name, sheet.Inserted, sheet.Updated, sheet.Skipped, sheet.Errors)
		for _, sample := range sheet.Samples {
			fmt.Fprintf(out, "    row %d: %s\n", sample.Row, sample.Message)
		}
	}
}
