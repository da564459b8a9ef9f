package importer

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"appshell/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"
)

//go:embed mapping/projects.yaml
var defaultMapping []byte

const (
	DefaultMaxErrors = 50
	maxSamples       = 20
	wildcardSheet    = "*"
)

var ErrTooManyErrors = errors.New("too many errors")

// ImportOptions defines the configuration for project imports
type ImportOptions struct {
	OwnerID   uuid.UUID
	Mapping   []byte // YAML; the embedded default when empty
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

func (s *SheetSummary) fail(row int, msg string) {
	s.Errors++
	if len(s.Samples) < maxSamples {
		s.Samples = append(s.Samples, RowError{Sheet: s.Name, Row: row, Message: msg})
	}
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

func (s *ImportSummary) add(sheet SheetSummary) {
	s.Sheets = append(s.Sheets, sheet)
	s.Inserted += sheet.Inserted
	s.Updated += sheet.Updated
	s.Skipped += sheet.Skipped
	s.Errors += sheet.Errors
}

// MappingConfig maps workbook headers onto project fields per sheet.
type MappingConfig struct {
	Version int                    `yaml:"version"`
	Sheets  map[string]SheetConfig `yaml:"sheets"`
}

type SheetConfig struct {
	// Aliases lists, per field ("name", "description"), the accepted headers.
	Aliases map[string][]string `yaml:"aliases"`
	Skip    bool                `yaml:"skip"`
}

// ParseMapping decodes a YAML mapping, falling back to the embedded default.
func ParseMapping(data []byte) (*MappingConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = defaultMapping
	}
	var m MappingConfig
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if len(m.Sheets) == 0 {
		return nil, errors.New("parse mapping: no sheets configured")
	}
	for name, sc := range m.Sheets {
		if !sc.Skip && len(sc.Aliases["name"]) == 0 {
			return nil, fmt.Errorf("parse mapping: sheet %q has no aliases for name", name)
		}
	}
	return &m, nil
}

func (m *MappingConfig) sheet(name string) (SheetConfig, bool) {
	if sc, ok := m.Sheets[name]; ok {
		return sc, !sc.Skip
	}
	sc, ok := m.Sheets[wildcardSheet]
	return sc, ok && !sc.Skip
}

// ProjectRow is one parsed data row. Row is 1-based as shown in spreadsheet tools.
type ProjectRow struct {
	Row     int
	Request models.CreateProjectRequest
}

// ParsedSheet holds the valid rows of a sheet and the summary of what was
// skipped or rejected while parsing.
type ParsedSheet struct {
	Rows    []ProjectRow
	Summary SheetSummary
}

// ParseWorkbook reads every mapped sheet of an .xlsx workbook.
func ParseWorkbook(data []byte, mapping *MappingConfig) ([]ParsedSheet, error) {
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}

	var out []ParsedSheet
	for _, sheet := range wb.Sheets {
		sc, ok := mapping.sheet(sheet.Name)
		if !ok {
			continue
		}
		out = append(out, parseSheet(sheet, sc))
	}
	return out, nil
}

func parseSheet(sheet *xlsx.Sheet, sc SheetConfig) ParsedSheet {
	ps := ParsedSheet{Summary: SheetSummary{Name: sheet.Name}}
	if sheet.MaxRow == 0 {
		return ps
	}

	header := make([]string, sheet.MaxCol)
	for c := 0; c < sheet.MaxCol; c++ {
		header[c] = cellText(sheet, 0, c)
	}
	cols := resolveColumns(header, sc.Aliases)
	nameCol, ok := cols["name"]
	if !ok {
		ps.Summary.fail(1, "no header matches the name column")
		return ps
	}
	descCol, hasDesc := cols["description"]

	seen := make(map[string]int)
	for r := 1; r < sheet.MaxRow; r++ {
		name := cellText(sheet, r, nameCol)
		var desc string
		if hasDesc {
			desc = cellText(sheet, r, descCol)
		}
		if name == "" && desc == "" {
			ps.Summary.Skipped++
			continue
		}

		req := models.CreateProjectRequest{Name: name}
		if desc != "" {
			req.Description = &desc
		}
		if err := req.Normalize(); err != nil {
			ps.Summary.fail(r+1, err.Error())
			continue
		}
		// Names compare exactly, like the (owner_id, name) unique constraint.
		if first, dup := seen[req.Name]; dup {
			ps.Summary.fail(r+1, fmt.Sprintf("duplicate of row %d", first))
			continue
		}
		seen[req.Name] = r + 1
		ps.Rows = append(ps.Rows, ProjectRow{Row: r + 1, Request: req})
	}
	return ps
}

// resolveColumns matches header cells case-insensitively against the aliases
// of each field. The first matching column wins.
func resolveColumns(header []string, aliases map[string][]string) map[string]int {
	cols := make(map[string]int)
	for field, names := range aliases {
		for idx, h := range header {
			if h == "" {
				continue
			}
			if containsFold(names, h) {
				cols[field] = idx
				break
			}
		}
	}
	return cols
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}

func cellText(sheet *xlsx.Sheet, row, col int) string {
	cell, err := sheet.Cell(row, col)
	if err != nil || cell == nil {
		return ""
	}
	return strings.TrimSpace(cell.String())
}

// TxBeginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ImportProjects upserts the workbook's projects for opts.OwnerID inside one
// transaction. Rows are matched on (owner_id, name). A dry run reports the
// same counts and rolls everything back.
func ImportProjects(ctx context.Context, db TxBeginner, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{DryRun: opts.DryRun, Sheets: []SheetSummary{}}
	if opts.OwnerID == uuid.Nil {
		return summary, errors.New("owner is required")
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = DefaultMaxErrors
	}

	mapping, err := ParseMapping(opts.Mapping)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	sheets, err := ParseWorkbook(data, mapping)
	if err != nil {
		return summary, err
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return summary, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Scope row-level security to the importing owner for this transaction only.
	if _, err := tx.Exec(ctx, "SELECT set_config('app.current_user_id', $1, true)", opts.OwnerID.String()); err != nil {
		return summary, fmt.Errorf("failed to set owner context: %w", err)
	}

	for _, ps := range sheets {
		sheetSummary := ps.Summary
		for _, row := range ps.Rows {
			inserted, err := upsertProject(ctx, tx, opts.OwnerID, row.Request)
			if err != nil {
				sheetSummary.fail(row.Row, err.Error())
				continue
			}
			if inserted {
				sheetSummary.Inserted++
			} else {
				sheetSummary.Updated++
			}
		}
		summary.add(sheetSummary)

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("%w (%d), stopping import", ErrTooManyErrors, summary.Errors)
		}
	}

	if opts.DryRun {
		return summary, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return summary, fmt.Errorf("commit import: %w", err)
	}
	return summary, nil
}

// upsertProject runs inside a savepoint so one bad row does not abort the
// whole transaction.
func upsertProject(ctx context.Context, tx pgx.Tx, owner uuid.UUID, in models.CreateProjectRequest) (bool, error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, err
	}
	var inserted bool
	err = sp.QueryRow(ctx, `
		INSERT INTO projects (owner_id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, name) DO UPDATE
		SET description = EXCLUDED.description, updated_at = now()
		RETURNING (xmax = 0)`, owner.String(), in.Name, in.Description).Scan(&inserted)
	if err != nil {
		_ = sp.Rollback(ctx)
		return false, err
	}
	return inserted, sp.Commit(ctx)
}
