package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"appshell/internal/models"

	"github.com/google/uuid"
)

const projectColumns = "id, created_at, updated_at, owner_id, name, description"

var projectSort = map[string]string{
	"id":         "id",
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// ProjectStore persists projects. Every method issues exactly one statement
// and is scoped to the owning user.
type ProjectStore struct {
	db *sql.DB
}

func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (models.Project, error) {
	var p models.Project
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.OwnerID, &p.Name, &desc)
	if err != nil {
		return models.Project{}, err
	}
	if desc.Valid {
		p.Description = &desc.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *ProjectStore) List(ctx context.Context, owner uuid.UUID, params ListParams) ([]models.Project, error) {
	params = params.Normalized()

	clauses := []string{"owner_id = $1"}
	args := []any{owner}
	if params.Q != "" {
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+escapeLike(params.Q)+"%")
	}

	sqlStr := "SELECT " + projectColumns + " FROM projects WHERE " + strings.Join(clauses, " AND ")
	sqlStr += buildOrderBy(params.Sort, projectSort, "created_at DESC, id ASC")
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.Limit, params.Offset)

	rows, err := dbFrom(ctx, s.db).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *ProjectStore) Get(ctx context.Context, owner, id uuid.UUID) (models.Project, error) {
	row := dbFrom(ctx, s.db).QueryRowContext(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE owner_id = $1 AND id = $2", owner, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) Create(ctx context.Context, owner uuid.UUID, in models.CreateProjectRequest) (models.Project, error) {
	row := dbFrom(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO projects (owner_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING `+projectColumns, owner, in.Name, nullString(in.Description))
	p, err := scanProject(row)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Project{}, fmt.Errorf("project %q: %w", in.Name, ErrConflict)
		}
		return models.Project{}, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// Update applies a partial update. updated_at is always refreshed here; the
// schema has no trigger doing it.
func (s *ProjectStore) Update(ctx context.Context, owner, id uuid.UUID, in models.UpdateProjectRequest) (models.Project, error) {
	type set struct {
		sql string
		val any
	}
	sets := make([]set, 0, 2)
	if in.Name != nil {
		sets = append(sets, set{"name = $%d", *in.Name})
	}
	if in.Description != nil {
		sets = append(sets, set{"description = $%d", nullString(in.Description)})
	}
	if len(sets) == 0 {
		return models.Project{}, models.ErrNothingToUpdate
	}

	args := make([]any, 0, len(sets)+2)
	sqlStr := "UPDATE projects SET "
	for i, sset := range sets {
		sqlStr += fmt.Sprintf(sset.sql, i+1) + ", "
		args = append(args, sset.val)
	}
	sqlStr += "updated_at = now()"
	sqlStr += fmt.Sprintf(" WHERE owner_id = $%d AND id = $%d RETURNING %s", len(args)+1, len(args)+2, projectColumns)
	args = append(args, owner, id)

	p, err := scanProject(dbFrom(ctx, s.db).QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return models.Project{}, fmt.Errorf("project %q: %w", *in.Name, ErrConflict)
		}
		return models.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

func (s *ProjectStore) Delete(ctx context.Context, owner, id uuid.UUID) error {
	res, err := dbFrom(ctx, s.db).ExecContext(ctx, "DELETE FROM projects WHERE owner_id = $1 AND id = $2", owner, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString maps nil and "" to NULL.
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
