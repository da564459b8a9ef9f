package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"appshell/internal/models"

	"github.com/google/uuid"
)

// ProfileStore keeps the profiles table in step with the hosted auth users.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// Ensure creates the profile for id, or refreshes its email when it changed.
func (s *ProfileStore) Ensure(ctx context.Context, id uuid.UUID, email string) error {
	_, err := dbFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO profiles (id, email)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, updated_at = now()
		WHERE profiles.email IS DISTINCT FROM EXCLUDED.email`, id, email)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	return nil
}

// Get returns the profile of id.
func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	var p models.Profile
	var name sql.NullString
	err := dbFrom(ctx, s.db).QueryRowContext(ctx,
		"SELECT id, created_at, updated_at, email, display_name FROM profiles WHERE id = $1", id).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.Email, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	if name.Valid {
		p.DisplayName = &name.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
