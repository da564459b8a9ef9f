//go:build integration

package tests

import (
	"context"
	"testing"

	"appshell/internal/models"
	"appshell/internal/store"
	"appshell/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOwner(t *testing.T, profiles *store.ProfileStore) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, profiles.Ensure(context.Background(), id, id.String()+"@example.com"))
	return id
}

func TestProjectStoreLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.ResetSchema(t)
	ctx := context.Background()

	projects := store.NewProjectStore(db)
	owner := newOwner(t, store.NewProfileStore(db))

	desc := "first"
	created, err := projects.Create(ctx, owner, models.CreateProjectRequest{Name: "Alpha", Description: &desc})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	_, err = projects.Create(ctx, owner, models.CreateProjectRequest{Name: "Alpha"})
	assert.ErrorIs(t, err, store.ErrConflict)

	name := "Alpha 2"
	updated, err := projects.Update(ctx, owner, created.ID, models.UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alpha 2", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	list, err := projects.List(ctx, owner, store.ListParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Alpha 2", list[0].Name)

	require.NoError(t, projects.Delete(ctx, owner, created.ID))
	_, err = projects.Get(ctx, owner, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, projects.Delete(ctx, owner, created.ID), store.ErrNotFound)
}

func TestProjectStoreScopesByOwner(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.ResetSchema(t)
	ctx := context.Background()

	projects := store.NewProjectStore(db)
	profiles := store.NewProfileStore(db)
	alice, bob := newOwner(t, profiles), newOwner(t, profiles)

	p, err := projects.Create(ctx, alice, models.CreateProjectRequest{Name: "Shared name"})
	require.NoError(t, err)
	// Names are unique per owner only.
	_, err = projects.Create(ctx, bob, models.CreateProjectRequest{Name: "Shared name"})
	require.NoError(t, err)

	_, err = projects.Get(ctx, bob, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	pinned, release, err := store.PinOwner(ctx, db, bob)
	require.NoError(t, err)
	list, err := projects.List(pinned, bob, store.ListParams{Limit: 10})
	release()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bob, list[0].OwnerID)
}

func TestProfileEnsureRefreshesEmail(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.ResetSchema(t)
	ctx := context.Background()

	profiles := store.NewProfileStore(db)
	id := uuid.New()
	require.NoError(t, profiles.Ensure(ctx, id, "old@example.com"))
	require.NoError(t, profiles.Ensure(ctx, id, "new@example.com"))

	var email string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT email FROM profiles WHERE id = $1", id.String()).Scan(&email))
	assert.Equal(t, "new@example.com", email)
}
