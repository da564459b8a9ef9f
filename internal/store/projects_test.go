package store

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"regexp"
	"testing"
	"time"

	"appshell/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var projectCols = []string{"id", "created_at", "updated_at", "owner_id", "name", "description"}

func setupProjectStore(t *testing.T) (*ProjectStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProjectStore(db), mock
}

func strPtr(s string) *string { return &s }

func TestProjectStore_Create(t *testing.T) {
	ctx := context.Background()
	s, mock := setupProjectStore(t)
	owner, id := uuid.New(), uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("returns the persisted row", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects (owner_id, name, description)")).
			WithArgs(owner.String(), "Apollo", "to the moon").
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow(id.String(), now, now, owner.String(), "Apollo", "to the moon"))

		p, err := s.Create(ctx, owner, models.CreateProjectRequest{Name: "Apollo", Description: strPtr("to the moon")})
		require.NoError(t, err)
		assert.Equal(t, id, p.ID)
		assert.Equal(t, owner, p.OwnerID)
		assert.False(t, p.CreatedAt.IsZero())
		require.NotNil(t, p.Description)
		assert.Equal(t, "to the moon", *p.Description)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violations from pgx", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := s.Create(ctx, owner, models.CreateProjectRequest{Name: "Apollo"})
		assert.ErrorIs(t, err, ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps unique violations from lib/pq", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := s.Create(ctx, owner, models.CreateProjectRequest{Name: "Apollo"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("propagates other errors", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO projects")).
			WillReturnError(errors.New("connection reset"))

		_, err := s.Create(ctx, owner, models.CreateProjectRequest{Name: "Apollo"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrConflict)
	})
}

func TestProjectStore_List(t *testing.T) {
	ctx := context.Background()
	s, mock := setupProjectStore(t)
	owner := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, created_at, updated_at, owner_id, name, description FROM projects "+
			"WHERE owner_id = $1 AND name ILIKE $2 ORDER BY name DESC LIMIT 10 OFFSET 5")).
		WithArgs(owner.String(), `%50\%%`).
		WillReturnRows(sqlmock.NewRows(projectCols).
			AddRow(uuid.NewString(), now, now, owner.String(), "b 50%", nil).
			AddRow(uuid.NewString(), now, now, owner.String(), "a 50%", "x"))

	got, err := s.List(ctx, owner, ListParams{Limit: 10, Offset: 5, Q: "50%", Sort: "-name,bogus"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Nil(t, got[0].Description)
	assert.Equal(t, "a 50%", got[1].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStore_ListEmptyIsNotNil(t *testing.T) {
	s, mock := setupProjectStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id ASC LIMIT 50 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows(projectCols))

	got, err := s.List(context.Background(), uuid.New(), ListParams{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestProjectStore_Get(t *testing.T) {
	ctx := context.Background()
	s, mock := setupProjectStore(t)
	owner, id := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM projects WHERE owner_id = $1 AND id = $2")).
		WithArgs(owner.String(), id.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(ctx, owner, id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProjectStore_Update(t *testing.T) {
	ctx := context.Background()
	s, mock := setupProjectStore(t)
	owner, id := uuid.New(), uuid.New()
	created := time.Now().UTC().Add(-time.Hour)
	updated := time.Now().UTC()

	t.Run("refreshes updated_at", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(
			"UPDATE projects SET name = $1, description = $2, updated_at = now() WHERE owner_id = $3 AND id = $4 RETURNING")).
			WithArgs("Gemini", nil, owner.String(), id.String()).
			WillReturnRows(sqlmock.NewRows(projectCols).
				AddRow(id.String(), created, updated, owner.String(), "Gemini", nil))

		p, err := s.Update(ctx, owner, id, models.UpdateProjectRequest{Name: strPtr("Gemini"), Description: strPtr("")})
		require.NoError(t, err)
		assert.Equal(t, "Gemini", p.Name)
		assert.True(t, p.UpdatedAt.After(p.CreatedAt))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE projects SET name = $1, updated_at = now()")).
			WillReturnError(sql.ErrNoRows)

		_, err := s.Update(ctx, owner, id, models.UpdateProjectRequest{Name: strPtr("Gemini")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("nothing to update issues no statement", func(t *testing.T) {
		_, err := s.Update(ctx, owner, id, models.UpdateProjectRequest{})
		assert.ErrorIs(t, err, models.ErrNothingToUpdate)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProjectStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, mock := setupProjectStore(t)
	owner, id := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects WHERE owner_id = $1 AND id = $2")).
		WithArgs(owner.String(), id.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(ctx, owner, id))
	assert.ErrorIs(t, s.Delete(ctx, owner, id), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStore_Ensure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles (id, email)")).
		WithArgs(id.String(), "ada@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewProfileStore(db).Ensure(context.Background(), id, "ada@example.com"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	id := uuid.New()
	now := time.Now()

	query := regexp.QuoteMeta("SELECT id, created_at, updated_at, email, display_name FROM profiles WHERE id = $1")
	mock.ExpectQuery(query).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at", "email", "display_name"}).
			AddRow(id.String(), now, now, "ada@example.com", "Ada"))
	mock.ExpectQuery(query).
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	profiles := NewProfileStore(db)
	p, err := profiles.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, "ada@example.com", p.Email)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Ada", *p.DisplayName)

	_, err = profiles.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPinOwnerRoutesQueriesThroughConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	owner := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_user_id', $1, false)")).
		WithArgs(owner.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM projects")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT set_config('app.current_user_id', '', false)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx, release, err := PinOwner(context.Background(), db, owner)
	require.NoError(t, err)
	_, pinned := dbFrom(ctx, db).(*sql.Conn)
	assert.True(t, pinned)

	require.NoError(t, NewProjectStore(db).Delete(ctx, owner, uuid.New()))
	release()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  ListParams
	}{
		{name: "defaults", query: "", want: ListParams{Limit: 50}},
		{name: "explicit", query: "limit=10&offset=20&q=+apollo+&sort=-name", want: ListParams{Limit: 10, Offset: 20, Q: "apollo", Sort: "-name"}},
		{name: "limit capped", query: "limit=1000", want: ListParams{Limit: 200}},
		{name: "invalid values ignored", query: "limit=-1&offset=x", want: ListParams{Limit: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ParseListParams(values))
		})
	}
}

func TestListParamsCacheKey(t *testing.T) {
	assert.Equal(t, ListParams{}.CacheKey(), ListParams{Limit: 50}.CacheKey())
	assert.NotEqual(t, ListParams{Q: "a"}.CacheKey(), ListParams{Q: "b"}.CacheKey())
	assert.Equal(t, "limit=50&offset=0&q=a%26b&sort=-name", ListParams{Q: "a&b", Sort: "-name"}.CacheKey())
}

func TestBuildOrderBy(t *testing.T) {
	allowed := map[string]string{"name": "name", "created_at": "created_at"}

	assert.Equal(t, " ORDER BY id ASC", buildOrderBy("", allowed, "id ASC"))
	assert.Equal(t, " ORDER BY id ASC", buildOrderBy("drop table", allowed, "id ASC"))
	assert.Equal(t, " ORDER BY name ASC, created_at DESC", buildOrderBy("name, -created_at", allowed, "id ASC"))
}
