//go:build integration

package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appshell/internal"
	"appshell/internal/auth"
	"appshell/internal/config"
	"appshell/internal/models"
	"appshell/internal/store"
	"appshell/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationSecret = "supersecretkeyforintegrationtestingonly"

func TestAPIWithPostgres(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.ResetSchema(t)
	pool := testutil.NewTestPool(t)

	provider := auth.NewJWTProvider(integrationSecret, "authenticated", time.Hour)
	srv, err := internal.NewServer(internal.Deps{
		Config: &config.Config{
			AuthProvider: config.ProviderJWT,
			JWTSecret:    integrationSecret,
			JWTAudience:  "authenticated",
			LoginPath:    "/login",
			CacheTTL:     time.Minute,
			RLSEnabled:   true,
		},
		DB:       db,
		Pool:     pool,
		Provider: provider,
		Projects: store.NewProjectStore(db),
		Profiles: store.NewProfileStore(db),
	})
	require.NoError(t, err)

	user := uuid.New()
	token, err := provider.GenerateToken(user, "int@example.com", "authenticated")
	require.NoError(t, err)

	do := func(req *http.Request) *httptest.ResponseRecorder {
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.Router.ServeHTTP(rec, req)
		return rec
	}
	list := func() []models.Project {
		rec := do(httptest.NewRequest(http.MethodGet, "/api/projects", nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out []models.Project
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return out
	}

	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/", nil))
	assert.Equal(t, "Hello World", rec.Body.String())

	assert.Empty(t, list())

	rec = do(httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBufferString(`{"name":"Live"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, list(), 1)

	// The import goes around the cache; the endpoint must invalidate the list.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "projects.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(testutil.Workbook(t, map[string][][]string{
		"Sheet1": {{"Name"}, {"Imported"}},
	}))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	names := []string{}
	for _, p := range list() {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Live", "Imported"}, names)
}
