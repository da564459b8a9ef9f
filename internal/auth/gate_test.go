package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider accepts exactly one token.
type stubProvider struct {
	token   string
	session *Session
	err     error
	calls   int
}

func (p *stubProvider) Session(_ context.Context, token string) (*Session, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	if token == "" {
		return nil, ErrNoSession
	}
	if token != p.token {
		return nil, ErrInvalidSession
	}
	return p.session, nil
}

func newStub() *stubProvider {
	return &stubProvider{
		token: "good",
		session: &Session{
			User:        User{ID: uuid.New(), Email: "ada@example.com"},
			AccessToken: "good",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
}

func echoSession(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s == nil {
		http.Error(w, "no session in context", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write([]byte("hello " + s.User.Email))
}

func TestRequireSession_RedirectsWithoutSession(t *testing.T) {
	p := newStub()
	h := RequireSession(p, "/login")(http.HandlerFunc(echoSession))

	req := httptest.NewRequest(http.MethodGet, "/dashboard/projects?page=2", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fdashboard%2Fprojects%3Fpage%3D2", w.Header().Get("Location"))
	assert.NotContains(t, w.Body.String(), "hello")
}

func TestRequireSession_RedirectsOnProviderError(t *testing.T) {
	p := newStub()
	p.err = errors.New("auth service down")
	h := RequireSession(p, "/login")(http.HandlerFunc(echoSession))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fdashboard", w.Header().Get("Location"))
	assert.Equal(t, 1, p.calls)
}

func TestRequireSession_PassesSessionDown(t *testing.T) {
	p := newStub()
	h := RequireSession(p, "/login")(http.HandlerFunc(echoSession))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello ada@example.com", w.Body.String())
}

func TestRequireAPISession(t *testing.T) {
	p := newStub()
	h := RequireAPISession(p)(http.HandlerFunc(echoSession))

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
	}{
		{name: "missing token", wantCode: http.StatusUnauthorized, wantErr: "MISSING_TOKEN"},
		{name: "wrong scheme", header: "Basic abc", wantCode: http.StatusUnauthorized, wantErr: "MISSING_TOKEN"},
		{name: "invalid token", header: "Bearer bad", wantCode: http.StatusUnauthorized, wantErr: "INVALID_SESSION"},
		{name: "valid token", header: "Bearer good", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantErr != "" {
				var body ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantErr, body.Code)
			}
		})
	}
}

func TestRequireAPISession_ExpiryWarning(t *testing.T) {
	p := newStub()
	p.session.ExpiresAt = time.Now().Add(2 * time.Minute)
	h := RequireAPISession(p)(http.HandlerFunc(echoSession))

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Token-Expires-At"))
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", TokenFromRequest(req))

	req.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(req), "cookie wins over header")

	huge := httptest.NewRequest(http.MethodGet, "/", nil)
	huge.Header.Set("Authorization", "Bearer "+strings.Repeat("a", maxTokenSize+1))
	assert.Equal(t, "", TokenFromRequest(huge))
}

func TestSafeNextAndLoginURL(t *testing.T) {
	assert.Equal(t, "/dashboard", SafeNext("/dashboard"))
	assert.Equal(t, "/", SafeNext("https://evil.example"))
	assert.Equal(t, "/", SafeNext("//evil.example"))
	assert.Equal(t, "/", SafeNext(""))

	assert.Equal(t, "/login", LoginURL("/login", "/"))
	assert.Equal(t, "/login?next=%2Fdashboard", LoginURL("/login", "/dashboard"))
}

func TestSessionCookies(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, &Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, true)
	ClearSessionCookie(w, true)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, -1, cookies[1].MaxAge)
}
