package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AccessTokenCookie carries the access token for browser navigation.
const AccessTokenCookie = "sb-access-token"

const maxTokenSize = 8192

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// TokenFromRequest returns the access token from the session cookie or,
// failing that, from a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return validToken(c.Value)
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return validToken(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
}

func validToken(token string) string {
	if len(token) > maxTokenSize {
		return ""
	}
	return token
}

// RequireSession guards a page subtree. Requests without a valid session are
// redirected to loginPath with the original path in "next"; otherwise the
// session is stored in the request context.
func RequireSession(p Provider, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := p.Session(r.Context(), TokenFromRequest(r))
			if err != nil || s == nil {
				http.Redirect(w, r, LoginURL(loginPath, r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// RequireAPISession is RequireSession for API routes: it answers 401 with
// a JSON error instead of redirecting.
func RequireAPISession(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := p.Session(r.Context(), TokenFromRequest(r))
			switch {
			case errors.Is(err, ErrNoSession):
				sendErrorResponse(w, "Authentication required", "MISSING_TOKEN", http.StatusUnauthorized)
				return
			case err != nil || s == nil:
				sendErrorResponse(w, "Invalid or expired session", "INVALID_SESSION", http.StatusUnauthorized)
				return
			}

			if !s.ExpiresAt.IsZero() {
				sendTokenExpirationWarning(w, s.ExpiresAt)
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

// LoginURL builds the login redirect target for next.
func LoginURL(loginPath, next string) string {
	next = SafeNext(next)
	if next == "/" {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(next)
}

// SafeNext keeps post-login redirects on this site.
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

// SetSessionCookie stores the access token for subsequent navigations.
func SetSessionCookie(w http.ResponseWriter, s *Session, secure bool) {
	c := &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    s.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !s.ExpiresAt.IsZero() {
		c.Expires = s.ExpiresAt
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie removes the access token cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sendErrorResponse sends a standardized error response
func sendErrorResponse(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := ErrorResponse{
		Error: message,
		Code:  code,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// sendTokenExpirationWarning adds a warning header when the token expires soon
func sendTokenExpirationWarning(w http.ResponseWriter, expiresAt time.Time) {
	timeUntilExpiry := time.Until(expiresAt)
	if timeUntilExpiry <= 5*time.Minute && timeUntilExpiry > 0 {
		w.Header().Set("X-Token-Expires-At", expiresAt.Format(time.RFC3339))
		w.Header().Set("X-Token-Expires-In", timeUntilExpiry.Round(time.Second).String())
	}
}
