package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// APIError is a non-2xx reply from the hosted auth service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth service: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("auth service: %d %s", e.Status, e.Message)
}

// Unwrap maps rejected credentials onto ErrInvalidSession.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return ErrInvalidSession
	}
	return nil
}

// HostedProvider talks to the hosted auth service's REST API using the
// project's anonymous key.
type HostedProvider struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewHostedProvider returns a provider for the service at baseURL. A nil
// client means http.DefaultClient.
func NewHostedProvider(baseURL, anonKey string, client *http.Client) *HostedProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HostedProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  client,
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	ExpiresAt   int64        `json:"expires_at"`
	User        userResponse `json:"user"`
}

// Session asks the service who owns accessToken.
func (p *HostedProvider) Session(ctx context.Context, accessToken string) (*Session, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}

	var u userResponse
	if err := p.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	user, err := u.toUser()
	if err != nil {
		return nil, err
	}
	return &Session{
		User:        user,
		AccessToken: accessToken,
		ExpiresAt:   tokenExpiry(accessToken),
	}, nil
}

// SignInWithPassword exchanges credentials for a session.
func (p *HostedProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var tr tokenResponse
	if err := p.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &tr); err != nil {
		return nil, err
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrInvalidSession)
	}
	user, err := tr.User.toUser()
	if err != nil {
		return nil, err
	}

	s := &Session{User: user, AccessToken: tr.AccessToken}
	switch {
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	default:
		s.ExpiresAt = tokenExpiry(tr.AccessToken)
	}
	return s, nil
}

// SignOut revokes the session behind accessToken.
func (p *HostedProvider) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return p.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (p *HostedProvider) do(ctx context.Context, method, path, accessToken string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", p.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.anonKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth service response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	return apiErr
}

func (u userResponse) toUser() (User, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return User{}, fmt.Errorf("%w: user id %q is not a uuid", ErrInvalidSession, u.ID)
	}
	return User{ID: id, Email: u.Email, Role: u.Role}, nil
}

// tokenExpiry reads exp from a token without verifying it. The service has
// already vouched for the token when this is called.
func tokenExpiry(accessToken string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
