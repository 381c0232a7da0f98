// Package auth owns the access/refresh token pair and is the single
// source of truth for "is the user authenticated". It is the only
// package that reads or writes credential storage, and it exposes the
// authenticated-request primitive with automatic one-time retry on 401.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Result is the uniform shape returned for every HTTP call. Ordinary
// HTTP failures (4xx/5xx, network errors) never surface as Go errors;
// callers branch on OK/Status instead.
type Result struct {
	OK     bool
	Status int
	Data   json.RawMessage
	Err    string
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Data, v)
}

// LoginResult is the outcome of a login attempt.
type LoginResult struct {
	Success bool
	User    *User
	Error   string
}

// RegisterPayload is the registration request body.
type RegisterPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Options configures a Session.
type Options struct {
	// BaseURL is the HTTP API base, e.g. "https://ari.example.com/api".
	BaseURL string

	// Store persists the token pair. nil = in-memory tokens only.
	Store *TokenStore

	// HTTPClient overrides the default client (tests, timeouts).
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Session manages one authenticated session against the Ari API.
// All methods are safe for concurrent use.
type Session struct {
	baseURL string
	http    *http.Client
	store   *TokenStore
	log     zerolog.Logger

	mu      sync.Mutex
	access  string
	refresh string
	user    *User
	role    Role
}

// NewSession creates a session. Call Init to restore persisted tokens.
func NewSession(opts Options) *Session {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Session{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		store:   opts.Store,
		log:     opts.Logger,
	}
}

// Init restores tokens from storage and fetches the current profile.
// Returns true if the session ends up authenticated.
func (s *Session) Init(ctx context.Context) bool {
	var access, refresh string
	if s.store != nil {
		access, refresh = s.store.Load()
	}
	if access == "" && refresh == "" {
		return false
	}

	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()

	effective := access
	if effective == "" {
		effective = s.RefreshAccessToken(ctx, refresh)
	}
	if effective == "" {
		return false
	}

	return s.fetchCurrentUser(ctx, effective) != nil
}

// Login exchanges credentials for a token pair and loads the profile.
// Failures come back as LoginResult.Error, never as a panic or Go error,
// so callers can render them inline.
func (s *Session) Login(ctx context.Context, email, password string) LoginResult {
	res := s.call(ctx, http.MethodPost, "/auth/login/", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if !res.OK {
		return LoginResult{Error: errText(res, "login failed")}
	}

	var pair struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := res.Decode(&pair); err != nil || pair.Access == "" || pair.Refresh == "" {
		return LoginResult{Error: "login response missing tokens"}
	}

	s.setTokens(pair.Access, pair.Refresh)

	user := s.fetchCurrentUser(ctx, pair.Access)
	if user == nil {
		return LoginResult{Error: "could not load profile"}
	}
	return LoginResult{Success: true, User: user}
}

// Register submits a registration. The account is not logged in
// afterwards; the server gates activation on email verification.
func (s *Session) Register(ctx context.Context, payload RegisterPayload) Result {
	return s.call(ctx, http.MethodPost, "/auth/register/", payload, "")
}

// Logout best-effort invalidates the refresh token server-side, then
// unconditionally clears local state.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	access, refresh := s.access, s.refresh
	s.mu.Unlock()

	if refresh != "" {
		res := s.call(ctx, http.MethodPost, "/auth/logout/", map[string]string{"refresh": refresh}, access)
		if !res.OK {
			s.log.Warn().Int("status", res.Status).Str("err", res.Err).Msg("logout request failed")
		}
	}
	s.clearState()
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// On success the new token is stored and returned. Any failure, rejected
// credential and network flake alike, clears all local state and returns
// "". A hung refresh must not leave the session half-authenticated.
func (s *Session) RefreshAccessToken(ctx context.Context, override string) string {
	tok := override
	if tok == "" {
		s.mu.Lock()
		tok = s.refresh
		s.mu.Unlock()
	}
	if tok == "" {
		s.clearState()
		return ""
	}

	res := s.call(ctx, http.MethodPost, "/auth/refresh/", map[string]string{"refresh": tok}, "")
	if res.OK {
		var pair struct {
			Access  string `json:"access"`
			Refresh string `json:"refresh"`
		}
		if err := res.Decode(&pair); err == nil && pair.Access != "" {
			s.mu.Lock()
			s.access = pair.Access
			if pair.Refresh != "" {
				s.refresh = pair.Refresh
			}
			access, refresh := s.access, s.refresh
			s.mu.Unlock()
			if s.store != nil {
				s.store.Save(access, refresh)
			}
			return pair.Access
		}
	}

	s.log.Warn().Int("status", res.Status).Str("err", res.Err).Msg("token refresh failed, clearing session")
	s.clearState()
	return ""
}

// Do issues an authenticated request. On a 401 it refreshes the access
// token exactly once and retries once with the new token; a persistently
// failing backend therefore sees exactly two calls.
func (s *Session) Do(ctx context.Context, method, path string, body any) Result {
	s.mu.Lock()
	token := s.access
	s.mu.Unlock()

	var res Result
	for attempt := 0; attempt < 2; attempt++ {
		res = s.call(ctx, method, path, body, token)
		if res.Status != http.StatusUnauthorized {
			break
		}
		if attempt == 1 {
			break
		}
		token = s.RefreshAccessToken(ctx, "")
		if token == "" {
			break
		}
	}
	return res
}

// GetAccessToken returns the current access token, attempting one silent
// refresh when none is cached. Callers that need a guaranteed-fresh
// token at the moment of use (the WebSocket connect path) go through
// here instead of caching tokens themselves.
func (s *Session) GetAccessToken(ctx context.Context) string {
	s.mu.Lock()
	access := s.access
	s.mu.Unlock()
	if access != "" {
		return access
	}
	return s.RefreshAccessToken(ctx, "")
}

// RefreshUser re-fetches the profile with the current access token.
func (s *Session) RefreshUser(ctx context.Context) *User {
	return s.fetchCurrentUser(ctx, s.GetAccessToken(ctx))
}

// UpdateProfile PATCHes /auth/me/ and, on success, replaces the cached
// profile.
func (s *Session) UpdateProfile(ctx context.Context, patch any) Result {
	res := s.Do(ctx, http.MethodPatch, "/auth/me/", patch)
	if res.OK {
		var u User
		if err := res.Decode(&u); err == nil {
			s.setUser(&u)
		}
	}
	return res
}

// ResendVerification asks the server to resend the verification email.
func (s *Session) ResendVerification(ctx context.Context) Result {
	return s.Do(ctx, http.MethodPost, "/auth/resend-verification/", nil)
}

// ChangePassword changes the password for the logged-in account.
func (s *Session) ChangePassword(ctx context.Context, current, next string) Result {
	return s.Do(ctx, http.MethodPost, "/auth/me/change-password/", map[string]string{
		"current_password": current,
		"new_password":     next,
	})
}

// ForgotPassword requests a password-reset email. No authentication.
func (s *Session) ForgotPassword(ctx context.Context, email string) Result {
	return s.call(ctx, http.MethodPost, "/auth/forgot-password/", map[string]string{"email": email}, "")
}

// ResetPassword completes a password reset with an emailed token.
func (s *Session) ResetPassword(ctx context.Context, token, password string) Result {
	return s.call(ctx, http.MethodPost, "/auth/reset-password/", map[string]string{
		"token":    token,
		"password": password,
	}, "")
}

// User returns the cached profile, nil when unauthenticated.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Role returns the capability level resolved at profile load.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// IsAuthenticated reports whether a profile and access token are held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.access != ""
}

// IsEmailVerified reports the profile's verification flag.
func (s *Session) IsEmailVerified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil && s.user.Security.EmailVerified
}

// Close releases idle transport resources.
func (s *Session) Close() {
	s.http.CloseIdleConnections()
}

func (s *Session) setTokens(access, refresh string) {
	s.mu.Lock()
	s.access, s.refresh = access, refresh
	s.mu.Unlock()
	if s.store != nil {
		s.store.Save(access, refresh)
	}
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	s.role = resolveRole(u)
	s.mu.Unlock()
}

func (s *Session) clearState() {
	s.mu.Lock()
	s.access, s.refresh = "", ""
	s.user = nil
	s.role = RoleUser
	s.mu.Unlock()
	if s.store != nil {
		s.store.Clear()
	}
}

func (s *Session) fetchCurrentUser(ctx context.Context, token string) *User {
	if token == "" {
		s.setUser(nil)
		return nil
	}
	res := s.call(ctx, http.MethodGet, "/auth/me/", nil, token)
	if !res.OK {
		s.log.Warn().Int("status", res.Status).Str("err", res.Err).Msg("failed to load current user")
		s.setUser(nil)
		return nil
	}
	var u User
	if err := res.Decode(&u); err != nil {
		s.log.Warn().Err(err).Msg("malformed profile response")
		s.setUser(nil)
		return nil
	}
	s.setUser(&u)
	return &u
}

// call issues a single HTTP request with the given bearer token and
// normalizes the outcome into a Result. It never retries.
func (s *Session) call(ctx context.Context, method, path string, body any, token string) Result {
	url := path
	if !strings.HasPrefix(path, "http") {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		url = s.baseURL + path
	}

	var rdr io.Reader
	jsonBody := false
	switch b := body.(type) {
	case nil:
	case io.Reader:
		rdr = b // pass-through body, caller owns the content type
	case string:
		rdr = strings.NewReader(b) // raw body, never JSON-quoted
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return Result{Err: fmt.Sprintf("marshal request body: %v", err)}
		}
		rdr = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return Result{Err: err.Error()}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if jsonBody {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return Result{Err: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return Result{OK: true, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: resp.StatusCode, Err: err.Error()}
	}

	res := Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   data,
	}
	if !res.OK {
		res.Err = errText(res, resp.Status)
	}
	return res
}

// errText pulls a human-readable error out of a failed result body.
func errText(r Result, fallback string) string {
	if r.Err != "" && len(r.Data) == 0 {
		return r.Err
	}
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
		Msg    string `json:"message"`
	}
	if err := json.Unmarshal(r.Data, &body); err == nil {
		switch {
		case body.Error != "":
			return body.Error
		case body.Detail != "":
			return body.Detail
		case body.Msg != "":
			return body.Msg
		}
	}
	return fallback
}
