// Package session owns the authentication lifecycle: restoring a stored
// token, signing in, expiry-driven automatic logout, and the derived
// authenticated signal the router keys off.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"grocerybuddy/internal/api"
	"grocerybuddy/internal/credstore"
	"grocerybuddy/internal/membership"
)

// ErrNotAuthenticated is returned by Token when no session token is stored.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// User-displayable sign-in failure messages. The server's own error text
// takes precedence when it sends one.
const (
	MsgBadCredentials = "Invalid email or password."
	MsgSignInFailed   = "Something went wrong. Please try again."
)

// Manager is the sole owner of the session token. It is the only component
// that writes the credential store.
type Manager struct {
	store  credstore.Store
	client *api.Client
	groups *membership.Groups
	logger *slog.Logger

	now      func() time.Time
	onChange func(bool)

	mu            sync.Mutex
	authenticated bool
	expiresAt     time.Time
	timer         *time.Timer
}

type Option func(*Manager)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithAuthChanged registers the router signal. The callback fires after
// every authenticated-state transition, never while internal locks are held.
func WithAuthChanged(fn func(authenticated bool)) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

func NewManager(store credstore.Store, client *api.Client, groups *membership.Groups, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		client: client,
		groups: groups,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore reads the stored token and revalidates it. A missing, malformed,
// or expired token leaves the manager unauthenticated; malformed and expired
// tokens are also deleted from the store. Failures are logged, never
// surfaced: to the caller they are all just "no session".
func (m *Manager) Restore() {
	token, err := m.store.Get()
	if errors.Is(err, credstore.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Error("read stored token", "error", err)
		return
	}

	expiry, err := tokenExpiry(token)
	if err != nil {
		m.logger.Warn("stored token is malformed, discarding", "error", err)
		m.deleteToken()
		return
	}

	remaining := expiry.Sub(m.now())
	if remaining <= 0 {
		m.logger.Info("stored token is expired, discarding", "expired_at", expiry)
		m.deleteToken()
		return
	}

	m.becomeAuthenticated(expiry, remaining)
	m.logger.Info("session restored", "expires_in", remaining)
}

// SignIn exchanges credentials for a session. On success the token is
// persisted, the expiry timer armed, and the returned group memberships
// forwarded to the membership state. On failure the returned error message
// is displayable to the user, and the state stays unauthenticated. A failed
// attempt is terminal for the call: there is no retry.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	result, err := m.client.SignIn(ctx, email, password)
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			m.logger.Warn("sign-in rejected", "status", apiErr.Status)
			if apiErr.Message != "" {
				return errors.New(apiErr.Message)
			}
			return errors.New(MsgBadCredentials)
		}
		m.logger.Error("sign-in request failed", "error", err)
		return errors.New(MsgSignInFailed)
	}

	expiry, err := tokenExpiry(result.Token)
	if err != nil {
		m.logger.Error("server returned malformed token", "error", err)
		return errors.New(MsgSignInFailed)
	}
	remaining := expiry.Sub(m.now())
	if remaining <= 0 {
		m.logger.Error("server returned expired token", "expired_at", expiry)
		return errors.New(MsgSignInFailed)
	}

	if err := m.store.Set(result.Token); err != nil {
		m.logger.Error("persist token", "error", err)
		return errors.New(MsgSignInFailed)
	}

	m.groups.Set(result.GroupIDs)
	m.becomeAuthenticated(expiry, remaining)
	m.logger.Info("signed in", "groups", len(result.GroupIDs), "expires_in", remaining)
	return nil
}

// Logout deletes the persisted token and drops the authenticated state,
// unconditionally and synchronously. Timer-driven expiry and user-initiated
// logout both land here, so calling it when already logged out is a no-op
// beyond a redundant delete.
func (m *Manager) Logout() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.expiresAt = time.Time{}
	changed := m.authenticated
	m.authenticated = false
	m.mu.Unlock()

	m.deleteToken()
	m.groups.Clear()

	if changed {
		m.notify(false)
	}
}

// Authenticated reports whether a valid session is active.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// ExpiresAt returns the active session's expiry. ok is false when no
// session is active.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authenticated {
		return time.Time{}, false
	}
	return m.expiresAt, true
}

// Token hands the stored session token to data fetchers. The token itself
// stays owned by the manager and the store.
func (m *Manager) Token() (string, error) {
	token, err := m.store.Get()
	if errors.Is(err, credstore.ErrNotFound) {
		return "", ErrNotAuthenticated
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// EnsureGroups fetches group memberships when none are known yet. Sign-in
// populates them directly; a restored session has to fetch them separately.
func (m *Manager) EnsureGroups(ctx context.Context) error {
	if _, ok := m.groups.Active(); ok {
		return nil
	}

	token, err := m.Token()
	if err != nil {
		return err
	}

	ids, err := m.client.GroupIDs(ctx, token)
	if err != nil {
		return fmt.Errorf("fetch group ids: %w", err)
	}
	m.groups.Set(ids)
	return nil
}

// becomeAuthenticated flips the state and arms the expiry timer. A new arm
// supersedes any pending one; at most one timer is live at a time.
func (m *Manager) becomeAuthenticated(expiry time.Time, remaining time.Duration) {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(remaining, m.expire)
	m.expiresAt = expiry
	changed := !m.authenticated
	m.authenticated = true
	m.mu.Unlock()

	if changed {
		m.notify(true)
	}
}

func (m *Manager) expire() {
	m.logger.Info("session expired, logging out")
	m.Logout()
}

func (m *Manager) deleteToken() {
	if err := m.store.Delete(); err != nil {
		m.logger.Error("delete stored token", "error", err)
	}
}

func (m *Manager) notify(authenticated bool) {
	if m.onChange != nil {
		m.onChange(authenticated)
	}
}

// tokenExpiry decodes the token's embedded expiry. The client holds no
// signing key, so the claims are read without signature verification; the
// server remains the authority on token validity.
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("token has no expiry claim")
	}
	return claims.ExpiresAt.Time, nil
}
