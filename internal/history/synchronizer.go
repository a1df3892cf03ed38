// Package history keeps a read-only view of past purchase transactions,
// grouped into date buckets, with at most one bucket expanded at a time.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"grocerybuddy/internal/api"
	"grocerybuddy/internal/cache"
	"grocerybuddy/internal/membership"
	"grocerybuddy/internal/model"
	"grocerybuddy/internal/session"
)

const defaultPollInterval = 10 * time.Second

// State is the synchronizer's display state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateEmpty   State = "empty"
	StateFailed  State = "failed"
)

// Snapshot is an immutable view of the synchronizer for rendering.
type Snapshot struct {
	State        State
	Transactions model.Transactions
	// Expanded is the date bucket currently open, or "" when all are
	// collapsed.
	Expanded  string
	FetchedAt time.Time
	LastError error
}

// Synchronizer polls the backend for the group's purchase history.
type Synchronizer struct {
	client  *api.Client
	session *session.Manager
	groups  *membership.Groups
	cache   *cache.Cache
	logger  *slog.Logger

	interval       time.Duration
	now            func() time.Time
	onAuthRequired func()

	mu           sync.RWMutex
	state        State
	transactions model.Transactions
	expanded     string
	fetchedAt    time.Time
	lastErr      error

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Synchronizer)

func WithCache(c *cache.Cache) Option {
	return func(s *Synchronizer) {
		s.cache = c
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.interval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

func WithAuthRequired(fn func()) Option {
	return func(s *Synchronizer) {
		s.onAuthRequired = fn
	}
}

func New(client *api.Client, sess *session.Manager, groups *membership.Groups, logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		client:   client,
		session:  sess,
		groups:   groups,
		logger:   logger,
		interval: defaultPollInterval,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start seeds from the cache, fetches once, and begins polling.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.seedFromCache()
	s.Refresh(ctx)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and cancels any in-flight fetch. The expanded
// bucket is transient screen state and does not survive a stop.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.expanded = ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Refresh fetches the history snapshot once, with the same failure policy
// as the list: no token routes to sign-in, no group defers, a failed fetch
// keeps the prior snapshot.
func (s *Synchronizer) Refresh(ctx context.Context) {
	token, err := s.session.Token()
	if err != nil {
		s.logger.Info("no session token, sign-in required")
		if s.onAuthRequired != nil {
			s.onAuthRequired()
		}
		return
	}

	groupID, ok := s.groups.Active()
	if !ok {
		s.logger.Debug("group membership unknown, deferring history fetch")
		return
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateLoading
	}
	s.mu.Unlock()

	fetched, err := s.client.Transactions(ctx, token, groupID)
	if err != nil {
		s.logger.Error("fetch transactions", "error", err)
		s.mu.Lock()
		s.lastErr = err
		if s.transactions == nil {
			s.state = StateFailed
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.transactions = fetched
	s.fetchedAt = s.now()
	s.lastErr = nil
	if len(fetched) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	if _, ok := fetched[s.expanded]; !ok {
		s.expanded = ""
	}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Save(groupID, cache.KindTransactions, fetched, s.now()); err != nil {
			s.logger.Error("cache transactions snapshot", "error", err)
		}
	}
}

// ToggleBucket expands the given date bucket, collapsing any other. Selecting
// the already-expanded bucket collapses it.
func (s *Synchronizer) ToggleBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expanded == bucket {
		s.expanded = ""
	} else {
		s.expanded = bucket
	}
}

// Expanded returns the currently expanded bucket, or "".
func (s *Synchronizer) Expanded() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded
}

// Snapshot returns a copy of the current display state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:        s.state,
		Transactions: s.transactions,
		Expanded:     s.expanded,
		FetchedAt:    s.fetchedAt,
		LastError:    s.lastErr,
	}
}

func (s *Synchronizer) seedFromCache() {
	if s.cache == nil {
		return
	}
	groupID, ok := s.groups.Active()
	if !ok {
		return
	}

	var cached model.Transactions
	fetchedAt, err := s.cache.Load(groupID, cache.KindTransactions, &cached)
	if errors.Is(err, cache.ErrNoSnapshot) {
		return
	}
	if err != nil {
		s.logger.Error("load cached transactions", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.transactions = cached
	s.fetchedAt = fetchedAt
	if len(cached) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	s.logger.Info("seeded transactions from cache", "fetched_at", fetchedAt)
}

// FormatBucketDate renders a "M D YYYY" date-bucket key (1-based month,
// space-separated) as a long date, e.g. "3 14 2024" -> "March 14, 2024".
// Malformed keys return an error instead of a garbage date.
func FormatBucketDate(bucket string) (string, error) {
	t, err := time.Parse("1 2 2006", bucket)
	if err != nil {
		return "", fmt.Errorf("parse date bucket %q: %w", bucket, err)
	}
	return t.Format("January 2, 2006"), nil
}
