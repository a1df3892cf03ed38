// Package list keeps a client-side copy of the shared grocery list fresh:
// periodic polling, per-item selection, and checkout of selected items.
package list

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

// Snapshot is an immutable view of the synchronizer for rendering.
type Snapshot struct {
	State     State
	List      model.GroceryList
	Checked   map[model.ItemKey]bool
	FetchedAt time.Time
	// LastError records the most recent fetch failure. It can coexist with
	// StateReady: the prior snapshot is kept and shown stale.
	LastError error
}

// CheckoutFailure is one item whose delete call failed.
type CheckoutFailure struct {
	Key model.ItemKey
	Err error
}

// CheckoutResult reports a completed checkout batch. All per-item calls are
// finished (not merely issued) by the time it is returned.
type CheckoutResult struct {
	Attempted int
	Failed    []CheckoutFailure
}

// Synchronizer polls the backend for the group's grocery list and tracks
// which items the user has selected for checkout.
type Synchronizer struct {
	client  *api.Client
	session *session.Manager
	groups  *membership.Groups
	cache   *cache.Cache
	logger  *slog.Logger

	interval       time.Duration
	now            func() time.Time
	onAuthRequired func()

	mu        sync.RWMutex
	state     State
	list      model.GroceryList
	checked   map[model.ItemKey]bool
	fetchedAt time.Time
	lastErr   error

	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Synchronizer)

// WithCache enables snapshot persistence, pre-seeding the list at startup
// and saving every successful fetch.
func WithCache(c *cache.Cache) Option {
	return func(s *Synchronizer) {
		s.cache = c
	}
}

// WithInterval overrides the 10-second poll period.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.interval = d
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithAuthRequired registers the router hook invoked when a fetch finds no
// session token. The router is expected to navigate to sign-in.
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
		checked:  make(map[model.ItemKey]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start seeds from the cache, fetches once, and begins polling. The loop
// runs until Stop is called or ctx is cancelled.
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

// Stop halts the poll loop and cancels any in-flight fetch. Selection state
// is transient screen state and does not survive a stop.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.checked = make(map[model.ItemKey]bool)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Refresh fetches the current list snapshot once. A fetch without a session
// token routes to re-authentication; a fetch without a known group id is
// deferred; a failed fetch keeps the prior snapshot.
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
		s.logger.Debug("group membership unknown, deferring list fetch")
		return
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.state = StateLoading
	}
	s.mu.Unlock()

	fetched, err := s.client.GroceryList(ctx, token, groupID)
	if err != nil {
		s.recordFetchError(err)
		return
	}

	s.replaceSnapshot(fetched)

	if s.cache != nil {
		if err := s.cache.Save(groupID, cache.KindList, fetched, s.now()); err != nil {
			s.logger.Error("cache list snapshot", "error", err)
		}
	}
}

// Toggle flips the transient checked state for one item. Purely local: no
// network call, no persistence. Toggling twice restores the prior state.
func (s *Synchronizer) Toggle(category, itemID string) {
	key := model.ItemKey{Category: category, ItemID: itemID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checked[key] {
		delete(s.checked, key)
	} else {
		s.checked[key] = true
	}
}

// Checked reports whether the item is currently selected.
func (s *Synchronizer) Checked(category, itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checked[model.ItemKey{Category: category, ItemID: itemID}]
}

// ErrNothingSelected is returned by Commit when no items are checked.
var ErrNothingSelected = errors.New("list: nothing selected")

// Commit checks out every selected item: one delete call per item, issued
// concurrently and all collected before the batch is declared complete.
// Whatever the per-item outcomes, the selection is then cleared and exactly
// one list refresh is triggered; the server's next snapshot is authoritative.
func (s *Synchronizer) Commit(ctx context.Context) (CheckoutResult, error) {
	token, err := s.session.Token()
	if err != nil {
		if s.onAuthRequired != nil {
			s.onAuthRequired()
		}
		return CheckoutResult{}, err
	}

	groupID, ok := s.groups.Active()
	if !ok {
		return CheckoutResult{}, errors.New("list: group membership unknown")
	}

	s.mu.RLock()
	keys := make([]model.ItemKey, 0, len(s.checked))
	for key := range s.checked {
		keys = append(keys, key)
	}
	s.mu.RUnlock()

	if len(keys) == 0 {
		return CheckoutResult{}, ErrNothingSelected
	}

	dateID := dateBucket(s.now())
	result := CheckoutResult{Attempted: len(keys)}

	var wg sync.WaitGroup
	var failMu sync.Mutex
	for _, key := range keys {
		wg.Add(1)
		go func(key model.ItemKey) {
			defer wg.Done()
			err := s.client.CheckoutItem(ctx, token, api.CheckoutRequest{
				ItemID:   key.ItemID,
				Category: key.Category,
				DateID:   dateID,
				GroupID:  groupID,
			})
			if err != nil {
				s.logger.Error("checkout item", "category", key.Category, "item_id", key.ItemID, "error", err)
				failMu.Lock()
				result.Failed = append(result.Failed, CheckoutFailure{Key: key, Err: err})
				failMu.Unlock()
			}
		}(key)
	}
	wg.Wait()

	s.mu.Lock()
	s.checked = make(map[model.ItemKey]bool)
	s.mu.Unlock()

	s.Refresh(ctx)
	return result, nil
}

// Snapshot returns a copy of the current display state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checked := make(map[model.ItemKey]bool, len(s.checked))
	for k, v := range s.checked {
		checked[k] = v
	}
	return Snapshot{
		State:     s.state,
		List:      s.list,
		Checked:   checked,
		FetchedAt: s.fetchedAt,
		LastError: s.lastErr,
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

	var cached model.GroceryList
	fetchedAt, err := s.cache.Load(groupID, cache.KindList, &cached)
	if errors.Is(err, cache.ErrNoSnapshot) {
		return
	}
	if err != nil {
		s.logger.Error("load cached list", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.list = cached
	s.fetchedAt = fetchedAt
	if cached.Len() == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	s.logger.Info("seeded list from cache", "fetched_at", fetchedAt)
}

// replaceSnapshot installs a fresh server snapshot wholesale and prunes
// selections pointing at items that no longer exist.
func (s *Synchronizer) replaceSnapshot(fetched model.GroceryList) {
	present := make(map[model.ItemKey]bool, fetched.Len())
	for category, items := range fetched {
		for _, item := range items {
			present[model.ItemKey{Category: category, ItemID: item.ID}] = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = fetched
	s.fetchedAt = s.now()
	s.lastErr = nil
	if fetched.Len() == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReady
	}
	for key := range s.checked {
		if !present[key] {
			delete(s.checked, key)
		}
	}
}

func (s *Synchronizer) recordFetchError(err error) {
	s.logger.Error("fetch grocery list", "error", err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if s.list == nil {
		s.state = StateFailed
	}
	// Otherwise the prior snapshot stays visible, stale but available.
}

// dateBucket synthesizes the transaction date-bucket id for t, in the
// backend's "M D YYYY" format (1-based month, no zero padding).
func dateBucket(t time.Time) string {
	return fmt.Sprintf("%d %d %d", int(t.Month()), t.Day(), t.Year())
}
