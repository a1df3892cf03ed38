package history

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"grocerybuddy/internal/api"
	"grocerybuddy/internal/credstore"
	"grocerybuddy/internal/logging"
	"grocerybuddy/internal/membership"
	"grocerybuddy/internal/model"
	"grocerybuddy/internal/session"
)

func testLogger() *slog.Logger {
	return logging.New("error", io.Discard)
}

type backend struct {
	mu           sync.Mutex
	fetches      int
	transactions model.Transactions
	failFetch    bool
}

func (b *backend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.fetches++
		if b.failFetch {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]model.Transactions{"transactions": b.transactions})
	})
}

func (b *backend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func setupSynchronizer(t *testing.T, b *backend, opts ...Option) *Synchronizer {
	t.Helper()

	server := httptest.NewServer(b.handler())
	t.Cleanup(server.Close)

	store := credstore.NewMemStore()
	store.Set("tok-123")
	client := api.NewClient(server.URL)
	groups := membership.New()
	groups.Set([]string{"house-1"})
	sess := session.NewManager(store, client, groups, testLogger())

	return New(client, sess, groups, testLogger(), opts...)
}

func TestRefreshReady(t *testing.T) {
	b := &backend{transactions: model.Transactions{
		"3 14 2024": {{Item: "milk", Buyer: "ann"}},
	}}
	s := setupSynchronizer(t, b)

	s.Refresh(context.Background())

	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state = %s, want ready", snap.State)
	}
	if snap.Transactions.Buyer("3 14 2024") != "ann" {
		t.Errorf("transactions = %v", snap.Transactions)
	}
}

func TestRefreshEmptyCart(t *testing.T) {
	s := setupSynchronizer(t, &backend{transactions: model.Transactions{}})

	s.Refresh(context.Background())

	if state := s.Snapshot().State; state != StateEmpty {
		t.Errorf("state = %s, want empty", state)
	}
}

func TestRefreshFailureKeepsStaleSnapshot(t *testing.T) {
	b := &backend{transactions: model.Transactions{
		"3 14 2024": {{Item: "milk", Buyer: "ann"}},
	}}
	s := setupSynchronizer(t, b)

	s.Refresh(context.Background())

	b.mu.Lock()
	b.failFetch = true
	b.mu.Unlock()
	s.Refresh(context.Background())

	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Errorf("state = %s, want ready (stale snapshot)", snap.State)
	}
	if len(snap.Transactions) != 1 {
		t.Errorf("expected prior snapshot retained, got %v", snap.Transactions)
	}
	if snap.LastError == nil {
		t.Error("expected LastError recorded")
	}
}

func TestRefreshDeferredWithoutGroup(t *testing.T) {
	b := &backend{}
	server := httptest.NewServer(b.handler())
	t.Cleanup(server.Close)

	store := credstore.NewMemStore()
	store.Set("tok-123")
	client := api.NewClient(server.URL)
	groups := membership.New()
	sess := session.NewManager(store, client, groups, testLogger())
	s := New(client, sess, groups, testLogger())

	s.Refresh(context.Background())

	if n := b.fetchCount(); n != 0 {
		t.Errorf("fetches = %d, want 0 while group membership is unknown", n)
	}
}

func TestToggleBucket(t *testing.T) {
	s := setupSynchronizer(t, &backend{})

	s.ToggleBucket("3 14 2024")
	if got := s.Expanded(); got != "3 14 2024" {
		t.Errorf("expanded = %q", got)
	}

	// A different bucket supersedes the first; at most one is open.
	s.ToggleBucket("4 1 2024")
	if got := s.Expanded(); got != "4 1 2024" {
		t.Errorf("expanded = %q", got)
	}

	// Re-selecting collapses.
	s.ToggleBucket("4 1 2024")
	if got := s.Expanded(); got != "" {
		t.Errorf("expanded = %q, want collapsed", got)
	}
}

func TestExpandedBucketCollapsesWhenGone(t *testing.T) {
	b := &backend{transactions: model.Transactions{
		"3 14 2024": {{Item: "milk", Buyer: "ann"}},
	}}
	s := setupSynchronizer(t, b)

	s.Refresh(context.Background())
	s.ToggleBucket("3 14 2024")

	b.mu.Lock()
	b.transactions = model.Transactions{"4 1 2024": {{Item: "eggs", Buyer: "bo"}}}
	b.mu.Unlock()
	s.Refresh(context.Background())

	if got := s.Expanded(); got != "" {
		t.Errorf("expanded = %q, want collapsed after bucket disappeared", got)
	}
}

func TestPollingStopsOnStop(t *testing.T) {
	b := &backend{transactions: model.Transactions{
		"3 14 2024": {{Item: "milk", Buyer: "ann"}},
	}}
	s := setupSynchronizer(t, b, WithInterval(20*time.Millisecond))

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for b.fetchCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("poll loop never ticked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	after := b.fetchCount()
	time.Sleep(100 * time.Millisecond)
	if n := b.fetchCount(); n != after {
		t.Errorf("fetches kept running after Stop: %d -> %d", after, n)
	}
}

func TestFormatBucketDate(t *testing.T) {
	tests := []struct {
		bucket  string
		want    string
		wantErr bool
	}{
		{bucket: "3 14 2024", want: "March 14, 2024"},
		{bucket: "12 1 2023", want: "December 1, 2023"},
		{bucket: "1 2 2025", want: "January 2, 2025"},
		{bucket: "14 3 2024", wantErr: true},
		{bucket: "3-14-2024", wantErr: true},
		{bucket: "yesterday", wantErr: true},
		{bucket: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := FormatBucketDate(tt.bucket)
		if tt.wantErr {
			if err == nil {
				t.Errorf("FormatBucketDate(%q) = %q, want error", tt.bucket, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("FormatBucketDate(%q): %v", tt.bucket, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatBucketDate(%q) = %q, want %q", tt.bucket, got, tt.want)
		}
	}
}
