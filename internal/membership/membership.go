// Package membership holds the group identifiers the signed-in user belongs
// to. It is populated from the sign-in response or a landing-time fetch and
// consumed by the synchronizers to scope requests.
package membership

import "sync"

// Groups is the shared membership state. An empty list means "not yet
// known"; consumers must go through Active rather than indexing.
type Groups struct {
	mu  sync.RWMutex
	ids []string
}

func New() *Groups {
	return &Groups{}
}

// Set replaces the membership list.
func (g *Groups) Set(ids []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = append([]string(nil), ids...)
}

// Clear empties the membership list.
func (g *Groups) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids = nil
}

// IDs returns a copy of the full membership list.
func (g *Groups) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.ids...)
}

// Active returns the group all requests are scoped to. Requests are
// single-group only: the first membership wins, a known limitation. The
// second return is false while no groups are known, and callers must defer
// their request until it is true.
func (g *Groups) Active() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.ids) == 0 {
		return "", false
	}
	return g.ids[0], true
}
