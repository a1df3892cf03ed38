package list

// State is the synchronizer's display state. Every UI branch switches over
// it exhaustively instead of combining loose boolean flags.
type State string

const (
	// StateIdle: nothing fetched yet, no fetch running.
	StateIdle State = "idle"
	// StateLoading: first fetch in flight, nothing to show yet.
	StateLoading State = "loading"
	// StateReady: a snapshot is available. It may be stale if the most
	// recent fetch failed; LastError is set in that case.
	StateReady State = "ready"
	// StateEmpty: the last fetch succeeded and the list has no items.
	StateEmpty State = "empty"
	// StateFailed: a fetch failed and there is no snapshot to fall back on.
	StateFailed State = "failed"
)
