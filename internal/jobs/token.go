package jobs

import "sync/atomic"

// CancelToken is a per-run cooperative cancellation flag. Setting it never
// interrupts a stage function; the orchestrator polls it at checkpoints.
type CancelToken struct {
	set atomic.Bool
}

// NewCancelToken returns an unset token
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Set marks the token cancelled. Repeated calls have no further effect.
func (t *CancelToken) Set() {
	t.set.Store(true)
}

// IsSet reports whether cancellation was requested. It never blocks.
func (t *CancelToken) IsSet() bool {
	return t.set.Load()
}
