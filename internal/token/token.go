// Package token implements a one-shot cancellation flag with callback
// fan-out, used to invalidate timers and guards when a job or scheduler
// exits the state they were armed for.
package token

import "sync"

// CancellationToken represents a single binary cancellation event.
//
// Cancel, Complete, and the enqueue branch of OnCancel are serialized by
// an internal lock. Callback invocation happens outside the lock so a
// callback that re-enters the token (or another lock held by the caller)
// cannot deadlock.
type CancellationToken struct {
	mu        sync.Mutex
	callbacks []func()
	cancelled bool
	completed bool
}

// New returns an active CancellationToken.
func New() *CancellationToken {
	return &CancellationToken{}
}

// OnCancel registers a callback to run when the token is cancelled. If
// the token is already cancelled, the callback runs immediately on the
// calling goroutine.
func (t *CancellationToken) OnCancel(cb func()) {
	t.mu.Lock()
	if !t.cancelled {
		t.callbacks = append(t.callbacks, cb)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	cb()
}

// Cancel is idempotent: on the first call it marks the token cancelled
// and completed, then invokes every registered callback exactly once, in
// registration order.
func (t *CancellationToken) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.completed = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// Complete marks the token completed without cancelling it, indicating
// the protected operation finished on its own.
func (t *CancellationToken) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed = true
}

// IsActive reports whether the token is neither cancelled nor completed.
func (t *CancellationToken) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.cancelled && !t.completed
}

// IsCancelled reports whether Cancel has been called.
func (t *CancellationToken) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
