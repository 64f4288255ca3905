package token

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenIsActive(t *testing.T) {
	tok := New()
	assert.True(t, tok.IsActive())
	assert.False(t, tok.IsCancelled())
}

func TestCancelInvokesCallbacksInOrder(t *testing.T) {
	tok := New()

	var order []int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		i := i
		tok.OnCancel(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	tok.Cancel()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.True(t, tok.IsCancelled())
	assert.False(t, tok.IsActive())
}

func TestCancelIsIdempotent(t *testing.T) {
	tok := New()

	calls := 0
	tok.OnCancel(func() { calls++ })

	tok.Cancel()
	tok.Cancel()
	tok.Cancel()

	assert.Equal(t, 1, calls)
}

func TestOnCancelAfterCancelRunsImmediately(t *testing.T) {
	tok := New()
	tok.Cancel()

	called := false
	tok.OnCancel(func() { called = true })

	assert.True(t, called)
}

func TestCompleteMarksInactiveWithoutCancelling(t *testing.T) {
	tok := New()
	tok.Complete()

	assert.False(t, tok.IsActive())
	assert.False(t, tok.IsCancelled())
}

func TestCancelDoesNotDeadlockOnReentrantCallback(t *testing.T) {
	tok := New()
	done := make(chan struct{})

	tok.OnCancel(func() {
		// a callback that queries the token it was cancelled from must
		// not deadlock: Cancel invokes callbacks outside its lock.
		_ = tok.IsCancelled()
		close(done)
	})

	tok.Cancel()

	select {
	case <-done:
	default:
		t.Fatal("callback did not run")
	}
}
