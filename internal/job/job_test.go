package job

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/jobsched/pkg/schedtypes"
)

func TestNewSyncJobHasUniqueIDAndIsPending(t *testing.T) {
	a := NewSyncJob(func() (any, error) { return nil, nil }, Options{})
	b := NewSyncJob(func() (any, error) { return nil, nil }, Options{})

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, schedtypes.Pending, a.Phase())
}

func TestRunFromNonPendingReturnsIncorrectState(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "ok", nil }, Options{})
	require.NoError(t, j.Run())

	err := j.Run()
	assert.ErrorIs(t, err, schedtypes.ErrIncorrectJobState)
}

func TestSyncJobCompletesAndDeliversResult(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return 42, nil }, Options{})

	var got Job
	j.AddCompleteHandler(func(done Job) { got = done })

	require.NoError(t, j.Run())

	assert.Equal(t, schedtypes.Completed, j.Phase())
	assert.Equal(t, 42, j.Result())
	require.NotNil(t, got)
	assert.Equal(t, j.ID(), got.ID())
}

func TestSyncJobWorkerErrorBecomesInternalJobError(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return nil, errors.New("boom") }, Options{})
	require.NoError(t, j.Run())

	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.Equal(t, schedtypes.InternalJobError, j.Result())
}

func TestSyncJobWorkerPanicBecomesInternalJobError(t *testing.T) {
	j := NewSyncJob(func() (any, error) {
		panic("unexpected")
	}, Options{})

	require.NoError(t, j.Run())

	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.Equal(t, schedtypes.InternalJobError, j.Result())
}

func TestCompleteHandlerFiresExactlyOnce(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "done", nil }, Options{})

	calls := 0
	j.AddCompleteHandler(func(Job) { calls++ })

	require.NoError(t, j.Run())
	assert.Equal(t, 1, calls)
}

func TestRemoveCompleteHandlerPreventsDelivery(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "done", nil }, Options{})

	called := false
	id := j.AddCompleteHandler(func(Job) { called = true })
	j.RemoveCompleteHandler(id)

	require.NoError(t, j.Run())
	assert.False(t, called)
}

func TestCanBeStartedReflectsTryBudget(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return nil, errors.New("fail") }, Options{Tries: TriesOf(1)})
	assert.True(t, j.CanBeStarted())

	require.NoError(t, j.Run())
	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.False(t, j.CanBeStarted())
}

func TestZeroTriesJobCannotBeStartedAndFailsWithoutRunningWork(t *testing.T) {
	j := NewSyncJob(func() (any, error) {
		t.Fatal("worker must not run when constructed with zero tries")
		return nil, nil
	}, Options{Tries: TriesOf(0)})

	assert.False(t, j.CanBeStarted())

	require.NoError(t, j.Run())
	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.Equal(t, schedtypes.NoTriesLeftError, j.Result())
}

func TestNoTriesLeftFailsWithoutRunningWorkOnRestart(t *testing.T) {
	ran := 0
	j := NewSyncJob(func() (any, error) {
		ran++
		return nil, errors.New("fail")
	}, Options{Tries: TriesOf(1)})

	require.NoError(t, j.Run())
	assert.False(t, j.CanBeStarted())
	assert.Equal(t, 1, ran)

	// Restart from FAILED with an exhausted budget must fail immediately
	// with "No tries left" and must not invoke the worker again.
	require.NoError(t, j.Restart())
	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.Equal(t, schedtypes.NoTriesLeftError, j.Result())
	assert.Equal(t, 1, ran)
}

func TestStopFromRunningReturnsToPendingAndDiscardsResult(t *testing.T) {
	block := make(chan struct{})
	j := NewSyncJob(func() (any, error) {
		<-block
		return "late", nil
	}, Options{})

	done := make(chan struct{})
	go func() {
		_ = j.Run()
		close(done)
	}()

	// give the worker goroutine a chance to block
	time.Sleep(10 * time.Millisecond)

	// Stop is only legal from RUNNING; here the job is blocked mid-work on
	// its own goroutine, so the calling goroutine observes RUNNING.
	err := j.Stop()
	require.NoError(t, err)
	assert.Equal(t, schedtypes.Pending, j.Phase())
	assert.Nil(t, j.Result())

	close(block)
	<-done
}

func TestStopWhenNotRunningReturnsIncorrectState(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "ok", nil }, Options{})
	err := j.Stop()
	assert.ErrorIs(t, err, schedtypes.ErrIncorrectJobState)
}

func TestRestartClearsResultAndRunsAgain(t *testing.T) {
	attempt := 0
	j := NewSyncJob(func() (any, error) {
		attempt++
		if attempt == 1 {
			return nil, errors.New("first try fails")
		}
		return "second try works", nil
	}, Options{Tries: TriesOf(2)})

	require.NoError(t, j.Run())
	assert.Equal(t, schedtypes.Failed, j.Phase())

	require.NoError(t, j.Restart())
	assert.Equal(t, schedtypes.Completed, j.Phase())
	assert.Equal(t, "second try works", j.Result())
}

func TestMakeFailedOnlyLegalFromPending(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "ok", nil }, Options{})
	require.NoError(t, j.Run())

	err := j.MakeFailed()
	assert.ErrorIs(t, err, schedtypes.ErrIncorrectJobState)
}

func TestMakeFailedNotifiesWithoutRunningWork(t *testing.T) {
	j := NewSyncJob(func() (any, error) {
		t.Fatal("worker must not run on MakeFailed")
		return nil, nil
	}, Options{})

	var notified Job
	j.AddCompleteHandler(func(done Job) { notified = done })

	require.NoError(t, j.MakeFailed())
	assert.Equal(t, schedtypes.Failed, j.Phase())
	assert.Equal(t, schedtypes.ManuallyFailedError, j.Result())
	require.NotNil(t, notified)
}

func TestTimeoutFailsJobBeforeSlowWorkerFinishes(t *testing.T) {
	release := make(chan struct{})
	j := NewSyncJob(func() (any, error) {
		<-release
		return "too late", nil
	}, Options{MaxWorkingTime: 20 * time.Millisecond})

	var mu sync.Mutex
	var result any
	done := make(chan struct{})
	j.AddCompleteHandler(func(finished Job) {
		mu.Lock()
		result = finished.Result()
		mu.Unlock()
		close(done)
	})

	go func() { _ = j.Run() }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout guard never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, schedtypes.TimeoutError, result)

	close(release)
}

func TestFastCompletionWinsRaceAgainstTimeout(t *testing.T) {
	j := NewSyncJob(func() (any, error) { return "fast", nil }, Options{MaxWorkingTime: 50 * time.Millisecond})

	require.NoError(t, j.Run())
	assert.Equal(t, schedtypes.Completed, j.Phase())
	assert.Equal(t, "fast", j.Result())

	// confirm the timeout guard, if it had fired, would not retroactively
	// flip an already-terminal job
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, schedtypes.Completed, j.Phase())
}

func TestDelayedJobRunsWorkerAfterDelay(t *testing.T) {
	j := NewDelayedJob(15*time.Millisecond, func() (any, error) { return "delayed", nil }, Options{})

	done := make(chan struct{})
	j.AddCompleteHandler(func(Job) { close(done) })

	require.NoError(t, j.Run())
	assert.Equal(t, schedtypes.Running, j.Phase())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("delayed worker never fired")
	}
	assert.Equal(t, schedtypes.Completed, j.Phase())
	assert.Equal(t, "delayed", j.Result())
}

func TestStoppingDelayedJobBeforeItFiresPreventsWorker(t *testing.T) {
	j := NewDelayedJob(50*time.Millisecond, func() (any, error) {
		t.Fatal("worker must not run after Stop cancels the delay")
		return nil, nil
	}, Options{})

	require.NoError(t, j.Run())
	require.NoError(t, j.Stop())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, schedtypes.Pending, j.Phase())
}

func TestStartAtDefaultsToConstructionTime(t *testing.T) {
	before := time.Now()
	j := NewSyncJob(func() (any, error) { return nil, nil }, Options{})
	after := time.Now()

	assert.False(t, j.StartAt().Before(before))
	assert.False(t, j.StartAt().After(after))
}
