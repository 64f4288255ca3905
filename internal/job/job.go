// Package job implements the abstract Job contract described in the
// scheduler specification: a unit of work with identity, a strict
// lifecycle, and a single completion event per run episode.
//
// Concrete kinds (SyncJob, DelayedJob, the filesystem/URL kinds) only
// specialize "do the work" — every transition, retry, timeout, and
// subscriber-notification rule lives in baseJob.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/ChuLiYu/jobsched/internal/token"
	"github.com/ChuLiYu/jobsched/pkg/schedtypes"
)

// CompleteHandler is invoked exactly once with the job that just
// transitioned to COMPLETED or FAILED.
type CompleteHandler func(Job)

// HandlerID identifies a registered CompleteHandler for removal. Go
// function values cannot be compared for equality, so AddCompleteHandler
// returns a handle instead of relying on identity, per the re-architecture
// guidance for subscriber sets.
type HandlerID uint64

// Job is the uniform lifecycle and completion-notification protocol every
// concrete work kind implements.
type Job interface {
	fmt.Stringer

	ID() schedtypes.JobID
	StartAt() time.Time
	Dependencies() []schedtypes.JobID
	CanBeStarted() bool
	Result() any
	Phase() schedtypes.Phase

	// Run transitions PENDING->RUNNING and kicks off the kind-specific
	// work. Returns ErrIncorrectJobState if the job is not PENDING.
	Run() error
	// Stop disarms the timeout guard, clears the result, and returns the
	// job to PENDING. Only legal from RUNNING.
	Stop() error
	// Restart clears the result, returns to PENDING, and immediately
	// calls Run. Only legal from COMPLETED or FAILED.
	Restart() error
	// MakeFailed marks a PENDING job FAILED with "Manually failed" and
	// notifies subscribers, without ever running it.
	MakeFailed() error

	AddCompleteHandler(h CompleteHandler) HandlerID
	RemoveCompleteHandler(id HandlerID)
	RemoveAllCompleteHandlers()
}

// baseJob implements the full state machine; concrete kinds embed it and
// supply `work` (the synchronous body) plus, optionally, `start` (how
// work is kicked off — inline for SyncJob, after a delay for DelayedJob).
type baseJob struct {
	id             schedtypes.JobID
	startAt        time.Time
	maxWorkingTime time.Duration
	tries          int
	dependencies   []schedtypes.JobID

	mu            sync.Mutex
	phase         schedtypes.Phase
	result        any
	timeoutToken  *token.CancellationToken
	delayToken    *token.CancellationToken
	handlers      map[HandlerID]CompleteHandler
	nextHandlerID HandlerID

	self Job
	// work performs the kind-specific body and reports its outcome.
	work func() (any, error)
	// start is invoked once per Run episode, after the no-tries-left
	// check and after the timeout guard is armed. The default runs
	// work() inline; DelayedJob overrides it to defer work() behind a
	// delay timer.
	start func()
}

// Options configures a Job's immutable construction-time parameters.
type Options struct {
	// StartAt is the instant at which the job becomes eligible to run.
	// Zero value defaults to time.Now() evaluated at construction time
	// (not at package-load time — see SPEC_FULL.md §9 on the frozen
	// default bug in the original implementation).
	StartAt time.Time
	// MaxWorkingTime is the timeout; zero means no timeout.
	MaxWorkingTime time.Duration
	// Tries is the total attempt budget, including the first attempt. Nil
	// defaults to 1 (one attempt, no retry); a pointer to 0 is honored as
	// given, constructing a job that can never be started. Use TriesOf to
	// pass a literal value.
	Tries *int
	// Dependencies are job ids that must COMPLETE before this job may
	// run; if any reaches FAILED first, this job auto-fails.
	Dependencies []schedtypes.JobID
}

// TriesOf returns a pointer to n, for passing as Options.Tries. Needed
// because Options.Tries is a pointer so that an explicit zero ("no
// attempts left") can be distinguished from an unset field ("default to
// one attempt").
func TriesOf(n int) *int {
	return &n
}

func (o Options) normalize() Options {
	if o.StartAt.IsZero() {
		o.StartAt = time.Now()
	}
	if o.Tries == nil {
		o.Tries = TriesOf(1)
	}
	return o
}

func (b *baseJob) init(self Job, opts Options) {
	opts = opts.normalize()
	b.self = self
	b.id = schedtypes.NewJobID()
	b.startAt = opts.StartAt
	b.maxWorkingTime = opts.MaxWorkingTime
	b.tries = *opts.Tries
	b.dependencies = opts.Dependencies
	b.phase = schedtypes.Pending
	b.handlers = make(map[HandlerID]CompleteHandler)
	b.start = b.runWorkInline
}

func (b *baseJob) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("<Job %s (%s) -> %v>", b.id, b.phase, b.result)
}

func (b *baseJob) ID() schedtypes.JobID               { return b.id }
func (b *baseJob) StartAt() time.Time                 { return b.startAt }
func (b *baseJob) Dependencies() []schedtypes.JobID   { return b.dependencies }

func (b *baseJob) CanBeStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tries > 0
}

func (b *baseJob) Result() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

func (b *baseJob) Phase() schedtypes.Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// Run implements Job.Run. It mirrors original_source/scripts/job.py's
// Job.run(): create a fresh timeout token, transition to RUNNING, check
// the try budget before doing any work, arm the timeout guard, then kick
// off the kind-specific body. Arming first means the timeout window starts
// when Run is entered, so a synchronous body that blocks can still time
// out; a body that completes first disarms the guard.
func (b *baseJob) Run() error {
	b.mu.Lock()
	if b.phase != schedtypes.Pending {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}

	b.phase = schedtypes.Running
	b.result = nil
	timeoutTok := token.New()
	b.timeoutToken = timeoutTok
	noTriesLeft := b.tries <= 0
	b.mu.Unlock()

	if noTriesLeft {
		return b.notifyError(schedtypes.NoTriesLeftError)
	}

	b.armTimeout(timeoutTok)
	b.start()
	return nil
}

// runWorkInline is the default `start`: run the work synchronously on the
// calling goroutine, catching panics at this outer boundary exactly as
// the spec requires ("errors raised inside run() itself are caught once
// at the outer boundary of run").
func (b *baseJob) runWorkInline() {
	b.executeAndNotify()
}

// executeAndNotify calls work(), converts a panic or a returned error
// into the generic "Internal job error" failure, and otherwise reports
// success. It is the shared protected boundary used both by Run() (for
// synchronous kinds) and by delay/timer goroutines (for DelayedJob).
func (b *baseJob) executeAndNotify() {
	defer func() {
		if r := recover(); r != nil {
			_ = b.notifyError(schedtypes.InternalJobError)
		}
	}()

	result, err := b.work()
	if err != nil {
		_ = b.notifyError(schedtypes.InternalJobError)
		return
	}
	_ = b.notifyComplete(result)
}

func (b *baseJob) armTimeout(tok *token.CancellationToken) {
	if b.maxWorkingTime <= 0 || !tok.IsActive() {
		return
	}

	time.AfterFunc(b.maxWorkingTime, func() {
		if tok.IsActive() {
			_ = b.notifyError(schedtypes.TimeoutError)
		}
	})
}

// disarmGuards cancels the timeout and delay tokens for the episode that
// is ending. Called on every transition out of RUNNING.
func (b *baseJob) disarmGuards() {
	if b.timeoutToken != nil {
		if b.timeoutToken.IsActive() {
			b.timeoutToken.Cancel()
		}
		b.timeoutToken = nil
	}
	if b.delayToken != nil {
		if b.delayToken.IsActive() {
			b.delayToken.Cancel()
		}
		b.delayToken = nil
	}
}

// Stop implements Job.Stop.
func (b *baseJob) Stop() error {
	b.mu.Lock()
	if b.phase != schedtypes.Running {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}

	b.disarmGuards()
	b.result = nil
	b.phase = schedtypes.Pending
	b.mu.Unlock()

	return nil
}

// Restart implements Job.Restart.
func (b *baseJob) Restart() error {
	b.mu.Lock()
	if b.phase != schedtypes.Completed && b.phase != schedtypes.Failed {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}
	b.result = nil
	b.phase = schedtypes.Pending
	b.mu.Unlock()

	return b.self.Run()
}

// MakeFailed implements Job.MakeFailed.
func (b *baseJob) MakeFailed() error {
	b.mu.Lock()
	if b.phase != schedtypes.Pending {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}
	b.result = schedtypes.ManuallyFailedError
	b.phase = schedtypes.Failed
	b.mu.Unlock()

	b.notifyAllSubscribers()
	return nil
}

// notifyComplete implements the success half of the completion protocol.
func (b *baseJob) notifyComplete(result any) error {
	b.mu.Lock()
	if b.phase != schedtypes.Running {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}
	b.disarmGuards()
	b.result = result
	b.phase = schedtypes.Completed
	b.mu.Unlock()

	b.notifyAllSubscribers()
	return nil
}

// notifyError implements the failure half of the completion protocol. The
// try budget decrements only here, clamped at zero so a job that arrives
// with zero tries (the "No tries left" no-work path) never goes negative.
func (b *baseJob) notifyError(errResult any) error {
	b.mu.Lock()
	if b.phase != schedtypes.Running {
		b.mu.Unlock()
		return schedtypes.ErrIncorrectJobState
	}
	b.disarmGuards()
	if b.tries > 0 {
		b.tries--
	}
	b.result = errResult
	b.phase = schedtypes.Failed
	b.mu.Unlock()

	b.notifyAllSubscribers()
	return nil
}

func (b *baseJob) AddCompleteHandler(h CompleteHandler) HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextHandlerID++
	id := b.nextHandlerID
	b.handlers[id] = h
	return id
}

func (b *baseJob) RemoveCompleteHandler(id HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *baseJob) RemoveAllCompleteHandlers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[HandlerID]CompleteHandler)
}

// notifyAllSubscribers drains the subscriber set and invokes each handler
// exactly once, outside the lock.
func (b *baseJob) notifyAllSubscribers() {
	b.mu.Lock()
	handlers := b.handlers
	b.handlers = make(map[HandlerID]CompleteHandler)
	self := b.self
	b.mu.Unlock()

	for _, h := range handlers {
		h(self)
	}
}
