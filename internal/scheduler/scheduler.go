// Package scheduler implements the Scheduler: admission control over a
// bounded pool, dependency-ordered and time-gated dispatch, and cascading
// failure propagation across a job dependency graph.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ChuLiYu/jobsched/internal/job"
	"github.com/ChuLiYu/jobsched/internal/metrics"
	"github.com/ChuLiYu/jobsched/internal/token"
	"github.com/ChuLiYu/jobsched/pkg/schedtypes"
)

var log = slog.Default()

// Scheduler admits jobs into a bounded pool and drives them from PENDING
// through RUNNING to COMPLETED/FAILED, honoring per-job dependency and
// start-time constraints.
type Scheduler struct {
	mu sync.Mutex

	poolSize  int
	pending   map[schedtypes.JobID]job.Job
	running   map[schedtypes.JobID]job.Job
	completed map[schedtypes.JobID]struct{}
	failed    map[schedtypes.JobID]struct{}

	dispatchedAt map[schedtypes.JobID]time.Time

	cancellationToken *token.CancellationToken
	metrics           *metrics.Collector
}

// New builds a Scheduler admitting at most poolSize concurrently
// pending+running jobs. metrics may be nil.
func New(poolSize int, collector *metrics.Collector) *Scheduler {
	s := &Scheduler{
		poolSize:     poolSize,
		pending:      make(map[schedtypes.JobID]job.Job),
		running:      make(map[schedtypes.JobID]job.Job),
		completed:    make(map[schedtypes.JobID]struct{}),
		failed:       make(map[schedtypes.JobID]struct{}),
		dispatchedAt: make(map[schedtypes.JobID]time.Time),
		metrics:      collector,
	}
	if collector != nil {
		collector.SetPoolSize(poolSize)
	}
	return s
}

// updatePoolMetricsLocked refreshes the pending/running gauges. Caller
// must hold s.mu.
func (s *Scheduler) updatePoolMetricsLocked() {
	if s.metrics != nil {
		s.metrics.UpdatePoolStats(len(s.pending), len(s.running))
	}
}

// recordLatencyLocked observes dispatch-to-terminal latency for id, if a
// dispatch timestamp was recorded. Caller must hold s.mu.
func (s *Scheduler) recordLatencyLocked(id schedtypes.JobID) {
	start, ok := s.dispatchedAt[id]
	if !ok {
		return
	}
	delete(s.dispatchedAt, id)
	if s.metrics != nil {
		s.metrics.ObserveLatency(time.Since(start))
	}
}

// TotalJobsAmount reports the pending+running count.
func (s *Scheduler) TotalJobsAmount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + len(s.running)
}

// IsRunning reports whether Run has been called without a matching Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancellationToken != nil
}

// Schedule admits j into the pending set. If any of j's dependencies has
// already failed, j is immediately marked failed, removed from pending
// again, and the cascade runs; it is never dispatched.
func (s *Scheduler) Schedule(j job.Job) error {
	s.mu.Lock()

	if len(s.pending)+len(s.running) >= s.poolSize {
		s.mu.Unlock()
		return schedtypes.ErrPoolSize
	}

	id := j.ID()
	if _, ok := s.pending[id]; ok {
		s.mu.Unlock()
		return schedtypes.ErrJobTwiceScheduling
	}
	if _, ok := s.running[id]; ok {
		s.mu.Unlock()
		return schedtypes.ErrJobTwiceScheduling
	}
	if _, ok := s.completed[id]; ok {
		s.mu.Unlock()
		return schedtypes.ErrJobTwiceScheduling
	}
	if _, ok := s.failed[id]; ok {
		s.mu.Unlock()
		return schedtypes.ErrJobTwiceScheduling
	}

	log.Info("schedule job", "job_id", id)
	s.pending[id] = j
	if s.metrics != nil {
		s.metrics.RecordScheduled()
	}
	s.updatePoolMetricsLocked()

	for _, dep := range j.Dependencies() {
		if _, failed := s.failed[dep]; failed {
			_ = j.MakeFailed()
			s.mu.Unlock()
			s.onJobFailed(j)
			return nil
		}
	}

	s.mu.Unlock()
	s.startJobIfCan(j)
	return nil
}

// Run arms a fresh cancellation token and attempts to start every
// currently pending job. Calling Run again while already running
// replaces the token unconditionally: deferred-start timers armed under
// the stale token become permanently inert, matching
// original_source/scripts/scheduler.py's run().
func (s *Scheduler) Run() {
	log.Info("run scheduler")

	s.mu.Lock()
	s.cancellationToken = token.New()
	pendingSnapshot := make([]job.Job, 0, len(s.pending))
	for _, j := range s.pending {
		pendingSnapshot = append(pendingSnapshot, j)
	}
	s.mu.Unlock()

	for _, j := range pendingSnapshot {
		s.startJobIfCan(j)
	}
}

// Stop cancels the master token, detaches every running job's completion
// handlers, returns each running job to PENDING, and cancels its own
// timeout guard via Job.Stop.
func (s *Scheduler) Stop() {
	log.Info("stop scheduler")

	s.mu.Lock()
	if s.cancellationToken != nil {
		s.cancellationToken.Cancel()
		s.cancellationToken = nil
	}
	runningSnapshot := make([]job.Job, 0, len(s.running))
	for id, j := range s.running {
		runningSnapshot = append(runningSnapshot, j)
		delete(s.running, id)
		delete(s.dispatchedAt, id)
	}
	s.updatePoolMetricsLocked()
	s.mu.Unlock()

	for _, j := range runningSnapshot {
		j.RemoveAllCompleteHandlers()
		_ = j.Stop()
		s.mu.Lock()
		s.pending[j.ID()] = j
		s.updatePoolMetricsLocked()
		s.mu.Unlock()
	}
}

func (s *Scheduler) isRunningLocked() bool {
	return s.cancellationToken != nil
}

// startJobIfCan attempts to move j from pending toward running: gated
// first by dependency completion, then by start time. If the job isn't
// due yet, a deferred-start timer is armed instead.
func (s *Scheduler) startJobIfCan(j job.Job) bool {
	s.mu.Lock()
	if !s.isRunningLocked() {
		s.mu.Unlock()
		return false
	}
	tok := s.cancellationToken
	s.mu.Unlock()

	log.Info("check job", "job_id", j.ID())

	if !s.isJobAvailableByDependencies(j) {
		return false
	}

	if !isJobAvailableByTime(j) {
		s.scheduleJobStart(j, tok)
		return false
	}

	s.startJob(j)
	return true
}

// registerCompletionHandler subscribes j's next completion episode to the
// scheduler's phase-dispatch. AddCompleteHandler only fires once per
// episode (the subscriber set is drained on every notify), so this must be
// called again before any Run/Restart that should report back here.
func (s *Scheduler) registerCompletionHandler(j job.Job) {
	j.AddCompleteHandler(func(completed job.Job) {
		switch completed.Phase() {
		case schedtypes.Completed:
			s.onJobCompletedSuccessfully(completed)
		case schedtypes.Failed:
			s.onJobFailed(completed)
		default:
			panic(fmt.Errorf("scheduler completion handler invoked with phase %s: %w", completed.Phase(), schedtypes.ErrIncorrectJobState))
		}
	})
}

func (s *Scheduler) startJob(j job.Job) {
	s.registerCompletionHandler(j)

	s.mu.Lock()
	delete(s.pending, j.ID())
	s.running[j.ID()] = j
	s.dispatchedAt[j.ID()] = time.Now()
	if s.metrics != nil {
		s.metrics.RecordDispatched()
	}
	s.updatePoolMetricsLocked()
	s.mu.Unlock()

	_ = j.Run()
}

// scheduleJobStart arms a one-shot timer for j's start time. The timer's
// closure re-checks both the captured token and pending membership at
// fire time, since either may have changed (Stop/Run replaced the token,
// or the job may already have been started via a dependency-completion
// path).
func (s *Scheduler) scheduleJobStart(j job.Job, tok *token.CancellationToken) {
	delay := time.Until(j.StartAt())
	if delay < 0 {
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		if !tok.IsActive() {
			return
		}

		s.mu.Lock()
		_, stillPending := s.pending[j.ID()]
		running := s.isRunningLocked()
		s.mu.Unlock()

		if !running || !stillPending {
			return
		}

		s.startJob(j)
	})
	tok.OnCancel(func() { timer.Stop() })
}

func isJobAvailableByTime(j job.Job) bool {
	return !j.StartAt().After(time.Now())
}

func (s *Scheduler) isJobAvailableByDependencies(j job.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dep := range j.Dependencies() {
		if _, ok := s.completed[dep]; !ok {
			return false
		}
	}
	return true
}

func (s *Scheduler) onJobCompletedSuccessfully(j job.Job) {
	s.mu.Lock()
	delete(s.running, j.ID())
	s.completed[j.ID()] = struct{}{}
	s.recordLatencyLocked(j.ID())
	if s.metrics != nil {
		s.metrics.RecordCompleted()
	}
	s.updatePoolMetricsLocked()

	dependents := make([]job.Job, 0)
	for _, pending := range s.pending {
		for _, dep := range pending.Dependencies() {
			if dep == j.ID() {
				dependents = append(dependents, pending)
				break
			}
		}
	}
	s.mu.Unlock()

	for _, dependent := range dependents {
		s.startJobIfCan(dependent)
	}
}

// onJobFailed implements the retry/fail/cascade decision for a job that
// just transitioned to FAILED, whether by running out and failing or by
// auto-failure due to a failed dependency (the latter case is detected by
// the job still being in pending).
func (s *Scheduler) onJobFailed(j job.Job) {
	s.mu.Lock()
	_, isAutoFail := s.pending[j.ID()]
	canRestart := j.CanBeStarted() && !isAutoFail
	s.mu.Unlock()

	if canRestart {
		// j's handler set was already drained to deliver this very FAILED
		// notification, so the retried episode needs a fresh subscription
		// registered before Restart kicks it off again (Restart's call to
		// Run may complete synchronously on this goroutine).
		s.registerCompletionHandler(j)
		_ = j.Restart()
		return
	}

	s.mu.Lock()
	if isAutoFail {
		delete(s.pending, j.ID())
	} else {
		delete(s.running, j.ID())
		s.recordLatencyLocked(j.ID())
	}
	s.failed[j.ID()] = struct{}{}
	if s.metrics != nil {
		s.metrics.RecordFailed()
		if j.Result() == schedtypes.TimeoutError {
			s.metrics.RecordTimedOut()
		}
	}
	s.updatePoolMetricsLocked()
	s.mu.Unlock()

	log.Info("job added to failed", "job_id", j.ID())

	s.cascadeFail(j.ID())
}

// cascadeFail auto-fails every pending job that (transitively) depends on
// failedID, using an explicit work-list instead of recursion so a long
// dependency chain cannot blow the call stack.
func (s *Scheduler) cascadeFail(failedID schedtypes.JobID) {
	workList := []schedtypes.JobID{failedID}

	for len(workList) > 0 {
		id := workList[0]
		workList = workList[1:]

		s.mu.Lock()
		var toFail []job.Job
		for _, pending := range s.pending {
			if pending.Phase() == schedtypes.Failed {
				continue
			}
			for _, dep := range pending.Dependencies() {
				if dep == id {
					toFail = append(toFail, pending)
					break
				}
			}
		}
		s.mu.Unlock()

		for _, dependent := range toFail {
			_ = dependent.MakeFailed()

			s.mu.Lock()
			delete(s.pending, dependent.ID())
			s.failed[dependent.ID()] = struct{}{}
			if s.metrics != nil {
				s.metrics.RecordFailed()
			}
			s.updatePoolMetricsLocked()
			s.mu.Unlock()

			log.Info("job added to failed", "job_id", dependent.ID())
			workList = append(workList, dependent.ID())
		}
	}
}
