// Package scenarios contains runnable demonstrations of the scheduler and
// job packages, ported from the original implementation's demonstration
// script. They exist to be invoked from the CLI's demo subcommand, not to
// assert anything — see internal/scheduler and internal/job for tests.
package scenarios

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ChuLiYu/jobsched/internal/job"
	"github.com/ChuLiYu/jobsched/internal/scheduler"
	"github.com/ChuLiYu/jobsched/pkg/schedtypes"
)

var log = slog.Default()

func emptyWorker() (any, error) { return nil, nil }

func syncWorker() (any, error) { return "sync job result", nil }

func delayedWorker() (any, error) { return "delayed job result", nil }

func badWorker() (any, error) { return nil, errors.New("bad job worker always fails") }

// NakedJobs exercises jobs run directly, without a Scheduler: a delayed
// job that restarts itself from its own completion handler, a one-shot
// sync job, and a job that exhausts its retry budget via Restart.
func NakedJobs() {
	log.Info("scenario: naked jobs")

	delayed := job.NewDelayedJob(200*time.Millisecond, delayedWorker, job.Options{
		MaxWorkingTime: 300 * time.Millisecond,
		Tries:          job.TriesOf(2),
	})
	delayed.AddCompleteHandler(func(completed job.Job) {
		log.Info("naked jobs: delayed job completion handler fired", "job_id", completed.ID())
		_ = completed.Restart()
	})
	_ = delayed.Run()

	sync := job.NewSyncJob(syncWorker, job.Options{Tries: job.TriesOf(1)})
	_ = sync.Run()

	bad := job.NewSyncJob(badWorker, job.Options{Tries: job.TriesOf(2)})
	_ = bad.Run()
	_ = bad.Restart()
	_ = bad.Restart()

	time.Sleep(100 * time.Millisecond)
	_ = delayed.Stop()
	_ = delayed.Run()

	time.Sleep(time.Second)
}

// SchedulerDemo exercises a Scheduler driving a small dependency graph:
// independent jobs, a chain of dependent delayed jobs, a deferred-start
// job, and a Stop/Run cycle while new jobs are mid-flight.
func SchedulerDemo() {
	log.Info("scenario: scheduler")

	s := scheduler.New(10, nil)

	job1 := job.NewSyncJob(emptyWorker, job.Options{})
	job2 := job.NewSyncJob(badWorker, job.Options{})
	job3 := job.NewDelayedJob(200*time.Millisecond, emptyWorker, job.Options{})
	job4 := job.NewDelayedJob(200*time.Millisecond, emptyWorker, job.Options{
		Dependencies: []schedtypes.JobID{job2.ID()},
	})
	job5 := job.NewDelayedJob(200*time.Millisecond, emptyWorker, job.Options{
		Dependencies: []schedtypes.JobID{job4.ID()},
	})
	job8 := job.NewSyncJob(emptyWorker, job.Options{StartAt: time.Now().Add(200 * time.Millisecond)})

	_ = s.Schedule(job1)
	_ = s.Schedule(job2)
	_ = s.Schedule(job3)
	_ = s.Schedule(job4)
	_ = s.Schedule(job5)
	_ = s.Schedule(job8)

	s.Run()

	job6 := job.NewSyncJob(emptyWorker, job.Options{
		Dependencies: []schedtypes.JobID{job1.ID(), job3.ID()},
	})
	job7 := job.NewSyncJob(badWorker, job.Options{})
	_ = s.Schedule(job6)
	_ = s.Schedule(job7)

	time.Sleep(100 * time.Millisecond)

	s.Stop()
	s.Run()

	time.Sleep(2 * time.Second)
}
