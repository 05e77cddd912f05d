// Package dispatcher implements JobDispatcher: a single-consumer FIFO
// queue for install/launch/stop/uninstall work so at most one mutating
// operation touches an app's state at a time (spec §4.13).
//
// Grounded on original_source/App/Core/P13_JobDispatcher.py's single
// worker-thread queue.Queue() consumer loop. Generalized (REDESIGN
// FLAG) from the teacher's internal/engine/engine.go model of one
// goroutine plus a cancel-map per job into a single long-lived consumer
// goroutine draining a buffered channel: apphost's jobs are short,
// sequential state-machine steps rather than the teacher's
// long-running, independently cancelable container builds, so a shared
// worker with no per-job cancellation machinery is the simpler, more
// correct fit.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// JobKind names the operation a Job performs.
type JobKind string

const (
	JobInstall   JobKind = "install"
	JobLaunch    JobKind = "launch"
	JobStop      JobKind = "stop"
	JobUninstall JobKind = "uninstall"
)

// JobStatus tracks a Job's lifecycle for status_changed notifications.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one unit of queued work. Run is invoked by the dispatcher's
// single consumer goroutine; its error (if any) is captured, not
// propagated to the caller that enqueued it.
type Job struct {
	ID      string
	Kind    JobKind
	AppName string
	Run     func(ctx context.Context) error

	status JobStatus
	err    error
}

// OnStatusChanged is invoked after every Job status transition, per spec
// §4.13's status_changed event.
type OnStatusChanged func(job Job)

// Dispatcher drains jobs one at a time on a single goroutine so two
// operations never race on the same app's state.
type Dispatcher struct {
	queue    chan *Job
	onStatus OnStatusChanged

	mu   sync.Mutex
	jobs map[string]*Job

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Dispatcher with the given queue depth and starts its
// consumer goroutine.
func New(queueDepth int, onStatus OnStatusChanged) *Dispatcher {
	if onStatus == nil {
		onStatus = func(Job) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:    make(chan *Job, queueDepth),
		onStatus: onStatus,
		jobs:     make(map[string]*Job),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go d.consume(ctx)
	return d
}

// Enqueue adds a job to the FIFO and returns its generated ID without
// waiting for the job to run; it blocks only while the queue's buffer is
// full.
func (d *Dispatcher) Enqueue(kind JobKind, appName string, run func(ctx context.Context) error) string {
	job := &Job{ID: uuid.NewString(), Kind: kind, AppName: appName, Run: run, status: JobQueued}

	d.mu.Lock()
	d.jobs[job.ID] = job
	d.mu.Unlock()

	d.onStatus(*job)
	d.queue <- job
	return job.ID
}

// Status returns the current status and error (if failed) of jobID.
func (d *Dispatcher) Status(jobID string) (JobStatus, error, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return "", nil, false
	}
	return job.status, job.err, true
}

// consume is the dispatcher's single long-lived worker: it drains the
// queue one job at a time, catching and logging any job error so a
// single failure never stops the queue (spec §4.13).
func (d *Dispatcher) consume(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.queue:
			if !ok || ctx.Err() != nil {
				return
			}
			d.run(ctx, job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, job *Job) {
	d.setStatus(job, JobRunning, nil)

	defer func() {
		if r := recover(); r != nil {
			d.setStatus(job, JobFailed, fmt.Errorf("job panicked: %v", r))
		}
	}()

	if err := job.Run(ctx); err != nil {
		d.setStatus(job, JobFailed, err)
		return
	}
	d.setStatus(job, JobSucceeded, nil)
}

func (d *Dispatcher) setStatus(job *Job, status JobStatus, err error) {
	d.mu.Lock()
	job.status = status
	job.err = err
	snapshot := *job
	d.mu.Unlock()
	d.onStatus(snapshot)
}

// Shutdown stops the consumer goroutine and waits for it to exit. Any
// job still in the queue when Shutdown is called is left unrun.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	<-d.done
}
