package jobqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/catchpanic"
	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

var (
	ErrWorkerExists       = errors.New("worker already exists")
	ErrWorkerDoesNotExist = errors.New("worker does not exist")
	ErrNoPendingJobs      = errors.New("no pending jobs")
)

// WorkerFunction runs one job. Its output message is stored with the job
// either way; a non-nil error marks the attempt as failed.
type WorkerFunction func(ctx context.Context, w *Worker, j *Job) (string, error)

// Worker polls the jobs table for the queues it has functions for. Several
// workers, in one process or many, can share a database since a job is
// reserved before it runs.
type Worker struct {
	mu       sync.RWMutex
	wake     chan struct{}
	fns      map[string]WorkerFunction
	priority []string

	// IdleDelay is how long Run waits between polls when nothing ran.
	IdleDelay time.Duration
}

func NewWorker(fns map[string]WorkerFunction) *Worker {
	w := &Worker{
		wake:      make(chan struct{}, 1),
		fns:       make(map[string]WorkerFunction, len(fns)),
		IdleDelay: time.Second * 30,
	}

	for name, fn := range fns {
		w.fns[name] = fn
	}

	return w
}

// SetPriority fixes the order queues are polled in. Queues not named are
// polled after the named ones, alphabetically.
func (w *Worker) SetPriority(queueNames []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.priority = append([]string(nil), queueNames...)
}

// checkQueues fails if any name is registered (want false) or any is not
// (want true). Callers hold mu.
func (w *Worker) checkQueues(names []string, want bool) error {
	var bad []string
	for _, name := range names {
		if _, ok := w.fns[name]; ok != want {
			bad = append(bad, name)
		}
	}

	if len(bad) == 0 {
		return nil
	}

	sort.Strings(bad)

	if want {
		return fmt.Errorf("%v: %w", bad, ErrWorkerDoesNotExist)
	}

	return fmt.Errorf("%v: %w", bad, ErrWorkerExists)
}

func (w *Worker) Register(queueName string, fn WorkerFunction) error {
	return w.RegisterAll(map[string]WorkerFunction{queueName: fn})
}

// RegisterAll adds every function or none of them.
func (w *Worker) RegisterAll(fns map[string]WorkerFunction) error {
	names := make([]string, 0, len(fns))
	for name := range fns {
		names = append(names, name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkQueues(names, false); err != nil {
		return fmt.Errorf("jobqueue.Worker.RegisterAll: %w", err)
	}

	for name, fn := range fns {
		w.fns[name] = fn
	}

	return nil
}

func (w *Worker) GetQueueNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	rank := make(map[string]int, len(w.priority))
	for i, name := range w.priority {
		rank[name] = i + 1
	}

	names := make([]string, 0, len(w.fns))
	for name := range w.fns {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		ri, rj := rank[names[i]], rank[names[j]]
		switch {
		case ri != 0 && rj != 0:
			return ri < rj
		case ri != 0 || rj != 0:
			return ri != 0
		default:
			return names[i] < names[j]
		}
	})

	return names
}

func (w *Worker) function(queueName string) (WorkerFunction, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	fn, ok := w.fns[queueName]
	return fn, ok
}

// Add stores job in tx, filling in defaults, and wakes Run. A job for a
// queue this worker has no function for is refused.
func (w *Worker) Add(ctx context.Context, tx *sql.Tx, job *Job) error {
	w.mu.RLock()
	err := w.checkQueues([]string{job.QueueName}, true)
	w.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("jobqueue.Worker.Add: %w", err)
	}

	now, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue.Worker.Add: %w", err)
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	if job.FailureDelay == 0 {
		job.FailureDelay = DefaultFailureDelay
	}
	if job.AttemptsRemaining == 0 {
		job.AttemptsRemaining = DefaultAttempts
	}

	if err := sorm.CreateRecord(ctx, tx, job); err != nil {
		return fmt.Errorf("jobqueue.Worker.Add: %w", err)
	}

	w.Trigger()

	return nil
}

// Trigger wakes Run without blocking.
func (w *Worker) Trigger() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// isBusy reports whether err is sqlite refusing a write because another
// connection holds the lock.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}

	return false
}

const (
	reserveAttempts   = 25
	reserveBackoffMax = time.Millisecond * 500
)

func (w *Worker) reserveNext(ctx context.Context) (*Job, error) {
	backoff := time.Millisecond * 10

	for attempt := 1; ; attempt++ {
		now, err := ctxclock.NowOrReal(ctx)
		if err != nil {
			return nil, err
		}

		var job *Job
		err = ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
			j, err := findNextAndReserve(ctx, tx, w.GetQueueNames(), now, DefaultReservationLength)
			job = j
			return err
		})
		if err == nil {
			return job, nil
		}

		if !isBusy(err) || attempt >= reserveAttempts {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff/2 + time.Duration(rand.Int63n(int64(backoff)))):
		}

		if backoff *= 2; backoff > reserveBackoffMax {
			backoff = reserveBackoffMax
		}
	}
}

// RunOnce reserves and runs a single job. It returns ErrNoPendingJobs when
// nothing is due. Failures of the job itself are recorded on the job, not
// returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if ctxdb.GetDB(ctx) == nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: %w", ctxdb.ErrNoDB)
	}

	job, err := w.reserveNext(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: could not reserve job: %w", err)
	}
	if job == nil {
		return false, ErrNoPendingJobs
	}

	l := ctxlogger.GetLogger(ctx).WithFields(logrus.Fields{
		"job.queue_name":         job.QueueName,
		"job.id":                 job.ID,
		"job.attempts_remaining": job.AttemptsRemaining,
	})

	fn, ok := w.function(job.QueueName)
	if !ok {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: queue %s: %w", job.QueueName, ErrWorkerDoesNotExist)
	}

	l.Info("running job")

	output, err := catchpanic.Call(func() (string, error) {
		return fn(ctxlogger.WithLogger(ctx, l), w, job)
	})

	var errorMessage string
	if err != nil {
		errorMessage = err.Error()

		var pe *catchpanic.PanicError
		if errors.As(err, &pe) {
			l.WithField("job.panic_stack", pe.FormatStack()).Error("job panicked")
		}
	}

	l = l.WithFields(logrus.Fields{"job.error_message": errorMessage, "job.output_message": output})
	if errorMessage != "" {
		l.Warn("job failed")
	} else {
		l.Info("job finished")
	}

	now, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: %w", err)
	}

	if err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return finish(ctx, tx, job, now, errorMessage, output)
	}); err != nil {
		return false, fmt.Errorf("jobqueue.Worker.RunOnce: could not finish job: %w", err)
	}

	return true, nil
}

// Run processes jobs until ctx is done. After a job runs it looks for the
// next one straight away; otherwise it sleeps for IdleDelay or until Add
// wakes it.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-w.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		delay := w.IdleDelay

		ran, err := w.RunOnce(ctx)
		switch {
		case ran:
			delay = 0
		case err != nil && !errors.Is(err, ErrNoPendingJobs) && ctx.Err() == nil:
			ctxlogger.GetLogger(ctx).WithError(err).Error("could not run job")
		}

		timer.Reset(delay)
	}
}
