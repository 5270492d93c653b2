package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"fknsrs.biz/p/sorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/catalogdb"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
)

var payloadTests = []struct {
	in     string
	target string
	params url.Values
}{
	{"all", "all", url.Values{}},
	{"2024-03?mirror=false", "2024-03", url.Values{"mirror": {"false"}}},
	{"2024-03,2024-04?", "2024-03,2024-04", url.Values{}},
}

func TestParsePayload(t *testing.T) {
	for _, tc := range payloadTests {
		t.Run(tc.in, func(t *testing.T) {
			a := assert.New(t)

			target, params, err := ParsePayload(tc.in)
			a.NoError(err)
			a.Equal(tc.target, target)
			a.Equal(tc.params, params)
		})
	}
}

func TestFormatPayload(t *testing.T) {
	a := assert.New(t)

	a.Equal("all", FormatPayload("all", nil))
	a.Equal("all", FormatPayload("all", url.Values{}))
	a.Equal("2024-03?mirror=false", FormatPayload("2024-03", url.Values{"mirror": {"false"}}))
}

func timePtr(t time.Time) *time.Time { return &t }

var statusNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

var statusTests = []struct {
	name string
	job  Job
	out  Status
}{
	{"new", Job{}, StatusPending},
	{"reserved", Job{ReservedUntil: timePtr(statusNow.Add(time.Minute))}, StatusReserved},
	{"reservation expired", Job{ReservedUntil: timePtr(statusNow.Add(-time.Minute))}, StatusPending},
	{"retrying", Job{ErrorMessages: []string{"boom"}}, StatusPending},
	{"succeeded", Job{FinishedAt: timePtr(statusNow), ErrorMessages: []string{"boom", ""}}, StatusSucceeded},
	{"failed", Job{FinishedAt: timePtr(statusNow), ErrorMessages: []string{"boom"}}, StatusFailed},
}

func TestStatus(t *testing.T) {
	for _, tc := range statusTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			a.Equal(tc.out, tc.job.Status(statusNow))
		})
	}
}

func TestJobJSON(t *testing.T) {
	a := assert.New(t)

	job := Job{ID: 4, QueueName: "library_sync", Payload: "all", FinishedAt: timePtr(statusNow), OutputMessages: []string{"done"}}

	d, err := json.Marshal(job)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(d, &m))
	a.Equal("succeeded", m["status"])
	a.Equal("library_sync", m["queue_name"])
	a.Equal(float64(4), m["id"])

	var back Job
	require.NoError(t, json.Unmarshal(d, &back))
	a.Equal(job.ID, back.ID)
	a.Equal(job.Payload, back.Payload)
	a.Equal([]string{"done"}, []string(back.OutputMessages))
}

func TestNumberedPlaceholders(t *testing.T) {
	a := assert.New(t)

	a.Equal("?1", numberedPlaceholders(1, 1))
	a.Equal("?2, ?3, ?4", numberedPlaceholders(2, 3))
}

func testContext(t testing.TB) context.Context {
	t.Helper()

	db, err := catalogdb.Open(context.Background(), filepath.Join(t.TempDir(), "jobs.db"), config.LogQueries{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return ctxdb.WithDB(context.Background(), db)
}

func addJob(t testing.TB, ctx context.Context, w *Worker, job *Job) {
	t.Helper()

	require.NoError(t, ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return w.Add(ctx, tx, job)
	}))
}

func loadJob(t testing.TB, ctx context.Context, id int) Job {
	t.Helper()

	var job Job
	require.NoError(t, sorm.FindFirstWhere(ctx, ctxdb.GetDB(ctx), &job, "where id = ?", id))

	return job
}

func TestWorkerRunOnce(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	var payloads []string
	w := NewWorker(map[string]WorkerFunction{
		"echo": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			payloads = append(payloads, j.Payload)
			return "done " + j.Payload, nil
		},
	})

	ok, err := w.RunOnce(ctx)
	a.False(ok)
	a.ErrorIs(err, ErrNoPendingJobs)

	job := &Job{QueueName: "echo", Payload: "first"}
	addJob(t, ctx, w, job)
	a.NotZero(job.ID)
	a.Equal(DefaultAttempts, job.AttemptsRemaining)

	ok, err = w.RunOnce(ctx)
	a.True(ok)
	a.NoError(err)
	a.Equal([]string{"first"}, payloads)

	stored := loadJob(t, ctx, job.ID)
	a.NotNil(stored.FinishedAt)
	a.False(stored.Failed())
	a.Equal([]string{"done first"}, []string(stored.OutputMessages))

	_, err = w.RunOnce(ctx)
	a.ErrorIs(err, ErrNoPendingJobs)
}

func TestWorkerRetries(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	calls := 0
	w := NewWorker(map[string]WorkerFunction{
		"flaky": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			calls++
			return "", errors.New("boom")
		},
		"panics": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			panic("oh no")
		},
	})

	job := &Job{QueueName: "flaky", Payload: "x", AttemptsRemaining: 1, FailureDelay: time.Nanosecond}
	addJob(t, ctx, w, job)

	for i := 0; i < 2; i++ {
		time.Sleep(time.Millisecond)
		ok, err := w.RunOnce(ctx)
		require.NoError(t, err)
		a.True(ok)
	}

	a.Equal(2, calls)

	stored := loadJob(t, ctx, job.ID)
	a.NotNil(stored.FinishedAt)
	a.True(stored.Failed())
	a.Equal([]string{"boom", "boom"}, []string(stored.ErrorMessages))
	a.Equal(0, stored.AttemptsRemaining)

	panicky := &Job{QueueName: "panics", Payload: "y", AttemptsRemaining: -1}
	addJob(t, ctx, w, panicky)

	ok, err := w.RunOnce(ctx)
	a.True(ok)
	a.NoError(err)

	stored = loadJob(t, ctx, panicky.ID)
	a.True(stored.Failed())
	a.Contains(stored.ErrorMessages[0], "oh no")
}

func TestWorkerAddUnknownQueue(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	w := NewWorker(nil)

	err := ctxdb.UsingTx(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		return w.Add(ctx, tx, &Job{QueueName: "missing"})
	})
	a.ErrorIs(err, ErrWorkerDoesNotExist)
}

func TestWorkerQueueNames(t *testing.T) {
	a := assert.New(t)

	noop := func(ctx context.Context, w *Worker, j *Job) (string, error) { return "", nil }

	w := NewWorker(nil)
	require.NoError(t, w.RegisterAll(map[string]WorkerFunction{"c": noop, "b": noop, "a": noop}))
	a.ErrorIs(w.Register("a", noop), ErrWorkerExists)

	a.Equal([]string{"a", "b", "c"}, w.GetQueueNames())

	w.SetPriority([]string{"c", "missing"})
	a.Equal([]string{"c", "a", "b"}, w.GetQueueNames())
}

func TestWorkerRunStops(t *testing.T) {
	a := assert.New(t)

	ctx, cancel := context.WithCancel(testContext(t))

	done := make(chan struct{})
	w := NewWorker(map[string]WorkerFunction{
		"once": func(ctx context.Context, w *Worker, j *Job) (string, error) {
			close(done)
			return "", nil
		},
	})
	w.IdleDelay = time.Millisecond * 10

	addJob(t, ctx, w, &Job{QueueName: "once"})

	errs := make(chan error, 1)
	go func() { errs <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("job did not run")
	}

	cancel()
	a.ErrorIs(<-errs, context.Canceled)
}
