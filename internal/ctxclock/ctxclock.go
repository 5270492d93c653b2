package ctxclock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

var (
	ErrNoTimesLeft = errors.New("ctxclock.ErrNoTimesLeft: no times left")
	ErrNoClock     = errors.New("ctxclock.ErrNoClock: no clock found in context")
)

// Clock is the source of every timestamp written to the catalog or the job
// queue, so that tests can pin syncedAt and run_after values.
type Clock interface {
	Now() (time.Time, error)
}

var clockKey int

func WithClock(ctx context.Context, c Clock) context.Context {
	if c == nil {
		c = NewRealClock()
	}

	return context.WithValue(ctx, &clockKey, c)
}

func GetClock(ctx context.Context) Clock {
	if v := ctx.Value(&clockKey); v != nil {
		return v.(Clock)
	}

	return nil
}

func Now(ctx context.Context) (time.Time, error) {
	c := GetClock(ctx)
	if c == nil {
		return time.Time{}, fmt.Errorf("ctxclock.Now: %w", ErrNoClock)
	}

	t, err := c.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("ctxclock.Now: %w", err)
	}

	return t.UTC(), nil
}

// NowOrReal is Now for callers that run outside of a configured context,
// such as one-shot commands and tests of lower level packages.
func NowOrReal(ctx context.Context) (time.Time, error) {
	if GetClock(ctx) == nil {
		return time.Now().UTC(), nil
	}

	return Now(ctx)
}

func Register(c Clock) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithClock(r.Context(), c)))
	}
}

func stamp(field string) ctxlogger.HookFunc {
	return func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
		now, err := Now(r.Context())
		if err != nil {
			l.WithError(err).Warn("could not stamp request")
			return l
		}

		return l.WithField(field, now.Format(time.RFC3339))
	}
}

// AddLoggerHooks stamps request log entries with the context clock's time
// at the start and end of the request.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(r.Context(), stamp("http.request_start"), stamp("http.response_end"))))
	}
}

type realClock struct{}

func NewRealClock() Clock { return realClock{} }

func (realClock) Now() (time.Time, error) { return time.Now(), nil }

type staticClock struct{ t time.Time }

func NewStaticClock(t time.Time) Clock { return staticClock{t: t} }

func (c staticClock) Now() (time.Time, error) { return c.t, nil }

// steppingClock starts at a fixed time and moves forward by step on each
// call.
type steppingClock struct {
	m    sync.Mutex
	next time.Time
	step time.Duration
}

func NewSteppingClock(start time.Time, step time.Duration) Clock {
	return &steppingClock{next: start, step: step}
}

func (c *steppingClock) Now() (time.Time, error) {
	c.m.Lock()
	defer c.m.Unlock()

	t := c.next
	c.next = c.next.Add(c.step)

	return t, nil
}

type TestClockResult struct {
	Time  time.Time
	Error error
}

// testClock replays a fixed list of results and fails once it runs out.
type testClock struct {
	m sync.Mutex
	a []TestClockResult
}

func NewTestClock(results []TestClockResult) Clock {
	return &testClock{a: results}
}

func (c *testClock) Now() (time.Time, error) {
	c.m.Lock()
	defer c.m.Unlock()

	if len(c.a) == 0 {
		return time.Time{}, fmt.Errorf("ctxclock.testClock.Now: %w", ErrNoTimesLeft)
	}

	r := c.a[0]
	c.a = c.a[1:]

	return r.Time, r.Error
}
