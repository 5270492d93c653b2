package ctxtimer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

var (
	ErrNoTimer = errors.New("ctxtimer.ErrNoTimer: no timer found with this name")
)

// Timer remembers named start times.
type Timer struct {
	m     sync.Mutex
	start map[string]time.Time
}

func NewTimer() *Timer {
	return &Timer{start: make(map[string]time.Time)}
}

func (t *Timer) Mark(name string, at time.Time) {
	t.m.Lock()
	defer t.m.Unlock()

	t.start[name] = at
}

func (t *Timer) Elapsed(name string, at time.Time) (time.Duration, error) {
	t.m.Lock()
	defer t.m.Unlock()

	start, ok := t.start[name]
	if !ok {
		return 0, fmt.Errorf("ctxtimer.Timer.Elapsed: %q: %w", name, ErrNoTimer)
	}

	return at.Sub(start), nil
}

var timerKey int

// WithTimer stores t in ctx, or a fresh timer when t is nil.
func WithTimer(ctx context.Context, t *Timer) context.Context {
	if t == nil {
		t = NewTimer()
	}

	return context.WithValue(ctx, &timerKey, t)
}

func GetTimer(ctx context.Context) *Timer {
	if v := ctx.Value(&timerKey); v != nil {
		return v.(*Timer)
	}

	return nil
}

// Mark records the context clock's current time under name.
func Mark(ctx context.Context, name string) error {
	t := GetTimer(ctx)
	if t == nil {
		return fmt.Errorf("ctxtimer.Mark: %w", ErrNoTimer)
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return fmt.Errorf("ctxtimer.Mark: %w", err)
	}

	t.Mark(name, now)

	return nil
}

// Elapsed measures from the mark named name to the context clock's current
// time.
func Elapsed(ctx context.Context, name string) (time.Duration, error) {
	t := GetTimer(ctx)
	if t == nil {
		return 0, fmt.Errorf("ctxtimer.Elapsed: %w", ErrNoTimer)
	}

	now, err := ctxclock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("ctxtimer.Elapsed: %w", err)
	}

	d, err := t.Elapsed(name, now)
	if err != nil {
		return 0, fmt.Errorf("ctxtimer.Elapsed: %w", err)
	}

	return d, nil
}

// Stage marks the start of a named unit of work and returns a function that
// logs how long it took. Without a timer and a clock in ctx both are no-ops.
func Stage(ctx context.Context, name string) func() {
	if GetTimer(ctx) == nil || ctxclock.GetClock(ctx) == nil {
		return func() {}
	}

	l := ctxlogger.GetLogger(ctx).WithField("stage.name", name)

	if err := Mark(ctx, name); err != nil {
		l.WithError(err).Warn("could not mark stage start")
		return func() {}
	}

	return func() {
		d, err := Elapsed(ctx, name)
		if err != nil {
			l.WithError(err).Warn("could not measure stage")
			return
		}

		l.WithField("stage.duration", d.String()).Info("stage finished")
	}
}

// Register gives each request its own timer unless t is set.
func Register(t *Timer) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithTimer(r.Context(), t)))
	}
}

const requestMark = "http.request"

// AddLoggerHooks adds http.duration to the request's final log entry.
func AddLoggerHooks() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(ctxlogger.AddHookPair(
			r.Context(),
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				if err := Mark(r.Context(), requestMark); err != nil {
					l.WithError(err).Warn("could not mark request start")
				}

				return l
			},
			func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
				d, err := Elapsed(r.Context(), requestMark)
				if err != nil {
					l.WithError(err).Warn("could not measure request")
					return l
				}

				return l.WithField("http.duration", d.String())
			},
		)))
	}
}
