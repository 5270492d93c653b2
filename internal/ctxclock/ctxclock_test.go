package ctxclock

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/negroni/v2"

	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

var (
	t1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	errBroken = errors.New("broken")
)

func TestTestClock(t *testing.T) {
	a := assert.New(t)

	c := NewTestClock([]TestClockResult{{Time: t1}, {Error: errBroken}})

	v, err := c.Now()
	a.NoError(err)
	a.Equal(t1, v)

	_, err = c.Now()
	a.ErrorIs(err, errBroken)

	_, err = c.Now()
	a.ErrorIs(err, ErrNoTimesLeft)
}

func TestSteppingClock(t *testing.T) {
	a := assert.New(t)

	c := NewSteppingClock(t1, time.Minute)

	for i := 0; i < 3; i++ {
		v, err := c.Now()
		a.NoError(err)
		a.Equal(t1.Add(time.Duration(i)*time.Minute), v)
	}
}

func TestNow(t *testing.T) {
	a := assert.New(t)

	_, err := Now(context.Background())
	a.ErrorIs(err, ErrNoClock)

	v, err := NowOrReal(context.Background())
	a.NoError(err)
	a.False(v.IsZero())
	a.Equal(time.UTC, v.Location())

	ctx := WithClock(context.Background(), NewStaticClock(t2.In(time.FixedZone("JST", 9*60*60))))

	v, err = Now(ctx)
	a.NoError(err)
	a.Equal(t2, v)

	v, err = NowOrReal(ctx)
	a.NoError(err)
	a.Equal(t2, v)

	_, err = Now(WithClock(context.Background(), NewTestClock(nil)))
	a.EqualError(err, "ctxclock.Now: ctxclock.testClock.Now: ctxclock.ErrNoTimesLeft: no times left")
}

func TestAddLoggerHooks(t *testing.T) {
	a := assert.New(t)

	l, hook := test.NewNullLogger()

	n := negroni.New()
	n.UseFunc(ctxlogger.Register(l))
	n.UseFunc(Register(NewSteppingClock(t1, time.Second)))
	n.UseFunc(AddLoggerHooks())
	n.UseFunc(ctxlogger.Log())
	n.UseHandler(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))

	n.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	e := hook.LastEntry()
	require.NotNil(t, e)
	a.Equal(logrus.InfoLevel, e.Level)
	a.Equal("2024-01-01T00:00:00Z", e.Data["http.request_start"])
	a.Equal("2024-01-01T00:00:01Z", e.Data["http.response_end"])
}
