package ctxlogger

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/temporalid"
)

var loggerKey int

func WithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, &loggerKey, l)
}

func GetLogger(ctx context.Context) logrus.FieldLogger {
	if v := ctx.Value(&loggerKey); v != nil {
		return v.(logrus.FieldLogger)
	}

	return logrus.StandardLogger()
}

// Hook lets other middleware decorate the request logger before the handler
// runs and after it returns.
type Hook interface {
	Before(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger
	After(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger
}

type HookFunc func(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger

type hookPair struct {
	before, after HookFunc
}

func (p hookPair) Before(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
	if p.before == nil {
		return l
	}

	return p.before(rw, r, l)
}

func (p hookPair) After(rw http.ResponseWriter, r *http.Request, l logrus.FieldLogger) logrus.FieldLogger {
	if p.after == nil {
		return l
	}

	return p.after(rw, r, l)
}

var hooksKey int

type hookList []Hook

func getHooks(ctx context.Context) *hookList {
	if v := ctx.Value(&hooksKey); v != nil {
		return v.(*hookList)
	}

	return nil
}

// AddHook registers hook for the current request. Outside of a request set
// up by Register it returns a context carrying a fresh list.
func AddHook(ctx context.Context, hook Hook) context.Context {
	hooks := getHooks(ctx)
	if hooks == nil {
		hooks = &hookList{}
		ctx = context.WithValue(ctx, &hooksKey, hooks)
	}

	*hooks = append(*hooks, hook)

	return ctx
}

func AddHookPair(ctx context.Context, beforeFunc, afterFunc HookFunc) context.Context {
	return AddHook(ctx, hookPair{before: beforeFunc, after: afterFunc})
}

const RequestIDHeader = "X-Request-Id"

var requestIDKey int

// RequestID returns the id Register assigned to the current request, or an
// empty string.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(&requestIDKey).(string); ok {
		return v
	}

	return ""
}

// Register attaches l to each request along with an empty hook list and a
// request id. A client supplied X-Request-Id is kept; otherwise a time
// ordered id is generated and echoed in the response.
func Register(l logrus.FieldLogger) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			if id, err := temporalid.Generate(time.Now()); err == nil {
				requestID = id.String()
			}
		}

		if requestID != "" {
			rw.Header().Set(RequestIDHeader, requestID)
		}

		ctx := r.Context()
		ctx = context.WithValue(ctx, &hooksKey, &hookList{})
		ctx = context.WithValue(ctx, &requestIDKey, requestID)
		ctx = WithLogger(ctx, l.WithField("http.request_id", requestID))

		next(rw, r.WithContext(ctx))
	}
}

// levelFor maps a response status to the level the finished request is
// logged at.
func levelFor(status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// Log writes one debug entry when a request starts and one entry when it
// finishes, at a level chosen from the response status.
func Log() func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		hooks := getHooks(r.Context())

		l := GetLogger(r.Context()).WithFields(logrus.Fields{
			"http.method":     r.Method,
			"http.path":       r.URL.String(),
			"http.host":       r.Host,
			"http.referer":    r.Header.Get("referer"),
			"http.user_agent": r.Header.Get("user-agent"),
		})

		if hooks != nil {
			for _, hook := range *hooks {
				l = hook.Before(rw, r, l)
			}
		}

		defer func() {
			status := http.StatusOK

			if nrw, ok := rw.(interface {
				Status() int
				Size() int
			}); ok {
				if nrw.Status() != 0 {
					status = nrw.Status()
				}

				l = l.WithFields(logrus.Fields{
					"http.status_code":   status,
					"http.response_size": nrw.Size(),
				})
			}

			if hooks != nil {
				for _, hook := range *hooks {
					l = hook.After(rw, r, l)
				}
			}

			l.WithField("http.status_code", status).Log(levelFor(status), "http request finished")
		}()

		l.Debug("http request started")

		next(rw, r)
	}
}
