package sqlitelogger

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	proxy "github.com/shogo82148/go-sql-proxy"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/stackutil"
)

// ErrCancelLogging is returned by a Filter to drop a statement silently.
var ErrCancelLogging = errors.New("sqlitelogger: cancel logging")

// Stats describes one driver operation: a prepare, exec, query or
// transaction boundary.
type Stats struct {
	Op       string
	Start    time.Time
	Duration time.Duration
	Stack    []runtime.Frame

	query     string
	queryText string
	queryArgs []driver.NamedValue
}

// Query returns the statement with its arguments inlined. It is empty for
// transaction boundaries.
func (s *Stats) Query() string {
	if s.query == "" && s.queryText != "" {
		s.query = printQuery(s.queryText, s.queryArgs)
	}

	return s.query
}

// Filter decides what gets logged. PreCollection runs before the statement
// executes and PreLogging after; either may return ErrCancelLogging.
// Statements that fail are logged regardless of PreLogging.
type Filter interface {
	PreCollection(ctx context.Context, stats *Stats) error
	PreLogging(ctx context.Context, stats *Stats) error
	HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error)
}

type hooks struct {
	driver  string
	filters []Filter
}

func (h *hooks) begin(ctx context.Context, op string, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
	now, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Op: op, Start: now, Stack: stackutil.Callers(2, 100)}
	if stmt != nil {
		stats.queryText = stmt.QueryString
		stats.queryArgs = args
	}

	for _, f := range h.filters {
		if err := f.PreCollection(ctx, stats); errors.Is(err, ErrCancelLogging) {
			return nil, nil
		} else if err != nil {
			return nil, err
		}
	}

	return stats, nil
}

func (h *hooks) end(ctx context.Context, qctx interface{}, opErr error) error {
	stats, _ := qctx.(*Stats)
	if stats == nil {
		return opErr
	}

	now, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return errors.Join(opErr, err)
	}

	stats.Duration = now.Sub(stats.Start)

	if opErr == nil {
		for _, f := range h.filters {
			if err := f.PreLogging(ctx, stats); errors.Is(err, ErrCancelLogging) {
				return nil
			} else if err != nil {
				return err
			}
		}
	}

	fields := logrus.Fields{
		"sql.driver":   h.driver,
		"sql.op":       stats.Op,
		"sql.start":    stats.Start.Format(time.RFC3339),
		"sql.duration": stats.Duration,
	}

	if q := stats.Query(); q != "" {
		fields["sql.query"] = q
	}

	if err := h.addStack(ctx, fields, stats.Stack); err != nil {
		return errors.Join(opErr, err)
	}

	l := ctxlogger.GetLogger(ctx).WithFields(fields)
	if opErr != nil {
		l.WithError(opErr).Warn("sql " + stats.Op + " failed")
		return opErr
	}

	l.Info("sql " + stats.Op)

	return nil
}

func (h *hooks) addStack(ctx context.Context, fields logrus.Fields, stack []runtime.Frame) error {
	n := 0

	for i, frame := range stack {
		hidden := false
		for _, f := range h.filters {
			hide, err := f.HideStackFrame(ctx, i, frame)
			if err != nil {
				return err
			}
			if hide {
				hidden = true
				break
			}
		}

		if !hidden {
			fields[fmt.Sprintf("sql.stack.%02d", n)] = stackutil.FormatStackFrame(frame)
			n++
		}
	}

	return nil
}

// New wraps a driver so that every statement and transaction boundary is
// logged through the context's logger.
func New(name string, wrapped driver.Driver, filters ...Filter) driver.Driver {
	h := &hooks{driver: name, filters: filters}

	return proxy.NewProxyContext(wrapped, &proxy.HooksContext{
		PrePrepare: func(ctx context.Context, stmt *proxy.Stmt) (interface{}, error) {
			return h.begin(ctx, "prepare", stmt, nil)
		},
		PostPrepare: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, err error) error {
			return h.end(ctx, qctx, err)
		},
		PreExec: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return h.begin(ctx, "exec", stmt, args)
		},
		PostExec: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, _ driver.Result, err error) error {
			return h.end(ctx, qctx, err)
		},
		PreQuery: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return h.begin(ctx, "query", stmt, args)
		},
		PostQuery: func(ctx context.Context, qctx interface{}, stmt *proxy.Stmt, args []driver.NamedValue, _ driver.Rows, err error) error {
			return h.end(ctx, qctx, err)
		},
		PreBegin: func(ctx context.Context, conn *proxy.Conn) (interface{}, error) {
			return h.begin(ctx, "begin", nil, nil)
		},
		PostBegin: func(ctx context.Context, qctx interface{}, conn *proxy.Conn, err error) error {
			return h.end(ctx, qctx, err)
		},
		PreCommit: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return h.begin(ctx, "commit", nil, nil)
		},
		PostCommit: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return h.end(ctx, qctx, err)
		},
		PreRollback: func(ctx context.Context, tx *proxy.Tx) (interface{}, error) {
			return h.begin(ctx, "rollback", nil, nil)
		},
		PostRollback: func(ctx context.Context, qctx interface{}, tx *proxy.Tx, err error) error {
			return h.end(ctx, qctx, err)
		},
	})
}

// BasicFilter covers the common cases: drop everything, drop fast
// statements, drop statements issued from inside particular functions, and
// hide frames from uninteresting packages.
type BasicFilter struct {
	CancelAll                bool
	LogSlowerThan            time.Duration
	IgnorePackageStackFrames []string
	IgnoreFunctionQueries    []string
}

func (b *BasicFilter) PreCollection(ctx context.Context, stats *Stats) error {
	if b.CancelAll {
		return ErrCancelLogging
	}

	for _, frame := range stats.Stack {
		for _, fn := range b.IgnoreFunctionQueries {
			if frame.Function == fn {
				return ErrCancelLogging
			}
		}
	}

	return nil
}

func (b *BasicFilter) PreLogging(ctx context.Context, stats *Stats) error {
	if b.CancelAll || stats.Duration < b.LogSlowerThan {
		return ErrCancelLogging
	}

	return nil
}

func (b *BasicFilter) HideStackFrame(ctx context.Context, index int, frame runtime.Frame) (bool, error) {
	return stackutil.InPackage(frame, b.IgnorePackageStackFrames...), nil
}

// sqlite accepts ?, ?NNN, :name, @name and $name placeholders
var (
	placeholderPattern = regexp.MustCompile(`\?[0-9]*|[:@$][A-Za-z_][A-Za-z0-9_]*|\$[0-9]+`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// printQuery inlines args into a query for logging. Placeholders inside
// string literals are not recognised as such and may be replaced too.
func printQuery(sqlString string, args []driver.NamedValue) string {
	next := 0

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(placeholderPattern.ReplaceAllStringFunc(sqlString, func(s string) string {
		arg, ok := findArg(s, args, &next)
		if !ok {
			return s
		}

		return formatValue(arg.Value)
	}), " "))
}

func findArg(placeholder string, args []driver.NamedValue, next *int) (driver.NamedValue, bool) {
	if placeholder == "?" {
		i := *next
		*next++
		if i >= len(args) {
			return driver.NamedValue{}, false
		}

		return args[i], true
	}

	if n, err := strconv.Atoi(placeholder[1:]); err == nil {
		*next = n
		for _, a := range args {
			if a.Ordinal == n {
				return a, true
			}
		}

		return driver.NamedValue{}, false
	}

	for _, a := range args {
		if a.Name != "" && a.Name == placeholder[1:] {
			return a, true
		}
	}

	return driver.NamedValue{}, false
}

// formatValue handles the types database/sql hands to drivers after
// conversion.
func formatValue(v driver.Value) string {
	switch e := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(e)
	case int64:
		return strconv.FormatInt(e, 10)
	case float64:
		return strconv.FormatFloat(e, 'f', -1, 64)
	case time.Time:
		return "'" + e.Format(time.RFC3339Nano) + "'"
	case string:
		return quote(e)
	case []byte:
		return quote(string(e))
	default:
		return quote(fmt.Sprintf("%v", e))
	}
}

func quote(s string) string {
	if r, ok := printable(s); !ok {
		return fmt.Sprintf("[%d bytes of binary data (%q)]", len(s), r)
	}

	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func printable(s string) (rune, bool) {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return r, false
		}

		if r == unicode.ReplacementChar {
			return r, false
		}
	}

	return 0, true
}
