// Package logrusstackhook attaches the caller's stack to log entries at
// selected levels.
package logrusstackhook

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/clipcatalog/internal/stackutil"
)

// FrameFunc renders a single frame as a field value.
type FrameFunc func(frame runtime.Frame) string

// LongFrame is "function file:line", with the full import path and file
// path.
func LongFrame(frame runtime.Frame) string {
	return stackutil.FormatStackFrame(frame)
}

// ShortFrame drops directories from file and function names.
func ShortFrame(frame runtime.Frame) string {
	return fmt.Sprintf("%s:%d: %s", lastSegment(frame.File), frame.Line, lastSegment(frame.Function))
}

func lastSegment(s string) string {
	if n := strings.LastIndexByte(s, '/'); n != -1 {
		return s[n+1:]
	}
	return s
}

// Filter reports whether a frame should be kept. index counts every frame
// seen so far, kept or not.
type Filter func(index int, frame runtime.Frame) bool

func SkipFirst(count int) Filter {
	return func(index int, _ runtime.Frame) bool { return index >= count }
}

func SkipFunctions(substrings ...string) Filter {
	return func(_ int, frame runtime.Frame) bool { return !containsAny(frame.Function, substrings) }
}

func SkipFiles(substrings ...string) Filter {
	return func(_ int, frame runtime.Frame) bool { return !containsAny(frame.File, substrings) }
}

func SkipPackages(packages ...string) Filter {
	return func(_ int, frame runtime.Frame) bool { return !stackutil.InPackage(frame, packages...) }
}

func containsAny(s string, substrings []string) bool {
	for _, v := range substrings {
		if strings.Contains(s, v) {
			return true
		}
	}
	return false
}

// LevelsFrom returns every level at least as verbose as lowest.
func LevelsFrom(lowest logrus.Level) []logrus.Level {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l >= lowest {
			levels = append(levels, l)
		}
	}
	return levels
}

type Option func(h *Hook)

func WithFrameFunc(fn FrameFunc) Option { return func(h *Hook) { h.frame = fn } }

// WithFilters appends filters to the defaults, which drop logrus, runtime
// and hook frames.
func WithFilters(filters ...Filter) Option {
	return func(h *Hook) { h.filters = append(h.filters, filters...) }
}

// WithMaxFrames limits how many frames are attached. Zero means no limit.
func WithMaxFrames(n int) Option { return func(h *Hook) { h.maxFrames = n } }

// WithPrefix changes the field name prefix, "stack" by default.
func WithPrefix(prefix string) Option { return func(h *Hook) { h.prefix = prefix } }

const depth = 32

type Hook struct {
	levels    []logrus.Level
	frame     FrameFunc
	filters   []Filter
	maxFrames int
	prefix    string
}

// New returns a hook firing on levels, or on debug and trace when levels is
// empty.
func New(levels []logrus.Level, options ...Option) *Hook {
	if len(levels) == 0 {
		levels = []logrus.Level{logrus.DebugLevel, logrus.TraceLevel}
	}

	h := &Hook{
		levels: levels,
		frame:  LongFrame,
		filters: []Filter{
			SkipFiles("github.com/sirupsen/logrus"),
			SkipPackages("runtime"),
			SkipFunctions("internal/logrusstackhook.(*Hook)."),
		},
		maxFrames: 10,
		prefix:    "stack",
	}

	for _, o := range options {
		o(h)
	}

	return h
}

func (h *Hook) Levels() []logrus.Level { return h.levels }

func (h *Hook) keep(index int, frame runtime.Frame) bool {
	for _, f := range h.filters {
		if !f(index, frame) {
			return false
		}
	}
	return true
}

func (h *Hook) Fire(e *logrus.Entry) error {
	n := 0
	for index, frame := range stackutil.Callers(0, depth) {
		if h.maxFrames > 0 && n >= h.maxFrames {
			break
		}
		if !h.keep(index, frame) {
			continue
		}

		e.Data[fmt.Sprintf("%s.%02d", h.prefix, n)] = h.frame(frame)
		n++
	}

	return nil
}
