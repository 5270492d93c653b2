package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaySeconds is the exclusive upper bound of a Duration.
const DaySeconds = 24 * 60 * 60

var ErrOutOfRange = errors.New("duration must be less than 24 hours")

type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid duration %q: %s", e.Input, e.Reason)
}

// Duration is an offset of whole seconds in the range [0, 24h). The text form
// is PT[nH][nM][nS], with zero written as PT0S.
type Duration struct {
	secs uint32
}

func FromSeconds(n int64) (Duration, error) {
	if n < 0 || n >= DaySeconds {
		return Duration{}, fmt.Errorf("timeutil.FromSeconds: %d: %w", n, ErrOutOfRange)
	}

	return Duration{secs: uint32(n)}, nil
}

// FromStd truncates sub-second precision.
func FromStd(d time.Duration) (Duration, error) {
	r, err := FromSeconds(int64(d / time.Second))
	if err != nil {
		return Duration{}, fmt.Errorf("timeutil.FromStd: %w", err)
	}

	return r, nil
}

func MustFromSeconds(n int64) Duration {
	d, err := FromSeconds(n)
	if err != nil {
		panic(err)
	}

	return d
}

func ParseDuration(s string) (Duration, error) {
	var d Duration
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return Duration{}, fmt.Errorf("timeutil.ParseDuration: %w", err)
	}

	return d, nil
}

func MustParseDuration(s string) Duration {
	d, err := ParseDuration(s)
	if err != nil {
		panic(err)
	}

	return d
}

type durationSegment struct {
	c byte
	n uint32
}

var durationSegments = []durationSegment{
	{'H', 60 * 60},
	{'M', 60},
	{'S', 1},
}

func (d *Duration) UnmarshalText(b []byte) error {
	input := string(b)

	rest, ok := strings.CutPrefix(input, "PT")
	if !ok {
		return &ParseError{Input: input, Reason: "missing 'PT' prefix"}
	}

	var total uint32

	next := 0
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			return &ParseError{Input: input, Reason: "expected a number"}
		}
		if i == len(rest) {
			return &ParseError{Input: input, Reason: fmt.Sprintf("number %q has no unit", rest)}
		}

		n, err := strconv.ParseUint(rest[:i], 10, 16)
		if err != nil {
			return &ParseError{Input: input, Reason: fmt.Sprintf("component %q does not fit in 16 bits", rest[:i])}
		}

		found := false
		for next < len(durationSegments) {
			e := durationSegments[next]
			next++
			if e.c == rest[i] {
				total += uint32(n) * e.n
				found = true
				break
			}
		}
		if !found {
			return &ParseError{Input: input, Reason: fmt.Sprintf("unexpected unit %q", rest[i])}
		}

		rest = rest[i+1:]
	}

	if total >= DaySeconds {
		return &ParseError{Input: input, Reason: ErrOutOfRange.Error()}
	}

	d.secs = total

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d Duration) String() string {
	if d.secs == 0 {
		return "PT0S"
	}

	var b strings.Builder
	b.WriteString("PT")

	rest := d.secs
	for _, e := range durationSegments {
		if v := rest / e.n; v > 0 {
			rest -= v * e.n
			b.WriteString(strconv.FormatUint(uint64(v), 10))
			b.WriteByte(e.c)
		}
	}

	return b.String()
}

func (d Duration) Seconds() uint32 { return d.secs }

func (d Duration) Std() time.Duration { return time.Duration(d.secs) * time.Second }

func (d Duration) IsZero() bool { return d.secs == 0 }

func (d Duration) Add(o Duration) (Duration, error) {
	r, err := FromSeconds(int64(d.secs) + int64(o.secs))
	if err != nil {
		return Duration{}, fmt.Errorf("timeutil.Duration.Add: %s + %s: %w", d, o, ErrOutOfRange)
	}

	return r, nil
}

func (d Duration) Compare(o Duration) int {
	switch {
	case d.secs < o.secs:
		return -1
	case d.secs > o.secs:
		return 1
	default:
		return 0
	}
}

func (d Duration) Less(o Duration) bool { return d.secs < o.secs }

// TimeOfDay returns the offset of t from midnight UTC on the same date.
// Sub-second components are reported through exact.
func TimeOfDay(t time.Time) (d Duration, exact bool) {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	off := t.Sub(midnight)

	return Duration{secs: uint32(off / time.Second)}, off%time.Second == 0
}

// Midnight returns the start of the UTC calendar date of t.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
