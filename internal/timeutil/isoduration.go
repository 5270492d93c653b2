package timeutil

import (
	"fmt"
	"strconv"
	"time"
)

type isoSegment struct {
	c byte
	d time.Duration
	t bool
}

var isoSegments = []isoSegment{
	{'W', time.Hour * 24 * 7, false},
	{'D', time.Hour * 24, false},
	{'H', time.Hour, true},
	{'M', time.Minute, true},
	{'S', time.Second, true},
}

// ParseISO8601 reads the unsigned, integral subset of ISO 8601 durations that
// the YouTube Data API emits (P1DT2H3M4S, PT15M, P0D and so on). Years and
// months are not supported since their length is not fixed.
func ParseISO8601(s string) (time.Duration, error) {
	if len(s) == 0 || s[0] != 'P' {
		return 0, fmt.Errorf("timeutil.ParseISO8601: could not find 'P' designator in %q", s)
	}

	rest := s[1:]
	if rest == "" {
		return 0, fmt.Errorf("timeutil.ParseISO8601: no components in %q", s)
	}

	var total time.Duration
	readT := false

	for _, e := range isoSegments {
		if len(rest) == 0 {
			break
		}

		if e.t && !readT {
			if rest[0] != 'T' {
				break
			}
			rest = rest[1:]
			readT = true
			if rest == "" {
				return 0, fmt.Errorf("timeutil.ParseISO8601: empty time section in %q", s)
			}
		}

		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == len(rest) || rest[i] != e.c {
			continue
		}
		if i == 0 {
			return 0, fmt.Errorf("timeutil.ParseISO8601: segment '%c' has no value in %q", e.c, s)
		}

		n, err := strconv.ParseInt(rest[:i], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("timeutil.ParseISO8601: couldn't parse segment '%c': %w", e.c, err)
		}
		rest = rest[i+1:]

		total += time.Duration(n) * e.d
	}

	if len(rest) != 0 {
		return 0, fmt.Errorf("timeutil.ParseISO8601: leftover data after parsing is complete: %q", rest)
	}

	return total, nil
}
