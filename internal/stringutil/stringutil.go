package stringutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// PascalToSnake turns a Go field name into a column or option name:
// VideoID becomes video_id and HTTPCachePath becomes http_cache_path.
func PascalToSnake(s string) string {
	rs := []rune(s)

	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range rs {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		if i > 0 {
			prevLower := unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1])
			endOfAcronym := unicode.IsUpper(rs[i-1]) && i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if prevLower || endOfAcronym {
				b.WriteByte('_')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

// SnakeToCamel turns a column name like published_at into publishedAt.
func SnakeToCamel(s string) string {
	var b strings.Builder

	upper := false
	for _, r := range s {
		switch {
		case r == '_':
			upper = b.Len() > 0
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// LooksTrue is how environment variables are read as booleans.
func LooksTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "1", "on", "enabled", "enable", "active", "ok", "okay":
		return true
	default:
		return false
	}
}

// NormalizeText returns the NFC form of s with surrounding white space
// removed. Titles typed on different systems otherwise compare unequal when
// they carry combining marks (e.g. "が" vs "か" + U+3099).
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
