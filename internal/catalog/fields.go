package catalog

import (
	"fmt"
	"strings"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/stringutil"
	"fknsrs.biz/p/clipcatalog/internal/temporalid"
)

// Tags is a sorted list of non-empty tags. A nil Tags and an empty one are
// equivalent for video tags; for clip tags nil means "absent".
type Tags []string

func NewTags(in []string) (Tags, error) {
	if in == nil {
		return nil, nil
	}

	for _, t := range in {
		if strings.TrimSpace(t) == "" {
			return nil, &ParseError{Kind: "tag", Input: t, Reason: "tags cannot be empty"}
		}
	}

	return Tags(sortedUnique(in)), nil
}

func (t Tags) Strings() []string {
	if t == nil {
		return []string{}
	}

	return []string(t)
}

type PrivacyStatus string

const (
	PrivacyPublic   PrivacyStatus = "public"
	PrivacyUnlisted PrivacyStatus = "unlisted"
	PrivacyPrivate  PrivacyStatus = "private"
)

func ParsePrivacyStatus(s string) (PrivacyStatus, error) {
	switch p := PrivacyStatus(s); p {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
		return p, nil
	default:
		return "", &ParseError{Kind: "privacy status", Input: s, Reason: `expected "public", "unlisted" or "private"`}
	}
}

func (p *PrivacyStatus) UnmarshalText(b []byte) error {
	v, err := ParsePrivacyStatus(string(b))
	if err != nil {
		return err
	}

	*p = v

	return nil
}

// VolumePercent is the playback volume to use when normalizing a clip, in
// the range [1, 100]. The zero value means "not set".
type VolumePercent uint8

func NewVolumePercent(n int) (VolumePercent, error) {
	if n < 1 || n > 100 {
		return 0, &ValidationError{Field: "volumePercent", Reason: fmt.Sprintf("%d is outside of (0, 100]", n)}
	}

	return VolumePercent(n), nil
}

func (v VolumePercent) IsSet() bool { return v != 0 }

// NormalizeSongTitle applies NFC normalization and trims surrounding space.
func NormalizeSongTitle(s string) (string, error) {
	s = stringutil.NormalizeText(s)
	if s == "" {
		return "", &ValidationError{Field: "songTitle", Reason: "cannot be empty"}
	}

	return s, nil
}

func NormalizeUploaderName(s *string) (string, error) {
	if s == nil {
		return "", nil
	}

	n := stringutil.NormalizeText(*s)
	if n == "" {
		return "", &ValidationError{Field: "uploaderName", Reason: "cannot be empty when present"}
	}

	return n, nil
}

// NormalizePublishedAt converts t to UTC with whole-second precision and
// checks that a temporal id can be anchored on its date.
func NormalizePublishedAt(t time.Time) (time.Time, error) {
	t = t.UTC().Truncate(time.Second)

	if _, err := temporalid.GenerateDeterministic(t, 0, 0); err != nil {
		return time.Time{}, &ValidationError{Field: "publishedAt", Reason: err.Error()}
	}

	return t, nil
}
