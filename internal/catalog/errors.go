package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/temporalid"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

var (
	ErrNoClips = errors.New("video has no clips")

	// ErrIdentityMismatch matches, via errors.Is, every error reporting that
	// a record does not belong where it was found.
	ErrIdentityMismatch = errors.New("identity mismatch")
)

// ParseError reports a malformed literal for one of the catalog's scalar
// types (video id, channel id, tag and so on).
type ParseError struct {
	Kind   string
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Input, e.Reason)
}

// ValidationError reports a field that was well-formed but violates a rule
// of the catalog, such as an unknown artist id.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type InvalidTimeRangeError struct {
	Start timeutil.Duration
	End   timeutil.Duration
}

func (e *InvalidTimeRangeError) Error() string {
	return fmt.Sprintf("invalid clip time range: start (%s) must be less than end (%s)", e.Start, e.End)
}

type MismatchKind int

const (
	MismatchTime MismatchKind = iota
	MismatchDate
)

func (k MismatchKind) String() string {
	switch k {
	case MismatchTime:
		return "time"
	case MismatchDate:
		return "date"
	default:
		return fmt.Sprintf("MismatchKind(%d)", int(k))
	}
}

// IdentityMismatchError means a clip's temporal id does not belong to the
// start time or publish date it was paired with.
type IdentityMismatchError struct {
	Kind     MismatchKind
	ID       temporalid.ID
	Embedded string
	Expected string
}

func (e *IdentityMismatchError) Error() string {
	switch e.Kind {
	case MismatchTime:
		return fmt.Sprintf("uuid %s time (%s) does not match start time (%s)", e.ID, e.Embedded, e.Expected)
	default:
		return fmt.Sprintf("uuid %s date (%s) does not match video date (%s)", e.ID, e.Embedded, e.Expected)
	}
}

func (e *IdentityMismatchError) Is(target error) bool { return target == ErrIdentityMismatch }

type RangeExceededError struct {
	Start    timeutil.Duration
	End      timeutil.Duration
	Duration timeutil.Duration
}

func (e *RangeExceededError) Error() string {
	return fmt.Sprintf("time exceeds video duration: start (%s), end (%s), video duration (%s)", e.Start, e.End, e.Duration)
}

type ClipsOverlapError struct {
	Titles []string
}

func (e *ClipsOverlapError) Error() string {
	return fmt.Sprintf("clips overlap: %s", quoteAll(e.Titles))
}

type VideoIDMismatchError struct {
	Expected VideoID
	Actual   VideoID
}

func (e *VideoIDMismatchError) Error() string {
	return fmt.Sprintf("video id mismatch: expected %s, got %s", e.Expected, e.Actual)
}

type DuplicateIDError struct {
	IDs []VideoID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate video ids: %s", joinIDs(e.IDs))
}

type MissingMetadataError struct {
	IDs []VideoID
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("no metadata found for video ids: %s", joinIDs(e.IDs))
}

// PlacementError is reported when a video sits in a partition other than the
// one its publish date belongs to.
type PlacementError struct {
	Partition PartitionKey
	IDs       []VideoID
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("videos published outside of %s: %s", e.Partition, joinIDs(e.IDs))
}

func (e *PlacementError) Is(target error) bool { return target == ErrIdentityMismatch }

// ConsistencyFault marks an error that can only be produced by a bug or by a
// hand edit of generated files, as opposed to bad user input.
type ConsistencyFault struct {
	Err error
}

func (e *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault (this indicates a bug or an incorrect manual modification): %s", e.Err)
}

func (e *ConsistencyFault) Unwrap() error { return e.Err }

func IsConsistencyFault(err error) bool {
	var f *ConsistencyFault
	return errors.As(err, &f)
}

// ClipError attaches clip context to a failure from a clip transition.
type ClipError struct {
	SongTitle string
	Start     timeutil.Duration
	Err       error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("clip %q at %s: %s", e.SongTitle, e.Start, e.Err)
}

func (e *ClipError) Unwrap() error { return e.Err }

// VideoError attaches a video id to a failure, usually an errors.Join of
// every ClipError found for that video.
type VideoError struct {
	VideoID VideoID
	Err     error
}

func (e *VideoError) Error() string {
	return fmt.Sprintf("video %s:%s", e.VideoID, indent(e.Err.Error()))
}

func (e *VideoError) Unwrap() error { return e.Err }

func joinIDs(ids []VideoID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ", ")
}

func quoteAll(s []string) string {
	q := make([]string, len(s))
	for i, v := range s {
		q[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(q, ", ")
}

// indent keeps single-line messages on the same line and moves multi-line
// ones below, indented by two spaces.
func indent(s string) string {
	if !strings.Contains(s, "\n") {
		return " " + s
	}

	return "\n  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func formatDate(t time.Time) string { return t.UTC().Format(time.DateOnly) }
