package catalog

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

// Attributes are the authoritative properties of a video as reported by the
// metadata provider.
type Attributes struct {
	VideoID       VideoID
	Title         string
	ChannelID     ChannelID
	PublishedAt   time.Time
	SyncedAt      time.Time
	Duration      timeutil.Duration
	PrivacyStatus PrivacyStatus
	Embeddable    bool
}

// Normalize validates the attributes and truncates timestamps to whole
// seconds in UTC.
func (a Attributes) Normalize() (Attributes, error) {
	var errs []error

	if _, err := ParseVideoID(string(a.VideoID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseChannelID(string(a.ChannelID)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParsePrivacyStatus(string(a.PrivacyStatus)); err != nil {
		errs = append(errs, err)
	}

	publishedAt, err := NormalizePublishedAt(a.PublishedAt)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Attributes{}, errors.Join(errs...)
	}

	a.PublishedAt = publishedAt
	a.SyncedAt = a.SyncedAt.UTC().Truncate(time.Second)

	return a, nil
}

// SameExceptSyncedAt reports whether a and b differ at most in SyncedAt.
func (a Attributes) SameExceptSyncedAt(b Attributes) bool {
	return a.VideoID == b.VideoID &&
		a.Title == b.Title &&
		a.ChannelID == b.ChannelID &&
		a.PublishedAt.Equal(b.PublishedAt) &&
		a.Duration == b.Duration &&
		a.PrivacyStatus == b.PrivacyStatus &&
		a.Embeddable == b.Embeddable
}

func (a Attributes) Partition() PartitionKey {
	return PartitionKeyOf(a.PublishedAt)
}

// LocalInfo is the part of a video record that comes from submissions rather
// than from the metadata provider.
type LocalInfo struct {
	VideoID      VideoID
	UploaderName string
	Tags         Tags
}

// Video is a video's attributes together with its verified clips. A Video
// always has at least one clip and its clips never overlap.
type Video struct {
	attrs  Attributes
	local  LocalInfo
	clips  []VerifiedClip
	sorted []VerifiedClip
}

// NewVideo identifies and verifies every draft against attrs. All clip
// failures are reported together.
func NewVideo(attrs Attributes, local LocalInfo, drafts []DraftClip) (*Video, error) {
	identified := make([]IdentifiedClip, 0, len(drafts))

	var errs []error
	for _, d := range drafts {
		c, err := d.Identify(attrs.PublishedAt)
		if err != nil {
			errs = append(errs, &ClipError{SongTitle: d.songTitle, Start: d.start, Err: err})
			continue
		}

		identified = append(identified, c)
	}

	if len(errs) > 0 {
		return nil, &VideoError{VideoID: attrs.VideoID, Err: errors.Join(errs...)}
	}

	return NewVideoFromIdentified(attrs, local, identified)
}

func NewVideoFromIdentified(attrs Attributes, local LocalInfo, clips []IdentifiedClip) (*Video, error) {
	if local.VideoID != attrs.VideoID {
		return nil, &VideoError{VideoID: attrs.VideoID, Err: &VideoIDMismatchError{Expected: attrs.VideoID, Actual: local.VideoID}}
	}

	verified, err := verifyAll(attrs, clips)
	if err != nil {
		return nil, &VideoError{VideoID: attrs.VideoID, Err: err}
	}

	return newVideo(attrs, local, verified), nil
}

func newVideo(attrs Attributes, local LocalInfo, clips []VerifiedClip) *Video {
	sorted := make([]VerifiedClip, len(clips))
	copy(sorted, clips)
	sortClips(sorted)

	return &Video{attrs: attrs, local: local, clips: clips, sorted: sorted}
}

func sortClips(clips []VerifiedClip) {
	sort.SliceStable(clips, func(i, j int) bool {
		return clips[i].start.Less(clips[j].start)
	})
}

func verifyAll(attrs Attributes, clips []IdentifiedClip) ([]VerifiedClip, error) {
	if len(clips) == 0 {
		return nil, ErrNoClips
	}

	verified := make([]VerifiedClip, 0, len(clips))

	var errs []error
	for _, c := range clips {
		v, err := c.Verify(attrs.PublishedAt, attrs.Duration)
		if err != nil {
			errs = append(errs, &ClipError{SongTitle: c.songTitle, Start: c.start, Err: err})
			continue
		}

		verified = append(verified, v)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := checkOverlap(verified); err != nil {
		return nil, err
	}

	return verified, nil
}

func checkOverlap(clips []VerifiedClip) error {
	sorted := make([]VerifiedClip, len(clips))
	copy(sorted, clips)
	sortClips(sorted)

	var titles []string
	seen := make(map[int]bool)
	report := func(j int) {
		if !seen[j] {
			seen[j] = true
			titles = append(titles, sorted[j].songTitle)
		}
	}

	// last is the clip reaching furthest so far, so a long clip is reported
	// against every later clip it covers, not only its neighbour.
	last := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].start.Less(sorted[last].end) {
			report(last)
			report(i)
		}

		if sorted[last].end.Less(sorted[i].end) {
			last = i
		}
	}

	if len(titles) > 0 {
		return &ClipsOverlapError{Titles: titles}
	}

	return nil
}

// Refresh applies new attributes from the metadata provider. When only
// SyncedAt changed the clips are kept as they are. Otherwise every clip is
// verified again and the refresh fails as a whole if any clip is rejected.
func (v *Video) Refresh(attrs Attributes) (*Video, error) {
	attrs, err := attrs.Normalize()
	if err != nil {
		return nil, &VideoError{VideoID: v.attrs.VideoID, Err: err}
	}

	if attrs.VideoID != v.attrs.VideoID {
		return nil, &VideoError{VideoID: v.attrs.VideoID, Err: &VideoIDMismatchError{Expected: v.attrs.VideoID, Actual: attrs.VideoID}}
	}

	if v.attrs.SameExceptSyncedAt(attrs) {
		return &Video{attrs: attrs, local: v.local, clips: v.clips, sorted: v.sorted}, nil
	}

	identified := make([]IdentifiedClip, len(v.clips))
	for i, c := range v.clips {
		identified[i] = c.Downgrade()
	}

	r, err := NewVideoFromIdentified(attrs, v.local, identified)
	if err != nil {
		return nil, fmt.Errorf("catalog.Video.Refresh: %w", err)
	}

	return r, nil
}

// WithLocal replaces the uploader name and tags.
func (v *Video) WithLocal(local LocalInfo) (*Video, error) {
	if local.VideoID != v.attrs.VideoID {
		return nil, &VideoIDMismatchError{Expected: v.attrs.VideoID, Actual: local.VideoID}
	}

	return &Video{attrs: v.attrs, local: local, clips: v.clips, sorted: v.sorted}, nil
}

// WithClips returns a copy of v with more drafts identified and verified
// alongside the existing clips.
func (v *Video) WithClips(drafts []DraftClip) (*Video, error) {
	add, err := NewVideo(v.attrs, v.local, drafts)
	if err != nil {
		return nil, err
	}

	identified := make([]IdentifiedClip, 0, len(v.clips)+len(add.clips))
	for _, c := range v.clips {
		identified = append(identified, c.Downgrade())
	}
	for _, c := range add.clips {
		identified = append(identified, c.Downgrade())
	}

	return NewVideoFromIdentified(v.attrs, v.local, identified)
}

func (v *Video) ID() VideoID                 { return v.attrs.VideoID }
func (v *Video) Attributes() Attributes      { return v.attrs }
func (v *Video) Local() LocalInfo            { return v.local }
func (v *Video) PublishedAt() time.Time      { return v.attrs.PublishedAt }
func (v *Video) Partition() PartitionKey     { return v.attrs.Partition() }
func (v *Video) Duration() timeutil.Duration { return v.attrs.Duration }

// Clips returns the clips in the order they were added.
func (v *Video) Clips() []VerifiedClip {
	return append([]VerifiedClip(nil), v.clips...)
}

// SortedClips returns the clips ordered by start time.
func (v *Video) SortedClips() []VerifiedClip {
	return append([]VerifiedClip(nil), v.sorted...)
}

// Artists returns the union of internal artists over all clips, sorted.
func (v *Video) Artists() []string {
	var all []string
	for _, c := range v.sorted {
		all = append(all, c.artists...)
	}

	return sortedUnique(all)
}
