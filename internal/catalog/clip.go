package catalog

import (
	"errors"
	"fmt"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/temporalid"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

// ClipInput holds the user-facing fields of a clip before validation.
type ClipInput struct {
	SongTitle       string
	Artists         []string
	ExternalArtists []string
	IsClipped       bool
	Start           timeutil.Duration
	End             timeutil.Duration
	Tags            []string
	VolumePercent   *int
}

// clipData is the payload shared by every clip tier.
type clipData struct {
	songTitle       string
	artists         []string
	externalArtists []string
	isClipped       bool
	start           timeutil.Duration
	end             timeutil.Duration
	tags            Tags
	volume          VolumePercent
}

func (c clipData) SongTitle() string            { return c.songTitle }
func (c clipData) Artists() []string            { return append([]string(nil), c.artists...) }
func (c clipData) ExternalArtists() []string    { return append([]string(nil), c.externalArtists...) }
func (c clipData) HasExternalArtists() bool     { return c.externalArtists != nil }
func (c clipData) IsClipped() bool              { return c.isClipped }
func (c clipData) Start() timeutil.Duration     { return c.start }
func (c clipData) End() timeutil.Duration       { return c.end }
func (c clipData) Tags() Tags                   { return c.tags }
func (c clipData) VolumePercent() VolumePercent { return c.volume }

func (c clipData) Length() timeutil.Duration {
	return timeutil.MustFromSeconds(int64(c.end.Seconds()) - int64(c.start.Seconds()))
}

func newClipData(reg *ArtistRegistry, in ClipInput) (clipData, error) {
	var errs []error

	title, err := NormalizeSongTitle(in.SongTitle)
	if err != nil {
		errs = append(errs, err)
	}

	artists, err := reg.InternalArtists(in.Artists)
	if err != nil {
		errs = append(errs, err)
	}

	external, err := reg.ExternalArtists(in.ExternalArtists)
	if err != nil {
		errs = append(errs, err)
	}

	tags, err := NewTags(in.Tags)
	if err != nil {
		errs = append(errs, err)
	} else if tags != nil && len(tags) == 0 {
		errs = append(errs, &ValidationError{Field: "clipTags", Reason: "list cannot be empty when present"})
	}

	var volume VolumePercent
	if in.VolumePercent != nil {
		if volume, err = NewVolumePercent(*in.VolumePercent); err != nil {
			errs = append(errs, err)
		}
	}

	if !in.Start.Less(in.End) {
		errs = append(errs, &InvalidTimeRangeError{Start: in.Start, End: in.End})
	}

	if len(errs) > 0 {
		return clipData{}, errors.Join(errs...)
	}

	return clipData{
		songTitle:       title,
		artists:         artists,
		externalArtists: external,
		isClipped:       in.IsClipped,
		start:           in.Start,
		end:             in.End,
		tags:            tags,
		volume:          volume,
	}, nil
}

// DraftClip is a validated clip that has not yet been given an identity.
type DraftClip struct {
	clipData
}

func NewDraftClip(reg *ArtistRegistry, in ClipInput) (DraftClip, error) {
	d, err := newClipData(reg, in)
	if err != nil {
		return DraftClip{}, err
	}

	return DraftClip{clipData: d}, nil
}

// anchor is the instant a clip's temporal id is generated from: the UTC
// calendar date of the publish time plus the clip start.
func (c DraftClip) anchor(publishedAt time.Time) time.Time {
	return timeutil.Midnight(publishedAt).Add(c.start.Std())
}

func (c DraftClip) Identify(publishedAt time.Time) (IdentifiedClip, error) {
	id, err := temporalid.Generate(c.anchor(publishedAt))
	if err != nil {
		return IdentifiedClip{}, fmt.Errorf("catalog.DraftClip.Identify: %w", err)
	}

	return IdentifiedClip{clipData: c.clipData, id: id}, nil
}

func (c DraftClip) IdentifyWith(publishedAt time.Time, randA uint16, randB uint64) (IdentifiedClip, error) {
	id, err := temporalid.GenerateDeterministic(c.anchor(publishedAt), randA, randB)
	if err != nil {
		return IdentifiedClip{}, fmt.Errorf("catalog.DraftClip.IdentifyWith: %w", err)
	}

	return IdentifiedClip{clipData: c.clipData, id: id}, nil
}

// IdentifiedClip is a DraftClip with a temporal id. It has not been checked
// against any particular video.
type IdentifiedClip struct {
	clipData
	id temporalid.ID
}

func NewIdentifiedClip(reg *ArtistRegistry, in ClipInput, id temporalid.ID) (IdentifiedClip, error) {
	d, err := newClipData(reg, in)
	if err != nil {
		return IdentifiedClip{}, err
	}

	return IdentifiedClip{clipData: d, id: id}, nil
}

func (c IdentifiedClip) ID() temporalid.ID { return c.id }

// WithVolumePercent returns a copy with the volume replaced; zero clears it.
func (c IdentifiedClip) WithVolumePercent(v VolumePercent) IdentifiedClip {
	c.volume = v
	return c
}

// Verify checks the clip against a video's publish time and duration. The
// checks run in a fixed order and the first failure is returned.
func (c IdentifiedClip) Verify(publishedAt time.Time, duration timeutil.Duration) (VerifiedClip, error) {
	if !c.start.Less(c.end) {
		return VerifiedClip{}, &InvalidTimeRangeError{Start: c.start, End: c.end}
	}

	embedded := c.id.Time()

	tod, exact := timeutil.TimeOfDay(embedded)
	if !exact || tod != c.start {
		return VerifiedClip{}, &IdentityMismatchError{
			Kind:     MismatchTime,
			ID:       c.id,
			Embedded: embedded.Format("15:04:05.000"),
			Expected: c.start.String(),
		}
	}

	if !timeutil.Midnight(embedded).Equal(timeutil.Midnight(publishedAt)) {
		return VerifiedClip{}, &IdentityMismatchError{
			Kind:     MismatchDate,
			ID:       c.id,
			Embedded: formatDate(embedded),
			Expected: formatDate(publishedAt),
		}
	}

	if !c.start.Less(duration) || !c.end.Less(duration) {
		return VerifiedClip{}, &RangeExceededError{Start: c.start, End: c.end, Duration: duration}
	}

	return VerifiedClip{clipData: c.clipData, id: c.id}, nil
}

// VerifiedClip is only produced by IdentifiedClip.Verify.
type VerifiedClip struct {
	clipData
	id temporalid.ID
}

func (c VerifiedClip) ID() temporalid.ID { return c.id }

// Downgrade drops the verified status but keeps the id, so the clip can be
// verified again against new video attributes.
func (c VerifiedClip) Downgrade() IdentifiedClip {
	return IdentifiedClip{clipData: c.clipData, id: c.id}
}
