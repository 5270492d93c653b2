package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/temporalid"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

// The raw* types mirror the JSON documents exactly. Decoding happens in two
// steps: into these shapes first, then through the validating constructors.

type rawClip struct {
	SongTitle       string   `json:"songTitle"`
	Artists         []string `json:"artists"`
	ExternalArtists []string `json:"externalArtists,omitempty"`
	IsClipped       *bool    `json:"isClipped"`
	StartTime       *string  `json:"startTime"`
	EndTime         *string  `json:"endTime"`
	ClipTags        []string `json:"clipTags,omitempty"`
	UUID            *string  `json:"uuid,omitempty"`
	VolumePercent   *int     `json:"volumePercent,omitempty"`
}

type rawVideo struct {
	VideoID       string    `json:"videoId"`
	Title         *string   `json:"title"`
	ChannelID     string    `json:"channelId"`
	UploaderName  *string   `json:"uploaderName,omitempty"`
	PublishedAt   *string   `json:"publishedAt"`
	SyncedAt      *string   `json:"syncedAt"`
	Duration      *string   `json:"duration"`
	PrivacyStatus string    `json:"privacyStatus"`
	Embeddable    *bool     `json:"embeddable"`
	VideoTags     []string  `json:"videoTags"`
	Clips         []rawClip `json:"clips"`
}

type rawSubmission struct {
	VideoID      string    `json:"videoId"`
	UploaderName *string   `json:"uploaderName,omitempty"`
	VideoTags    []string  `json:"videoTags,omitempty"`
	Clips        []rawClip `json:"clips"`
}

func decodeStrict(b []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}

	if dec.More() {
		return fmt.Errorf("unexpected data after top-level value")
	}

	return nil
}

func missing(field string) error {
	return &ValidationError{Field: field, Reason: "missing"}
}

func parseDuration(field string, s *string, errs *[]error) timeutil.Duration {
	if s == nil {
		*errs = append(*errs, missing(field))
		return timeutil.Duration{}
	}

	var d timeutil.Duration
	if err := d.UnmarshalText([]byte(*s)); err != nil {
		*errs = append(*errs, err)
	}

	return d
}

func parseTimestamp(field string, s *string, errs *[]error) time.Time {
	if s == nil {
		*errs = append(*errs, missing(field))
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		*errs = append(*errs, &ParseError{Kind: "timestamp", Input: *s, Reason: "expected RFC 3339"})
	}

	return t
}

func formatTimestamp(t time.Time) *string {
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func (r rawClip) input() (ClipInput, []error) {
	var errs []error

	if r.IsClipped == nil {
		errs = append(errs, missing("isClipped"))
	}
	start := parseDuration("startTime", r.StartTime, &errs)
	end := parseDuration("endTime", r.EndTime, &errs)
	if len(errs) > 0 {
		return ClipInput{}, errs
	}

	return ClipInput{
		SongTitle:       r.SongTitle,
		Artists:         r.Artists,
		ExternalArtists: r.ExternalArtists,
		IsClipped:       *r.IsClipped,
		Start:           start,
		End:             end,
		Tags:            r.ClipTags,
		VolumePercent:   r.VolumePercent,
	}, nil
}

func (r rawClip) draft(reg *ArtistRegistry) (DraftClip, error) {
	if r.UUID != nil {
		return DraftClip{}, &ValidationError{Field: "uuid", Reason: "submissions cannot carry a uuid"}
	}
	if r.VolumePercent != nil {
		return DraftClip{}, &ValidationError{Field: "volumePercent", Reason: "submissions cannot carry a volume"}
	}

	in, errs := r.input()
	if len(errs) > 0 {
		return DraftClip{}, errors.Join(errs...)
	}

	return NewDraftClip(reg, in)
}

func (r rawClip) identified(reg *ArtistRegistry) (IdentifiedClip, error) {
	in, errs := r.input()

	var id temporalid.ID
	if r.UUID == nil {
		errs = append(errs, missing("uuid"))
	} else if err := id.UnmarshalText([]byte(*r.UUID)); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return IdentifiedClip{}, errors.Join(errs...)
	}

	return NewIdentifiedClip(reg, in, id)
}

// clipLabel names a clip in errors. A start time that doesn't parse is
// reported as zero; the parse failure itself is among the clip's errors.
func clipLabel(r rawClip) (string, timeutil.Duration) {
	var start timeutil.Duration
	if r.StartTime != nil {
		_ = start.UnmarshalText([]byte(*r.StartTime))
	}

	return r.SongTitle, start
}

func (r rawVideo) lift(reg *ArtistRegistry) (*Video, error) {
	var errs []error

	if r.Title == nil {
		errs = append(errs, missing("title"))
	}
	publishedAt := parseTimestamp("publishedAt", r.PublishedAt, &errs)
	syncedAt := parseTimestamp("syncedAt", r.SyncedAt, &errs)
	duration := parseDuration("duration", r.Duration, &errs)
	if r.Embeddable == nil {
		errs = append(errs, missing("embeddable"))
	}

	id, err := ParseVideoID(r.VideoID)
	if err != nil {
		errs = append(errs, err)
	}
	channelID, err := ParseChannelID(r.ChannelID)
	if err != nil {
		errs = append(errs, err)
	}
	privacy, err := ParsePrivacyStatus(r.PrivacyStatus)
	if err != nil {
		errs = append(errs, err)
	}

	var attrs Attributes
	if len(errs) == 0 {
		attrs, err = Attributes{
			VideoID:       id,
			Title:         *r.Title,
			ChannelID:     channelID,
			PublishedAt:   publishedAt,
			SyncedAt:      syncedAt,
			Duration:      duration,
			PrivacyStatus: privacy,
			Embeddable:    *r.Embeddable,
		}.Normalize()
		if err != nil {
			errs = append(errs, err)
		}
	}

	local, err := newLocalInfo(VideoID(r.VideoID), r.UploaderName, r.VideoTags)
	if err != nil {
		errs = append(errs, err)
	}

	clips := make([]IdentifiedClip, 0, len(r.Clips))
	for _, rc := range r.Clips {
		c, err := rc.identified(reg)
		if err != nil {
			title, start := clipLabel(rc)
			errs = append(errs, &ClipError{SongTitle: title, Start: start, Err: err})
			continue
		}

		clips = append(clips, c)
	}

	if len(errs) > 0 {
		return nil, &VideoError{VideoID: VideoID(r.VideoID), Err: errors.Join(errs...)}
	}

	return NewVideoFromIdentified(attrs, local, clips)
}

func newLocalInfo(id VideoID, uploaderName *string, tags []string) (LocalInfo, error) {
	var errs []error

	name, err := NormalizeUploaderName(uploaderName)
	if err != nil {
		errs = append(errs, err)
	}

	t, err := NewTags(tags)
	if err != nil {
		errs = append(errs, err)
	}
	if t == nil {
		t = Tags{}
	}

	if len(errs) > 0 {
		return LocalInfo{}, errors.Join(errs...)
	}

	return LocalInfo{VideoID: id, UploaderName: name, Tags: t}, nil
}

// DecodeVideos reads a month document. Every video is checked and all
// failures are returned together, along with the videos that were valid so
// callers can go on to check those.
func DecodeVideos(b []byte, reg *ArtistRegistry) ([]*Video, error) {
	var raw []rawVideo
	if err := decodeStrict(b, &raw); err != nil {
		return nil, fmt.Errorf("catalog.DecodeVideos: %w", err)
	}

	videos := make([]*Video, 0, len(raw))

	var errs []error
	for _, r := range raw {
		v, err := r.lift(reg)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		videos = append(videos, v)
	}

	if len(errs) > 0 {
		return videos, fmt.Errorf("catalog.DecodeVideos: %w", errors.Join(errs...))
	}

	return videos, nil
}

func encodeClip(c VerifiedClip) rawClip {
	isClipped := c.isClipped
	start, end := c.start.String(), c.end.String()
	id := c.id.String()

	r := rawClip{
		SongTitle:       c.songTitle,
		Artists:         c.artists,
		ExternalArtists: c.externalArtists,
		IsClipped:       &isClipped,
		StartTime:       &start,
		EndTime:         &end,
		ClipTags:        c.tags,
		UUID:            &id,
	}

	if c.volume.IsSet() {
		n := int(c.volume)
		r.VolumePercent = &n
	}

	return r
}

func encodeVideo(v *Video) rawVideo {
	a := v.attrs

	title := a.Title
	duration := a.Duration.String()
	embeddable := a.Embeddable

	r := rawVideo{
		VideoID:       string(a.VideoID),
		Title:         &title,
		ChannelID:     string(a.ChannelID),
		PublishedAt:   formatTimestamp(a.PublishedAt),
		SyncedAt:      formatTimestamp(a.SyncedAt),
		Duration:      &duration,
		PrivacyStatus: string(a.PrivacyStatus),
		Embeddable:    &embeddable,
		VideoTags:     v.local.Tags.Strings(),
	}

	if v.local.UploaderName != "" {
		name := v.local.UploaderName
		r.UploaderName = &name
	}

	for _, c := range v.sorted {
		r.Clips = append(r.Clips, encodeClip(c))
	}

	return r
}

// EncodeVideos writes a month document: two-space indentation, videos in
// the order given, clips sorted by start time.
func EncodeVideos(videos []*Video) ([]byte, error) {
	raw := make([]rawVideo, len(videos))
	for i, v := range videos {
		raw[i] = encodeVideo(v)
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(raw); err != nil {
		return nil, fmt.Errorf("catalog.EncodeVideos: %w", err)
	}

	return buf.Bytes(), nil
}

// Submission is a request to add clips to a video, before any metadata for
// that video has been fetched.
type Submission struct {
	Local  LocalInfo
	Drafts []DraftClip
}

// DecodeSubmissions reads a submission file. Duplicate video ids are an
// error, as is any invalid clip; all problems are reported together.
func DecodeSubmissions(b []byte, reg *ArtistRegistry) ([]Submission, error) {
	var raw []rawSubmission
	if err := decodeStrict(b, &raw); err != nil {
		return nil, fmt.Errorf("catalog.DecodeSubmissions: %w", err)
	}

	seen := make(map[VideoID]bool)

	var (
		out  []Submission
		dups []VideoID
		errs []error
	)

	for _, r := range raw {
		id, err := ParseVideoIDOrURL(r.VideoID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if seen[id] {
			dups = append(dups, id)
			continue
		}
		seen[id] = true

		local, err := newLocalInfo(id, r.UploaderName, r.VideoTags)
		if err != nil {
			errs = append(errs, &VideoError{VideoID: id, Err: err})
			continue
		}

		var clipErrs []error
		drafts := make([]DraftClip, 0, len(r.Clips))
		for _, rc := range r.Clips {
			d, err := rc.draft(reg)
			if err != nil {
				title, start := clipLabel(rc)
				clipErrs = append(clipErrs, &ClipError{SongTitle: title, Start: start, Err: err})
				continue
			}

			drafts = append(drafts, d)
		}

		if len(r.Clips) == 0 {
			clipErrs = append(clipErrs, ErrNoClips)
		}

		if len(clipErrs) > 0 {
			errs = append(errs, &VideoError{VideoID: id, Err: errors.Join(clipErrs...)})
			continue
		}

		out = append(out, Submission{Local: local, Drafts: drafts})
	}

	if len(dups) > 0 {
		errs = append(errs, &DuplicateIDError{IDs: dups})
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog.DecodeSubmissions: %w", errors.Join(errs...))
	}

	return out, nil
}

func (s Submission) VideoID() VideoID { return s.Local.VideoID }
