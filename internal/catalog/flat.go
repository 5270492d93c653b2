package catalog

import (
	"time"
)

// FlatClip is one entry of the flat clip index, keyed by the clip's temporal
// id.
type FlatClip struct {
	SongTitle       string   `json:"songTitle"`
	Artists         []string `json:"artists"`
	ExternalArtists []string `json:"externalArtists,omitempty"`
	IsClipped       bool     `json:"isClipped"`
	StartTimeSecs   uint32   `json:"startTimeSecs"`
	EndTimeSecs     uint32   `json:"endTimeSecs"`
	ClipTags        []string `json:"clipTags,omitempty"`
	VolumePercent   *int     `json:"volumePercent,omitempty"`
	VideoID         VideoID  `json:"videoId"`
}

// FlatVideo is one entry of the flat video index, keyed by video id.
type FlatVideo struct {
	ClipUUIDs     []string      `json:"clipUuids"`
	Artists       []string      `json:"artists"`
	Title         string        `json:"title"`
	ChannelID     ChannelID     `json:"channelId"`
	UploaderName  string        `json:"uploaderName,omitempty"`
	PublishedAt   time.Time     `json:"publishedAt"`
	SyncedAt      time.Time     `json:"syncedAt"`
	DurationSecs  uint32        `json:"durationSecs"`
	PrivacyStatus PrivacyStatus `json:"privacyStatus"`
	Embeddable    bool          `json:"embeddable"`
	VideoTags     []string      `json:"videoTags"`
}

func flatClip(v *Video, c VerifiedClip) FlatClip {
	f := FlatClip{
		SongTitle:       c.songTitle,
		Artists:         c.artists,
		ExternalArtists: c.externalArtists,
		IsClipped:       c.isClipped,
		StartTimeSecs:   c.start.Seconds(),
		EndTimeSecs:     c.end.Seconds(),
		ClipTags:        c.tags,
		VideoID:         v.ID(),
	}

	if c.volume.IsSet() {
		n := int(c.volume)
		f.VolumePercent = &n
	}

	return f
}

// FlatClips projects every clip in the library. encoding/json writes map
// keys in sorted order, so the output is stable.
func FlatClips(l *Library) map[string]FlatClip {
	m := make(map[string]FlatClip)

	for _, v := range l.Videos() {
		for _, c := range v.sorted {
			m[c.id.String()] = flatClip(v, c)
		}
	}

	return m
}

func flatVideo(v *Video) FlatVideo {
	a := v.attrs

	ids := make([]string, len(v.sorted))
	for i, c := range v.sorted {
		ids[i] = c.id.String()
	}

	return FlatVideo{
		ClipUUIDs:     ids,
		Artists:       v.Artists(),
		Title:         a.Title,
		ChannelID:     a.ChannelID,
		UploaderName:  v.local.UploaderName,
		PublishedAt:   a.PublishedAt,
		SyncedAt:      a.SyncedAt,
		DurationSecs:  a.Duration.Seconds(),
		PrivacyStatus: a.PrivacyStatus,
		Embeddable:    a.Embeddable,
		VideoTags:     v.local.Tags.Strings(),
	}
}

func FlatVideos(l *Library) map[VideoID]FlatVideo {
	m := make(map[VideoID]FlatVideo, l.Len())

	for _, v := range l.Videos() {
		m[v.ID()] = flatVideo(v)
	}

	return m
}
