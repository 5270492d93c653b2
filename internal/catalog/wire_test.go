package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalMonth = `[
  {
    "videoId": "11111111111",
    "title": "Evening Stream",
    "channelId": "UC1111111111111111111111",
    "uploaderName": "Someone",
    "publishedAt": "2024-01-01T12:12:12Z",
    "syncedAt": "2025-01-01T01:01:01Z",
    "duration": "PT1H",
    "privacyStatus": "public",
    "embeddable": true,
    "videoTags": [
      "karaoke"
    ],
    "clips": [
      {
        "songTitle": "First",
        "artists": [
          "aimer-test"
        ],
        "isClipped": false,
        "startTime": "PT0S",
        "endTime": "PT10S",
        "uuid": "018cc251-f400-7000-8000-000000000000"
      },
      {
        "songTitle": "Second",
        "artists": [
          "aimer-test",
          "lisa-test"
        ],
        "externalArtists": [
          "Guest"
        ],
        "isClipped": true,
        "startTime": "PT30S",
        "endTime": "PT1M",
        "clipTags": [
          "acoustic"
        ],
        "uuid": "018cc252-6930-7000-8000-000000000000",
        "volumePercent": 70
      }
    ]
  },
  {
    "videoId": "22222222222",
    "title": "Short",
    "channelId": "UC2222222222222222222222",
    "publishedAt": "2024-01-01T12:12:12Z",
    "syncedAt": "2025-01-01T01:01:01Z",
    "duration": "PT1M",
    "privacyStatus": "unlisted",
    "embeddable": false,
    "videoTags": [],
    "clips": [
      {
        "songTitle": "Only",
        "artists": [
          "eir-aoi-test"
        ],
        "isClipped": false,
        "startTime": "PT10S",
        "endTime": "PT20S",
        "uuid": "018cc252-1b10-7000-8000-000000000000"
      }
    ]
  }
]
`

func TestDecodeVideos(t *testing.T) {
	a := assert.New(t)

	videos, err := DecodeVideos([]byte(canonicalMonth), testRegistry)
	require.NoError(t, err)
	require.Len(t, videos, 2)

	v := videos[0]
	a.Equal(VideoID("11111111111"), v.ID())
	a.Equal("Someone", v.Local().UploaderName)
	a.Equal(Tags{"karaoke"}, v.Local().Tags)
	a.Equal([]string{"aimer-test", "lisa-test"}, v.Artists())

	clips := v.SortedClips()
	a.Equal("First", clips[0].SongTitle())
	a.False(clips[0].HasExternalArtists())
	a.Equal([]string{"Guest"}, clips[1].ExternalArtists())
	a.Equal(VolumePercent(70), clips[1].VolumePercent())

	a.Equal(PrivacyUnlisted, videos[1].Attributes().PrivacyStatus)
	a.Equal("", videos[1].Local().UploaderName)
}

func TestEncodeVideosRoundTrip(t *testing.T) {
	a := assert.New(t)

	videos, err := DecodeVideos([]byte(canonicalMonth), testRegistry)
	require.NoError(t, err)

	b, err := EncodeVideos(videos)
	a.NoError(err)
	a.Equal(canonicalMonth, string(b))
}

func TestEncodeVideosEmpty(t *testing.T) {
	a := assert.New(t)

	b, err := EncodeVideos(nil)
	a.NoError(err)
	a.Equal("[]\n", string(b))
}

// month returns canonicalMonth with each old, new pair substituted.
func month(oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(canonicalMonth)
}

var decodeVideosErrorTests = []struct {
	name  string
	input string
	error string
}{
	{
		name:  "unknown field",
		input: `[{"videoId":"11111111111","bogus":1}]`,
		error: `catalog.DecodeVideos: json: unknown field "bogus"`,
	},
	{
		name:  "bad video id",
		input: month(`"videoId": "11111111111"`, `"videoId": "short"`),
		error: `catalog.DecodeVideos: video short: invalid video id "short": expected 11 characters of [0-9A-Za-z_-]`,
	},
	{
		name:  "bad duration",
		input: month(`"duration": "PT1H"`, `"duration": "1H"`),
		error: `catalog.DecodeVideos: video 11111111111: invalid duration "1H": missing 'PT' prefix`,
	},
	{
		name: "bad timestamp",
		input: month(`"publishedAt": "2024-01-01T12:12:12Z",
    "syncedAt": "2025-01-01T01:01:01Z",
    "duration": "PT1M"`, `"publishedAt": "2024-01-01T12:12:12Z",
    "syncedAt": "yesterday",
    "duration": "PT1M"`),
		error: `catalog.DecodeVideos: video 22222222222: invalid timestamp "yesterday": expected RFC 3339`,
	},
	{
		name:  "missing fields",
		input: `[{"videoId":"11111111111","channelId":"UC1111111111111111111111","privacyStatus":"public","videoTags":[],"clips":[]}]`,
		error: "catalog.DecodeVideos: video 11111111111:\n  invalid title: missing\n  invalid publishedAt: missing\n  invalid syncedAt: missing\n  invalid duration: missing\n  invalid embeddable: missing",
	},
	{
		name:  "every bad value in a video",
		input: month(`"channelId": "UC1111111111111111111111"`, `"channelId": "UC1"`, `"privacyStatus": "public"`, `"privacyStatus": "hidden"`, `"endTime": "PT10S"`, `"endTime": "ten"`),
		error: "catalog.DecodeVideos: video 11111111111:\n  invalid channel id \"UC1\": expected \"UC\" followed by 22 characters of [0-9A-Za-z_-]\n  invalid privacy status \"hidden\": expected \"public\", \"unlisted\" or \"private\"\n  clip \"First\" at PT0S: invalid duration \"ten\": missing 'PT' prefix",
	},
	{
		name:  "trailing data",
		input: `[] []`,
		error: "catalog.DecodeVideos: unexpected data after top-level value",
	},
}

func TestDecodeVideosErrors(t *testing.T) {
	for _, tc := range decodeVideosErrorTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			_, err := DecodeVideos([]byte(tc.input), testRegistry)
			a.EqualError(err, tc.error)
		})
	}
}

// collectErrors returns every error of type T found by walking err,
// including each branch of joined errors.
func collectErrors[T error](err error) []T {
	var out []T

	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if v, ok := err.(T); ok {
			out = append(out, v)
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)

	return out
}

var decodeVideosAcrossVideosTests = []struct {
	name   string
	input  string
	videos []VideoID
	clips  []string
	error  string
}{
	{
		name:   "durations",
		input:  month(`"endTime": "PT10S"`, `"endTime": "PT1X"`, `"duration": "PT1M"`, `"duration": "PT99999S"`),
		videos: []VideoID{"11111111111", "22222222222"},
		clips:  []string{"First"},
		error: `catalog.DecodeVideos: video 11111111111: clip "First" at PT0S: invalid duration "PT1X": unexpected unit 'X'
video 22222222222: invalid duration "PT99999S": component "99999" does not fit in 16 bits`,
	},
	{
		name:   "video id and uuid",
		input:  month(`"videoId": "11111111111"`, `"videoId": "bad"`, `018cc252-1b10-7000`, `018cc252-1b10-4000`),
		videos: []VideoID{"bad", "22222222222"},
		clips:  []string{"Only"},
		error: `catalog.DecodeVideos: video bad: invalid video id "bad": expected 11 characters of [0-9A-Za-z_-]
video 22222222222: clip "Only" at PT10S: invalid temporal id "018cc252-1b10-4000-8000-000000000000": expected version 7, got 4`,
	},
}

func TestDecodeVideosAcrossVideos(t *testing.T) {
	for _, tc := range decodeVideosAcrossVideosTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			videos, err := DecodeVideos([]byte(tc.input), testRegistry)
			a.EqualError(err, tc.error)
			a.Empty(videos)

			var ids []VideoID
			for _, e := range collectErrors[*VideoError](err) {
				ids = append(ids, e.VideoID)
			}
			a.Equal(tc.videos, ids)

			var titles []string
			for _, e := range collectErrors[*ClipError](err) {
				titles = append(titles, e.SongTitle)
			}
			a.Equal(tc.clips, titles)
		})
	}
}

func TestDecodeVideosKeepsValidVideos(t *testing.T) {
	a := assert.New(t)

	videos, err := DecodeVideos([]byte(month(`"duration": "PT1M"`, `"duration": "PT1Z"`)), testRegistry)
	a.Error(err)

	require.Len(t, videos, 1)
	a.Equal(VideoID("11111111111"), videos[0].ID())
}

func TestDecodeVideosClipWithoutUUID(t *testing.T) {
	a := assert.New(t)

	doc := `[{
		"videoId": "11111111111",
		"title": "x",
		"channelId": "UC1111111111111111111111",
		"publishedAt": "2024-01-01T12:12:12Z",
		"syncedAt": "2025-01-01T01:01:01Z",
		"duration": "PT1H",
		"privacyStatus": "public",
		"embeddable": true,
		"videoTags": [],
		"clips": [{"songTitle": "A", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S"}]
	}]`

	_, err := DecodeVideos([]byte(doc), testRegistry)
	a.EqualError(err, `catalog.DecodeVideos: video 11111111111: clip "A" at PT1S: invalid uuid: missing`)
}

func TestDecodeVideosMisanchoredUUID(t *testing.T) {
	a := assert.New(t)

	doc := `[{
		"videoId": "11111111111",
		"title": "x",
		"channelId": "UC1111111111111111111111",
		"publishedAt": "2024-01-01T12:12:12Z",
		"syncedAt": "2025-01-01T01:01:01Z",
		"duration": "PT1H",
		"privacyStatus": "public",
		"embeddable": true,
		"videoTags": [],
		"clips": [{"songTitle": "A", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT30S", "endTime": "PT40S", "uuid": "018cc252-1b10-7000-8000-000000000000"}]
	}]`

	_, err := DecodeVideos([]byte(doc), testRegistry)
	a.ErrorIs(err, ErrIdentityMismatch)
}

func TestDecodeSubmissions(t *testing.T) {
	a := assert.New(t)

	doc := `[
		{
			"videoId": "https://www.youtube.com/watch?v=11111111111",
			"uploaderName": " Someone ",
			"videoTags": ["karaoke"],
			"clips": [
				{"songTitle": "A", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S"},
				{"songTitle": "B", "artists": ["lisa-test"], "isClipped": true, "startTime": "PT3S", "endTime": "PT4S"}
			]
		},
		{
			"videoId": "22222222222",
			"clips": [{"songTitle": "C", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT0S", "endTime": "PT5S"}]
		}
	]`

	subs, err := DecodeSubmissions([]byte(doc), testRegistry)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	a.Equal(VideoID("11111111111"), subs[0].VideoID())
	a.Equal("Someone", subs[0].Local.UploaderName)
	a.Len(subs[0].Drafts, 2)
	a.Equal(Tags{}, subs[1].Local.Tags)
}

func TestDecodeSubmissionsErrors(t *testing.T) {
	a := assert.New(t)

	doc := `[
		{"videoId": "11111111111", "clips": []},
		{"videoId": "22222222222", "clips": [{"songTitle": "A", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S", "uuid": "018cc251-f400-7000-8000-000000000000"}]},
		{"videoId": "33333333333", "clips": [{"songTitle": "B", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S"}]},
		{"videoId": "33333333333", "clips": [{"songTitle": "B", "artists": ["aimer-test"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S"}]}
	]`

	_, err := DecodeSubmissions([]byte(doc), testRegistry)
	a.EqualError(err, `catalog.DecodeSubmissions: video 11111111111: video has no clips
video 22222222222: clip "A" at PT1S: invalid uuid: submissions cannot carry a uuid
duplicate video ids: 33333333333`)
	a.ErrorIs(err, ErrNoClips)

	var dups *DuplicateIDError
	a.True(errors.As(err, &dups))
}
