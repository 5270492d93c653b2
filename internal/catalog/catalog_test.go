package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

var testRegistry = NewArtistRegistry(
	Artist{ID: "aimer-test", Ja: "エイマーテスト", Jah: "えいまーてすと", En: "Aimer Test", Aliases: []string{"aim"}, ChannelID: "UC1111111111111111111111", Color: Color{0x11, 0x11, 0x11}},
	Artist{ID: "eir-aoi-test", Ja: "エイラアオイテスト", Jah: "えいらあおいてすと", En: "Eir Aoi Test", ChannelID: "UC2222222222222222222222", Color: Color{0x22, 0x22, 0x22}},
	Artist{ID: "lisa-test", Ja: "リサテスト", Jah: "りさてすと", En: "Lisa Test", Aliases: []string{"ls"}, ChannelID: "UC3333333333333333333333", Color: Color{0x33, 0x33, 0x33}, IsGraduated: true},
)

func mustTime(t testing.TB, s string) time.Time {
	t.Helper()

	v, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)

	return v.UTC()
}

func testDraft(t testing.TB, title string, start, end int64, artists ...string) DraftClip {
	t.Helper()

	if len(artists) == 0 {
		artists = []string{"aimer-test"}
	}

	d, err := NewDraftClip(testRegistry, ClipInput{
		SongTitle: title,
		Artists:   artists,
		Start:     timeutil.MustFromSeconds(start),
		End:       timeutil.MustFromSeconds(end),
	})
	require.NoError(t, err)

	return d
}

func testAttributes(t testing.TB, id VideoID, publishedAt string, duration int64) Attributes {
	t.Helper()

	a, err := Attributes{
		VideoID:       id,
		Title:         "Video " + string(id),
		ChannelID:     "UC1111111111111111111111",
		PublishedAt:   mustTime(t, publishedAt),
		SyncedAt:      mustTime(t, "2025-01-01T01:01:01Z"),
		Duration:      timeutil.MustFromSeconds(duration),
		PrivacyStatus: PrivacyPublic,
		Embeddable:    true,
	}.Normalize()
	require.NoError(t, err)

	return a
}

func testVideo(t testing.TB, id VideoID, publishedAt string, drafts ...DraftClip) *Video {
	t.Helper()

	if len(drafts) == 0 {
		drafts = []DraftClip{testDraft(t, "Song "+string(id), 10, 20)}
	}

	v, err := NewVideo(testAttributes(t, id, publishedAt, 3600), LocalInfo{VideoID: id, Tags: Tags{}}, drafts)
	require.NoError(t, err)

	return v
}
