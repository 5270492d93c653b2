package refresh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
	"fknsrs.biz/p/clipcatalog/internal/youtube"
)

var testRegistry = catalog.NewArtistRegistry(catalog.Artist{ID: "tester", En: "Tester"})

var (
	publishedAt = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	firstSync   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	secondSync  = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
)

func testAttributes(t testing.TB, id catalog.VideoID, syncedAt time.Time) catalog.Attributes {
	t.Helper()

	a, err := catalog.Attributes{
		VideoID:       id,
		Title:         "Stream",
		ChannelID:     "UC1111111111111111111111",
		PublishedAt:   publishedAt,
		SyncedAt:      syncedAt,
		Duration:      timeutil.MustFromSeconds(600),
		PrivacyStatus: catalog.PrivacyPublic,
		Embeddable:    true,
	}.Normalize()
	require.NoError(t, err)

	return a
}

func testVideo(t testing.TB, id catalog.VideoID) *catalog.Video {
	t.Helper()

	d, err := catalog.NewDraftClip(testRegistry, catalog.ClipInput{
		SongTitle: "Song",
		Artists:   []string{"tester"},
		Start:     timeutil.MustFromSeconds(60),
		End:       timeutil.MustFromSeconds(120),
	})
	require.NoError(t, err)

	v, err := catalog.NewVideo(testAttributes(t, id, firstSync), catalog.LocalInfo{VideoID: id}, []catalog.DraftClip{d})
	require.NoError(t, err)

	return v
}

func TestRun(t *testing.T) {
	a := assert.New(t)

	videos := []*catalog.Video{
		testVideo(t, "aaaaaaaaaaa"),
		testVideo(t, "bbbbbbbbbbb"),
		testVideo(t, "ccccccccccc"),
		testVideo(t, "ddddddddddd"),
		testVideo(t, "eeeeeeeeeee"),
	}

	same := testAttributes(t, "aaaaaaaaaaa", secondSync)

	renamed := testAttributes(t, "bbbbbbbbbbb", secondSync)
	renamed.Title = "Renamed Stream"

	shortened := testAttributes(t, "ddddddddddd", secondSync)
	shortened.Duration = timeutil.MustFromSeconds(120)

	moved := testAttributes(t, "eeeeeeeeeee", secondSync)
	moved.PublishedAt = publishedAt.AddDate(0, 0, 1)

	res := youtube.Result{
		"aaaaaaaaaaa": &same,
		"bbbbbbbbbbb": &renamed,
		"ccccccccccc": nil,
		"ddddddddddd": &shortened,
		"eeeeeeeeeee": &moved,
	}

	out := Run(context.Background(), 3, videos, res)
	require.Len(t, out, 5)

	for i, o := range out {
		a.Equal(videos[i].ID(), o.ID)
		a.Same(videos[i], o.Previous)
	}

	a.NoError(out[0].Err)
	a.False(out[0].Changed)
	a.Equal(secondSync, out[0].Video.Attributes().SyncedAt)
	a.Equal(videos[0].Clips(), out[0].Video.Clips())

	a.NoError(out[1].Err)
	a.True(out[1].Changed)
	a.Equal("Renamed Stream", out[1].Video.Attributes().Title)

	var missing *catalog.MissingMetadataError
	a.True(errors.As(out[2].Err, &missing))
	a.Nil(out[2].Video)

	var exceeded *catalog.RangeExceededError
	a.True(errors.As(out[3].Err, &exceeded))

	a.ErrorIs(out[4].Err, catalog.ErrIdentityMismatch)
}

func TestRunOrdering(t *testing.T) {
	a := assert.New(t)

	var videos []*catalog.Video
	res := youtube.Result{}
	for i := 0; i < 40; i++ {
		id := catalog.VideoID(fmt.Sprintf("vid%08d", i))
		videos = append(videos, testVideo(t, id))

		attrs := testAttributes(t, id, secondSync)
		res[id] = &attrs
	}

	for _, workers := range []int{0, 1, 4, 100} {
		out := Run(context.Background(), workers, videos, res)
		for i, o := range out {
			a.NoError(o.Err)
			a.Equal(videos[i].ID(), o.ID)
		}
	}
}

func TestRunCancelled(t *testing.T) {
	a := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	videos := []*catalog.Video{testVideo(t, "aaaaaaaaaaa"), testVideo(t, "bbbbbbbbbbb")}

	out := Run(ctx, 1, videos, youtube.Result{})
	a.Len(out, 2)

	for _, o := range out {
		a.Error(o.Err)
	}
}
