package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/musicfile"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
	"fknsrs.biz/p/clipcatalog/internal/youtube"
)

var testRegistry = catalog.NewArtistRegistry(
	catalog.Artist{ID: "tester", En: "Tester"},
	catalog.Artist{ID: "guest", En: "Guest Singer"},
)

type fakeProvider struct {
	attrs map[catalog.VideoID]catalog.Attributes
	err   error
	calls [][]catalog.VideoID
}

func (f *fakeProvider) Fetch(ctx context.Context, ids []catalog.VideoID) (youtube.Result, error) {
	f.calls = append(f.calls, ids)

	if f.err != nil {
		return nil, f.err
	}

	res := make(youtube.Result, len(ids))
	for _, id := range ids {
		if a, ok := f.attrs[id]; ok {
			res[id] = &a
		} else {
			res[id] = nil
		}
	}

	return res, nil
}

func testAttributes(t testing.TB, id catalog.VideoID, publishedAt string, syncedAt time.Time) catalog.Attributes {
	t.Helper()

	p, err := time.Parse(time.RFC3339, publishedAt)
	require.NoError(t, err)

	a, err := catalog.Attributes{
		VideoID:       id,
		Title:         "Stream " + string(id),
		ChannelID:     "UC1111111111111111111111",
		PublishedAt:   p,
		SyncedAt:      syncedAt,
		Duration:      timeutil.MustFromSeconds(600),
		PrivacyStatus: catalog.PrivacyPublic,
		Embeddable:    true,
	}.Normalize()
	require.NoError(t, err)

	return a
}

type testEnv struct {
	dir      string
	opts     Options
	provider *fakeProvider
	pipeline *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	sync1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	e := &testEnv{
		dir: dir,
		opts: Options{
			MusicRoot:     filepath.Join(dir, "music"),
			MinClipsPath:  filepath.Join(dir, "min", "clips.min.json"),
			MinVideosPath: filepath.Join(dir, "min", "videos.min.json"),
			Workers:       2,
		},
		provider: &fakeProvider{attrs: map[catalog.VideoID]catalog.Attributes{
			"aaaaaaaaaaa": testAttributes(t, "aaaaaaaaaaa", "2024-03-05T10:00:00Z", sync1),
			"bbbbbbbbbbb": testAttributes(t, "bbbbbbbbbbb", "2024-04-10T08:00:00Z", sync1),
		}},
	}

	e.pipeline = New(e.opts, testRegistry, e.provider)

	return e
}

func (e *testEnv) writeInput(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

func (e *testEnv) monthFile(t *testing.T, year int, month time.Month) string {
	t.Helper()

	b, err := os.ReadFile(musicfile.MonthPath(e.opts.MusicRoot, catalog.PartitionKey{Year: year, Month: month}))
	require.NoError(t, err)

	return string(b)
}

const firstInput = `[
  {
    "videoId": "https://www.youtube.com/watch?v=aaaaaaaaaaa",
    "uploaderName": "Uploader",
    "videoTags": ["karaoke"],
    "clips": [
      {"songTitle": "Opening", "artists": ["tester"], "isClipped": false, "startTime": "PT5S", "endTime": "PT1M"}
    ]
  },
  {
    "videoId": "bbbbbbbbbbb",
    "clips": [
      {"songTitle": "Duet", "artists": ["tester", "guest"], "isClipped": true, "startTime": "PT1M", "endTime": "PT2M", "volumePercent": 80}
    ]
  }
]`

func TestAddSubmissions(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	report, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	a.Equal([]catalog.VideoID{"aaaaaaaaaaa", "bbbbbbbbbbb"}, report.Added)
	a.Empty(report.Extended)
	a.Equal(2, report.Clips)
	a.Len(e.provider.calls, 1)

	a.Contains(e.monthFile(t, 2024, time.March), `"uploaderName": "Uploader"`)
	a.Contains(e.monthFile(t, 2024, time.April), `"volumePercent": 80`)
	a.Equal("[]\n", e.monthFile(t, 2024, time.May))

	lib, err := e.pipeline.Load(context.Background())
	require.NoError(t, err)
	a.Equal(2, lib.Len())

	_, err = os.Stat(e.opts.MinClipsPath)
	a.NoError(err)
	_, err = os.Stat(e.opts.MinVideosPath)
	a.NoError(err)
}

func TestAddSubmissionsExtends(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "first.json", firstInput))
	require.NoError(t, err)

	report, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "second.json", `[
  {"videoId": "aaaaaaaaaaa", "clips": [{"songTitle": "Encore", "artists": ["guest"], "isClipped": false, "startTime": "PT2M", "endTime": "PT3M"}]}
]`))
	require.NoError(t, err)

	a.Equal([]catalog.VideoID{"aaaaaaaaaaa"}, report.Extended)
	a.Len(e.provider.calls, 1)

	lib, err := e.pipeline.Load(context.Background())
	require.NoError(t, err)

	v, ok := lib.Get("aaaaaaaaaaa")
	if a.True(ok) {
		a.Len(v.Clips(), 2)
		a.Equal("Uploader", v.Local().UploaderName)
	}
}

func TestAddSubmissionsRejectsOverlap(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	path := e.writeInput(t, "input.json", firstInput)

	_, err := e.pipeline.AddSubmissions(context.Background(), path)
	require.NoError(t, err)

	before := e.monthFile(t, 2024, time.March)

	_, err = e.pipeline.AddSubmissions(context.Background(), path)
	if a.Error(err) {
		var overlap *catalog.ClipsOverlapError
		a.True(errors.As(err, &overlap))
	}

	a.Equal(before, e.monthFile(t, 2024, time.March))
}

func TestAddSubmissionsMissingMetadata(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", `[
  {"videoId": "zzzzzzzzzzz", "clips": [{"songTitle": "Lost", "artists": ["tester"], "isClipped": false, "startTime": "PT1S", "endTime": "PT2S"}]},
  {"videoId": "aaaaaaaaaaa", "clips": [{"songTitle": "Opening", "artists": ["tester"], "isClipped": false, "startTime": "PT5S", "endTime": "PT1M"}]}
]`))

	var missing *catalog.MissingMetadataError
	if a.True(errors.As(err, &missing)) {
		a.Equal([]catalog.VideoID{"zzzzzzzzzzz"}, missing.IDs)
	}

	_, err = os.Stat(e.opts.MusicRoot)
	a.ErrorIs(err, os.ErrNotExist)
}

func TestAddSubmissionsProviderFailure(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)
	e.provider.err = fmt.Errorf("quota exceeded")

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	a.ErrorContains(err, "quota exceeded")
}

func TestAddSubmissionsDryRun(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)
	e.opts.DryRun = true
	p := New(e.opts, testRegistry, e.provider)

	report, err := p.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)
	a.Len(report.Added, 2)

	_, err = os.Stat(e.opts.MusicRoot)
	a.ErrorIs(err, os.ErrNotExist)
	_, err = os.Stat(e.opts.MinClipsPath)
	a.ErrorIs(err, os.ErrNotExist)
}

func TestSync(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	sync2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	renamed := testAttributes(t, "aaaaaaaaaaa", "2024-03-05T10:00:00Z", sync2)
	renamed.Title = "Renamed"
	e.provider.attrs["aaaaaaaaaaa"] = renamed
	e.provider.attrs["bbbbbbbbbbb"] = testAttributes(t, "bbbbbbbbbbb", "2024-04-10T08:00:00Z", sync2)
	e.provider.calls = nil

	report, err := e.pipeline.Sync(context.Background(), nil)
	require.NoError(t, err)

	a.Len(e.provider.calls, 2)
	a.Equal(2, report.Refreshed)
	a.Equal([]catalog.VideoID{"aaaaaaaaaaa"}, report.Changed)
	a.Empty(report.Failed)
	a.Equal([]catalog.PartitionKey{{Year: 2024, Month: time.March}, {Year: 2024, Month: time.April}}, report.Partitions)

	a.Contains(e.monthFile(t, 2024, time.March), `"title": "Renamed"`)
	a.Contains(e.monthFile(t, 2024, time.April), `"syncedAt": "2025-02-01T00:00:00Z"`)
}

func TestSyncPartialFailure(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	delete(e.provider.attrs, "bbbbbbbbbbb")
	e.provider.attrs["aaaaaaaaaaa"] = testAttributes(t, "aaaaaaaaaaa", "2024-03-05T10:00:00Z", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	before := e.monthFile(t, 2024, time.April)

	report, err := e.pipeline.Sync(context.Background(), nil)

	var missing *catalog.MissingMetadataError
	a.True(errors.As(err, &missing))
	a.Equal([]catalog.VideoID{"bbbbbbbbbbb"}, report.Failed)
	a.Equal(1, report.Refreshed)

	a.Contains(e.monthFile(t, 2024, time.March), `"syncedAt": "2025-03-01T00:00:00Z"`)
	a.Equal(before, e.monthFile(t, 2024, time.April))
}

func TestSyncSelectedPartitions(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)
	e.provider.calls = nil

	report, err := e.pipeline.Sync(context.Background(), []catalog.PartitionKey{{Year: 2024, Month: time.April}, {Year: 2020, Month: time.January}})
	require.NoError(t, err)

	a.Equal([]catalog.PartitionKey{{Year: 2024, Month: time.April}}, report.Partitions)
	a.Equal([][]catalog.VideoID{{"bbbbbbbbbbb"}}, e.provider.calls)
}

func TestUpdate(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)

	path := musicfile.MonthPath(e.opts.MusicRoot, catalog.PartitionKey{Year: 2024, Month: time.March})
	canonical := e.monthFile(t, 2024, time.March)

	var buf bytes.Buffer
	require.NoError(t, json.Compact(&buf, []byte(canonical)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	require.NoError(t, os.Remove(e.opts.MinClipsPath))

	lib, err := e.pipeline.Update(context.Background())
	require.NoError(t, err)
	a.Equal(2, lib.Len())

	a.Equal(canonical, e.monthFile(t, 2024, time.March))

	_, err = os.Stat(e.opts.MinClipsPath)
	a.NoError(err)
}

func TestMin(t *testing.T) {
	a := assert.New(t)

	e := newTestEnv(t)

	_, err := e.pipeline.AddSubmissions(context.Background(), e.writeInput(t, "input.json", firstInput))
	require.NoError(t, err)
	require.NoError(t, os.Remove(e.opts.MinVideosPath))

	a.NoError(e.pipeline.Min(context.Background()))

	b, err := os.ReadFile(e.opts.MinVideosPath)
	a.NoError(err)
	a.Contains(string(b), `"aaaaaaaaaaa":{`)
}
