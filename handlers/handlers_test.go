package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/catalogdb"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxdb"
	"fknsrs.biz/p/clipcatalog/internal/ctxjobqueue"
	"fknsrs.biz/p/clipcatalog/internal/ctxregistry"
	"fknsrs.biz/p/clipcatalog/internal/jobqueue"
	"fknsrs.biz/p/clipcatalog/internal/queuenames"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
	"fknsrs.biz/p/clipcatalog/models"
)

var testRegistry = catalog.NewArtistRegistry(
	catalog.Artist{ID: "tester", En: "Tester"},
	catalog.Artist{ID: "guest", En: "Guest Singer"},
	catalog.Artist{ID: "absent", En: "Absent"},
)

func testVideo(t testing.TB, id catalog.VideoID, publishedAt time.Time, clips ...catalog.ClipInput) *catalog.Video {
	t.Helper()

	attrs, err := catalog.Attributes{
		VideoID:       id,
		Title:         "Stream " + string(id),
		ChannelID:     "UC1111111111111111111111",
		PublishedAt:   publishedAt,
		SyncedAt:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Duration:      timeutil.MustFromSeconds(600),
		PrivacyStatus: catalog.PrivacyPublic,
		Embeddable:    true,
	}.Normalize()
	require.NoError(t, err)

	var drafts []catalog.DraftClip
	for _, in := range clips {
		d, err := catalog.NewDraftClip(testRegistry, in)
		require.NoError(t, err)
		drafts = append(drafts, d)
	}

	v, err := catalog.NewVideo(attrs, catalog.LocalInfo{VideoID: id}, drafts)
	require.NoError(t, err)

	return v
}

func testContext(t testing.TB) context.Context {
	t.Helper()

	db, err := catalogdb.Open(context.Background(), filepath.Join(t.TempDir(), "mirror.db"), config.LogQueries{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := ctxdb.WithDB(context.Background(), db)
	ctx = ctxregistry.WithRegistry(ctx, testRegistry)
	ctx = ctxjobqueue.WithWorker(ctx, jobqueue.NewWorker(map[string]jobqueue.WorkerFunction{
		queuenames.LibrarySync: func(ctx context.Context, w *jobqueue.Worker, j *jobqueue.Job) (string, error) {
			return "", nil
		},
	}))

	lib := catalog.NewLibrary()
	lib.Insert(testVideo(t, "aaaaaaaaaaa", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		catalog.ClipInput{SongTitle: "Opening", Artists: []string{"tester"}, Start: timeutil.MustFromSeconds(5), End: timeutil.MustFromSeconds(60)},
		catalog.ClipInput{SongTitle: "Duet", Artists: []string{"tester", "guest"}, Start: timeutil.MustFromSeconds(60), End: timeutil.MustFromSeconds(120)},
	))
	lib.Insert(testVideo(t, "bbbbbbbbbbb", time.Date(2024, 4, 10, 8, 0, 0, 0, time.UTC),
		catalog.ClipInput{SongTitle: "Encore", Artists: []string{"guest"}, IsClipped: true, Start: timeutil.MustFromSeconds(60), End: timeutil.MustFromSeconds(90)},
	))

	require.NoError(t, catalogdb.Replace(ctx, lib))

	return ctx
}

func do(t testing.TB, ctx context.Context, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	rw := httptest.NewRecorder()
	NewRouter().ServeHTTP(rw, r.WithContext(ctx))

	return rw
}

func get(t testing.TB, ctx context.Context, path string) *httptest.ResponseRecorder {
	t.Helper()

	return do(t, ctx, httptest.NewRequest(http.MethodGet, path, nil))
}

func decode(t testing.TB, rw *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	require.Equal(t, "application/json; charset=utf-8", rw.Header().Get("content-type"))
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), v))
}

type videoList struct {
	Skip  int                  `json:"skip"`
	Count int                  `json:"count"`
	Items []models.VideoRecord `json:"items"`
}

var videosTests = []struct {
	name  string
	query string
	ids   []string
}{
	{"default order", "", []string{"bbbbbbbbbbb", "aaaaaaaaaaa"}},
	{"order by", "$orderby=publishedAt asc", []string{"aaaaaaaaaaa", "bbbbbbbbbbb"}},
	{"filter", "$filter=videoId eq 'aaaaaaaaaaa'", []string{"aaaaaaaaaaa"}},
	{"filter no match", "$filter=clipCount gt 5", []string{}},
	{"top", "$top=1", []string{"bbbbbbbbbbb"}},
	{"skip", "$skip=1", []string{"aaaaaaaaaaa"}},
}

func TestVideos(t *testing.T) {
	ctx := testContext(t)

	for _, tc := range videosTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			rw := get(t, ctx, "/videos?"+encodeQuery(tc.query))
			require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

			var out videoList
			decode(t, rw, &out)

			ids := []string{}
			for _, v := range out.Items {
				ids = append(ids, v.VideoID)
			}

			a.Equal(tc.ids, ids)
			a.Equal(len(tc.ids), out.Count)
		})
	}
}

// encodeQuery escapes the values of a raw a=b&c=d query.
func encodeQuery(s string) string {
	if s == "" {
		return ""
	}

	v := url.Values{}
	for _, pair := range strings.Split(s, "&") {
		kv := strings.SplitN(pair, "=", 2)
		v.Set(kv[0], kv[1])
	}

	return v.Encode()
}

var badListTests = []struct {
	name  string
	path  string
	query string
}{
	{"unknown field", "/videos", "$filter=nope eq 1"},
	{"unknown order", "/clips", "$orderby=nope"},
	{"bad top", "/videos", "$top=x"},
	{"unbalanced filter", "/clips", "$filter=(videoTitle eq 'x'"},
}

func TestListBadRequest(t *testing.T) {
	ctx := testContext(t)

	for _, tc := range badListTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			rw := get(t, ctx, tc.path+"?"+encodeQuery(tc.query))
			a.Equal(http.StatusBadRequest, rw.Code)

			var out map[string]string
			decode(t, rw, &out)
			a.NotEmpty(out["error"])
		})
	}
}

func TestVideo(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	rw := get(t, ctx, "/videos/aaaaaaaaaaa")
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	var out struct {
		models.VideoRecord
		Clips []models.ClipRecord `json:"clips"`
	}
	decode(t, rw, &out)

	a.Equal("Stream aaaaaaaaaaa", out.Title)
	a.Equal(2, out.ClipCount)
	if a.Len(out.Clips, 2) {
		a.Equal("Opening", out.Clips[0].SongTitle)
		a.Equal("Duet", out.Clips[1].SongTitle)
	}

	a.Equal(http.StatusNotFound, get(t, ctx, "/videos/ccccccccccc").Code)
	a.Equal(http.StatusBadRequest, get(t, ctx, "/videos/short").Code)
}

func TestClips(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	rw := get(t, ctx, "/clips?"+encodeQuery("$filter=clipSongTitle eq 'Duet'"))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	var out struct {
		Items []models.ClipSearch `json:"items"`
	}
	decode(t, rw, &out)

	require.Len(t, out.Items, 1)
	a.Equal("aaaaaaaaaaa", out.Items[0].VideoID)
	a.Equal([]string{"guest", "tester"}, []string(out.Items[0].ClipArtists))

	rw = get(t, ctx, "/clips?"+encodeQuery("$filter=contains(videoTitle, 'bbb')"))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	decode(t, rw, &out)
	if a.Len(out.Items, 1) {
		a.Equal("Encore", out.Items[0].ClipSongTitle)
	}

	rw = get(t, ctx, "/clips?"+encodeQuery("$filter=startswith(clipSongTitle, 'Op') or endswith(clipSongTitle, 'core')&$orderby=clipSongTitle asc"))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	decode(t, rw, &out)
	if a.Len(out.Items, 2) {
		a.Equal("Encore", out.Items[0].ClipSongTitle)
		a.Equal("Opening", out.Items[1].ClipSongTitle)
	}
}

func TestClip(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	var uuid string
	require.NoError(t, ctxdb.GetDB(ctx).QueryRowContext(ctx, "select uuid from clips where song_title = ?", "Encore").Scan(&uuid))

	rw := get(t, ctx, "/clips/"+strings.ToUpper(uuid))
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	var out models.ClipSearch
	decode(t, rw, &out)
	a.Equal(uuid, out.ClipUUID)
	a.Equal("bbbbbbbbbbb", out.VideoID)

	a.Equal(http.StatusNotFound, get(t, ctx, "/clips/00000000-0000-7000-8000-000000000000").Code)
	a.Equal(http.StatusBadRequest, get(t, ctx, "/clips/nope").Code)
}

func TestArtists(t *testing.T) {
	a := assert.New(t)

	ctx := testContext(t)

	rw := get(t, ctx, "/artists")
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())

	var out []struct {
		ID     string `json:"id"`
		En     string `json:"en"`
		Videos int    `json:"videos"`
		Clips  int    `json:"clips"`
	}
	decode(t, rw, &out)

	if a.Len(out, 3) {
		a.Equal("absent", out[0].ID)
		a.Equal(0, out[0].Clips)
		a.Equal("guest", out[1].ID)
		a.Equal("Guest Singer", out[1].En)
		a.Equal(2, out[1].Clips)
		a.Equal(2, out[1].Videos)
		a.Equal("tester", out[2].ID)
		a.Equal(2, out[2].Clips)
		a.Equal(1, out[2].Videos)
	}
}

var syncTests = []struct {
	name    string
	form    url.Values
	status  int
	payload string
}{
	{"all", url.Values{}, http.StatusAccepted, "all"},
	{"partitions", url.Values{"partitions": {"2024/03, 2024-04"}}, http.StatusAccepted, "2024-03,2024-04"},
	{"skip mirror", url.Values{"partitions": {"all"}, "skip_mirror": {"true"}}, http.StatusAccepted, "all?mirror=false"},
	{"bad partition", url.Values{"partitions": {"2024-13"}}, http.StatusBadRequest, ""},
}

func TestSync(t *testing.T) {
	for _, tc := range syncTests {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			ctx := testContext(t)

			r := httptest.NewRequest(http.MethodPost, "/sync", strings.NewReader(tc.form.Encode()))
			r.Header.Set("content-type", "application/x-www-form-urlencoded")

			rw := do(t, ctx, r)
			require.Equal(t, tc.status, rw.Code, rw.Body.String())

			if tc.status != http.StatusAccepted {
				return
			}

			var job jobqueue.Job
			decode(t, rw, &job)
			a.NotZero(job.ID)
			a.Equal(queuenames.LibrarySync, job.QueueName)
			a.Equal(tc.payload, job.Payload)

			rw = get(t, ctx, "/jobs?pending=1")
			require.Equal(t, http.StatusOK, rw.Code)

			var jobs []jobqueue.Job
			decode(t, rw, &jobs)
			if a.Len(jobs, 1) {
				a.Equal(job.ID, jobs[0].ID)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	a := assert.New(t)

	rw := get(t, testContext(t), "/nope")
	a.Equal(http.StatusNotFound, rw.Code)
	a.JSONEq(`{"error": "not found"}`, rw.Body.String())
}
