package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

const DefaultBaseURL = "https://www.youtube.com"

// Scraper reads video attributes from public watch pages. It needs no
// credentials but makes one request per video.
type Scraper struct {
	baseURL string
	retrier retrier
}

type ScraperOption func(s *Scraper)

func WithBaseURL(u string) ScraperOption {
	return func(s *Scraper) { s.baseURL = strings.TrimSuffix(u, "/") }
}

func WithScrapeInterval(d time.Duration) ScraperOption {
	return func(s *Scraper) { s.retrier.limiter = newLimiter(d) }
}

func WithScrapeRetries(n int) ScraperOption {
	return func(s *Scraper) { s.retrier.retries = n }
}

func WithScrapeBackoff(d time.Duration) ScraperOption {
	return func(s *Scraper) { s.retrier.backoff = d }
}

func NewScraper(options ...ScraperOption) *Scraper {
	s := &Scraper{
		baseURL: DefaultBaseURL,
		retrier: retrier{
			limiter: newLimiter(time.Second),
			retries: 3,
			backoff: time.Second,
		},
	}

	for _, fn := range options {
		fn(s)
	}

	return s
}

func (s *Scraper) Fetch(ctx context.Context, ids []catalog.VideoID) (Result, error) {
	l := ctxlogger.GetLogger(ctx)

	syncedAt, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube.Scraper.Fetch: %w", err)
	}

	ids = dedupe(ids)

	res := make(Result, len(ids))

	var errs []error
	for _, id := range ids {
		l.WithField("video.id", id).Debug("youtube: scraping watch page")

		a, err := s.fetchOne(ctx, id, syncedAt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("youtube.Scraper.Fetch: %w", ctx.Err())
			}

			errs = append(errs, &catalog.VideoError{VideoID: id, Err: err})
		}

		res[id] = a
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("youtube.Scraper.Fetch: %w", errors.Join(errs...))
	}

	return res, nil
}

const playerResponsePrefix = "var ytInitialPlayerResponse ="

func (s *Scraper) fetchOne(ctx context.Context, id catalog.VideoID, syncedAt time.Time) (*catalog.Attributes, error) {
	b, err := s.retrier.get(ctx, s.baseURL+"/watch?v="+string(id))
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}

		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	for _, node := range doc.Find("script").Nodes {
		if node.FirstChild == nil || node.FirstChild.Type != html.TextNode {
			continue
		}

		js := strings.TrimSpace(node.FirstChild.Data)
		if !strings.HasPrefix(js, playerResponsePrefix) {
			continue
		}

		js = strings.TrimPrefix(js, playerResponsePrefix)
		js = strings.TrimSuffix(js, ";")

		j, err := gabs.ParseJSON([]byte(js))
		if err != nil {
			return nil, fmt.Errorf("could not parse player response: %w", err)
		}

		return parsePlayerResponse(j, id, syncedAt)
	}

	return nil, fmt.Errorf("could not find player response in page")
}

const (
	playabilityPath   = "playabilityStatus.status"
	embedPath         = "playabilityStatus.playableInEmbed"
	detailsIDPath     = "videoDetails.videoId"
	detailsTitlePath  = "videoDetails.title"
	detailsChanPath   = "videoDetails.channelId"
	detailsLengthPath = "videoDetails.lengthSeconds"
	detailsPrivate    = "videoDetails.isPrivate"
	microPublishPath  = "microformat.playerMicroformatRenderer.publishDate"
	microUnlisted     = "microformat.playerMicroformatRenderer.isUnlisted"
)

func parsePlayerResponse(j *gabs.Container, id catalog.VideoID, syncedAt time.Time) (*catalog.Attributes, error) {
	if status, _ := j.Path(playabilityPath).Data().(string); status == "ERROR" || !j.ExistsP(detailsIDPath) {
		return nil, nil
	}

	var errs []error

	str := func(path string) string {
		s, err := stringAt(j, path)
		if err != nil {
			errs = append(errs, err)
		}
		return s
	}

	gotID := str(detailsIDPath)
	title := str(detailsTitlePath)
	channelID := str(detailsChanPath)
	length := str(detailsLengthPath)
	published := str(microPublishPath)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if catalog.VideoID(gotID) != id {
		return nil, &catalog.VideoIDMismatchError{Expected: id, Actual: catalog.VideoID(gotID)}
	}

	secs, err := strconv.ParseInt(length, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("could not parse length %q: %w", length, err)
	}

	d, err := timeutil.FromSeconds(secs)
	if err != nil {
		return nil, err
	}

	publishedAt, err := parsePublishDate(published)
	if err != nil {
		return nil, err
	}

	privacy := catalog.PrivacyPublic
	if v, _ := j.Path(microUnlisted).Data().(bool); v {
		privacy = catalog.PrivacyUnlisted
	}
	if v, _ := j.Path(detailsPrivate).Data().(bool); v {
		privacy = catalog.PrivacyPrivate
	}

	embeddable, _ := j.Path(embedPath).Data().(bool)

	a, err := catalog.Attributes{
		VideoID:       id,
		Title:         title,
		ChannelID:     catalog.ChannelID(channelID),
		PublishedAt:   publishedAt,
		SyncedAt:      syncedAt,
		Duration:      d,
		PrivacyStatus: privacy,
		Embeddable:    embeddable,
	}.Normalize()
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// Watch pages carry either a full timestamp or, on older pages, only a date.
func parsePublishDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("could not parse publish date %q", s)
	}

	return t, nil
}
