package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxclock"
	"fknsrs.biz/p/clipcatalog/internal/ctxlogger"
)

const (
	DefaultEndpoint = "https://www.googleapis.com/youtube/v3/videos"
	BatchSize       = 50
)

// APIClient reads video attributes from the YouTube Data API v3.
type APIClient struct {
	key      config.Secret
	endpoint string
	retrier  retrier
}

type APIOption func(c *APIClient)

func WithEndpoint(endpoint string) APIOption {
	return func(c *APIClient) { c.endpoint = endpoint }
}

// WithInterval sets the minimum time between two requests.
func WithInterval(d time.Duration) APIOption {
	return func(c *APIClient) { c.retrier.limiter = newLimiter(d) }
}

func WithRetries(n int) APIOption {
	return func(c *APIClient) { c.retrier.retries = n }
}

func WithBackoff(d time.Duration) APIOption {
	return func(c *APIClient) { c.retrier.backoff = d }
}

func NewAPIClient(key config.Secret, options ...APIOption) *APIClient {
	c := &APIClient{
		key:      key,
		endpoint: DefaultEndpoint,
		retrier: retrier{
			limiter: newLimiter(0),
			retries: 3,
			backoff: time.Second,
		},
	}

	for _, fn := range options {
		fn(c)
	}

	return c
}

func (c *APIClient) batchURL(ids []catalog.VideoID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}

	q := url.Values{}
	q.Set("part", "snippet,contentDetails,status")
	q.Set("id", strings.Join(s, ","))
	q.Set("maxResults", fmt.Sprint(BatchSize))
	q.Set("key", c.key.Value())

	return c.endpoint + "?" + q.Encode()
}

// Fetch looks up ids in batches of BatchSize. Videos that the API returns
// but that cannot be turned into valid attributes are reported together in
// the returned error; the rest of the result is still usable.
func (c *APIClient) Fetch(ctx context.Context, ids []catalog.VideoID) (Result, error) {
	l := ctxlogger.GetLogger(ctx)

	syncedAt, err := ctxclock.NowOrReal(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube.APIClient.Fetch: %w", err)
	}

	ids = dedupe(ids)

	res := make(Result, len(ids))
	for _, id := range ids {
		res[id] = nil
	}

	var errs []error
	for i := 0; i < len(ids); i += BatchSize {
		batch := ids[i:min(i+BatchSize, len(ids))]

		l.WithField("sync.batch", i/BatchSize).WithField("sync.batch_size", len(batch)).Debug("youtube: fetching batch")

		b, err := c.retrier.get(ctx, c.batchURL(batch))
		if err != nil {
			return nil, fmt.Errorf("youtube.APIClient.Fetch: batch %d: %w", i/BatchSize, err)
		}

		attrs, err := parseVideoList(b, syncedAt)
		if err != nil {
			errs = append(errs, err)
		}

		for _, a := range attrs {
			if _, ok := res[a.VideoID]; ok {
				res[a.VideoID] = a
			}
		}
	}

	if len(errs) > 0 {
		return res, fmt.Errorf("youtube.APIClient.Fetch: %w", errors.Join(errs...))
	}

	return res, nil
}

const (
	itemsPath         = "items"
	itemIDPath        = "id"
	itemTitlePath     = "snippet.title"
	itemChannelPath   = "snippet.channelId"
	itemPublishedPath = "snippet.publishedAt"
	itemDurationPath  = "contentDetails.duration"
	itemPrivacyPath   = "status.privacyStatus"
	itemEmbeddedPath  = "status.embeddable"
)

func stringAt(j *gabs.Container, path string) (string, error) {
	s, ok := j.Path(path).Data().(string)
	if !ok {
		return "", fmt.Errorf("missing or non-string %s", path)
	}

	return s, nil
}

func parseVideoList(b []byte, syncedAt time.Time) ([]*catalog.Attributes, error) {
	j, err := gabs.ParseJSON(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse response: %w", err)
	}

	var (
		out  []*catalog.Attributes
		errs []error
	)

	for _, item := range j.Path(itemsPath).Children() {
		id, err := stringAt(item, itemIDPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		a, err := parseItem(item, syncedAt)
		if err != nil {
			errs = append(errs, &catalog.VideoError{VideoID: catalog.VideoID(id), Err: err})
			continue
		}

		out = append(out, a)
	}

	return out, errors.Join(errs...)
}

func parseItem(item *gabs.Container, syncedAt time.Time) (*catalog.Attributes, error) {
	var errs []error

	str := func(path string) string {
		s, err := stringAt(item, path)
		if err != nil {
			errs = append(errs, err)
		}
		return s
	}

	id := str(itemIDPath)
	title := str(itemTitlePath)
	channelID := str(itemChannelPath)
	published := str(itemPublishedPath)
	duration := str(itemDurationPath)
	privacy := str(itemPrivacyPath)

	embeddable, ok := item.Path(itemEmbeddedPath).Data().(bool)
	if !ok {
		errs = append(errs, fmt.Errorf("missing or non-boolean %s", itemEmbeddedPath))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	publishedAt, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return nil, fmt.Errorf("could not parse publish time: %w", err)
	}

	d, err := videoDuration(duration)
	if err != nil {
		return nil, fmt.Errorf("could not use duration %q: %w", duration, err)
	}

	a, err := catalog.Attributes{
		VideoID:       catalog.VideoID(id),
		Title:         title,
		ChannelID:     catalog.ChannelID(channelID),
		PublishedAt:   publishedAt,
		SyncedAt:      syncedAt,
		Duration:      d,
		PrivacyStatus: catalog.PrivacyStatus(privacy),
		Embeddable:    embeddable,
	}.Normalize()
	if err != nil {
		return nil, err
	}

	return &a, nil
}
