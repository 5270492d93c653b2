// Package youtube fetches authoritative video attributes, either from the
// YouTube Data API or, without an API key, from public watch pages.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
	"fknsrs.biz/p/clipcatalog/internal/config"
	"fknsrs.biz/p/clipcatalog/internal/ctxhttpclient"
	"fknsrs.biz/p/clipcatalog/internal/timeutil"
)

var (
	ErrForbidden = errors.New("youtube: request was forbidden; check the api key and its quota")
	ErrStatus    = errors.New("youtube: unexpected status code")
)

// Result maps every requested id to its attributes. A nil entry means the
// provider has no such video.
type Result map[catalog.VideoID]*catalog.Attributes

// Missing lists the requested ids the provider did not know about.
func (r Result) Missing() []catalog.VideoID {
	var ids []catalog.VideoID
	for id, a := range r {
		if a == nil {
			ids = append(ids, id)
		}
	}

	sortIDs(ids)

	return ids
}

type Provider interface {
	Fetch(ctx context.Context, ids []catalog.VideoID) (Result, error)
}

// New picks the API client when source is api and a key is configured, and
// the page scraper otherwise.
func New(cfg config.Config) Provider {
	if cfg.MetadataSource != config.MetadataSourceScrape && !cfg.YouTubeAPIKey.IsZero() {
		return NewAPIClient(cfg.YouTubeAPIKey, WithInterval(cfg.RequestInterval), WithRetries(cfg.RequestRetries))
	}

	return NewScraper(WithScrapeInterval(cfg.RequestInterval), WithScrapeRetries(cfg.RequestRetries))
}

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Is(target error) bool {
	if target == ErrStatus {
		return true
	}

	return target == ErrForbidden && e.StatusCode == http.StatusForbidden
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Every(interval), 1)
}

// retrier paces requests with a shared limiter and repeats failed ones with
// a linear back-off. Forbidden and not-found responses are final.
type retrier struct {
	limiter *rate.Limiter
	retries int
	backoff time.Duration
}

func (r *retrier) get(ctx context.Context, u string) ([]byte, error) {
	var err error

	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var b []byte
		b, err = getOnce(ctx, u)
		if err == nil {
			return b, nil
		}

		var se *StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusNotFound) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, err
}

func getOnce(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := ctxhttpclient.GetHTTPClient(ctx).Do(req)
	if err != nil {
		// the url carries the api key
		var ue *url.Error
		if errors.As(err, &ue) {
			return nil, fmt.Errorf("%s %s: %w", ue.Op, req.URL.Host, ue.Err)
		}

		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, &StatusError{StatusCode: res.StatusCode}
	}

	return io.ReadAll(res.Body)
}

func videoDuration(iso string) (timeutil.Duration, error) {
	d, err := timeutil.ParseISO8601(iso)
	if err != nil {
		return timeutil.Duration{}, err
	}

	return timeutil.FromStd(d)
}

func dedupe(ids []catalog.VideoID) []catalog.VideoID {
	seen := make(map[catalog.VideoID]bool, len(ids))

	out := make([]catalog.VideoID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}

func sortIDs(ids []catalog.VideoID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
