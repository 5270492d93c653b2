package ctxhttpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fknsrs.biz/p/clipcatalog/internal/httpcache"
)

// context registration

var httpClientKey int

func WithHTTPClient(ctx context.Context, httpClient *http.Client) context.Context {
	return context.WithValue(ctx, &httpClientKey, httpClient)
}

func GetHTTPClient(ctx context.Context) *http.Client {
	if v := ctx.Value(&httpClientKey); v != nil {
		return v.(*http.Client)
	}

	return http.DefaultClient
}

// main interface

// NewCaching builds a client whose GET responses are kept in a bbolt file at
// cachePath for maxAge. An empty cachePath disables caching and returns the
// default client. The returned function closes the cache file.
func NewCaching(cachePath string, maxAge time.Duration, now func() time.Time) (*http.Client, func() error, error) {
	if cachePath == "" {
		return http.DefaultClient, func() error { return nil }, nil
	}

	storage, err := httpcache.Open(cachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("ctxhttpclient.NewCaching: %w", err)
	}

	var options []httpcache.Option
	if now != nil {
		options = append(options, httpcache.WithClock(now))
	}

	return &http.Client{
		Transport: httpcache.NewTransport(nil, storage, maxAge, options...),
		Timeout:   time.Second * 30,
	}, storage.Close, nil
}
