package ctxregistry

import (
	"context"
	"net/http"

	"fknsrs.biz/p/clipcatalog/internal/catalog"
)

// context registration

var registryKey int

func WithRegistry(ctx context.Context, r *catalog.ArtistRegistry) context.Context {
	return context.WithValue(ctx, &registryKey, r)
}

// GetRegistry returns the artist registry from ctx, or an empty one.
func GetRegistry(ctx context.Context) *catalog.ArtistRegistry {
	if v := ctx.Value(&registryKey); v != nil {
		return v.(*catalog.ArtistRegistry)
	}

	return catalog.NewArtistRegistry()
}

// middleware

func Register(r *catalog.ArtistRegistry) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
		next(rw, req.WithContext(WithRegistry(req.Context(), r)))
	}
}
