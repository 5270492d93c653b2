package ctxconfig

import (
	"context"
	"net/http"

	"fknsrs.biz/p/clipcatalog/internal/config"
)

// context registration

var configKey int

func WithConfig(ctx context.Context, c config.Config) context.Context {
	return context.WithValue(ctx, &configKey, c)
}

// GetConfig returns the configuration stored in ctx, or the zero Config.
func GetConfig(ctx context.Context) config.Config {
	if v := ctx.Value(&configKey); v != nil {
		return v.(config.Config)
	}

	return config.Config{}
}

// middleware

func Register(c config.Config) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithConfig(r.Context(), c)))
	}
}

// main interface

// ListMaxTop is the cap on $top for listing endpoints, falling back to def
// when the configuration leaves it unset.
func ListMaxTop(ctx context.Context, def int) int {
	if n := GetConfig(ctx).ListMaxTop; n > 0 {
		return n
	}

	return def
}
