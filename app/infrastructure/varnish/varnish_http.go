package varnish

import (
	"context"
	"fmt"
	"time"

	"resty.dev/v3"

	"github.com/maplane/tile-gateway/config/environment_variables"
)

// CacheBackend issues surrogate-key purges against a front-line cache.
type CacheBackend interface {
	Invalidate(ctx context.Context, key string) error
}

// HTTPBackend purges a Varnish instance over its HTTP port using a PURGE
// request matching the Surrogate-Key response header.
type HTTPBackend struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPBackend() *HTTPBackend {
	baseURL := environment_variables.EnvironmentVariables.VARNISH_URL
	if baseURL == "" {
		baseURL = "http://localhost:6081"
	}
	return &HTTPBackend{
		client:  resty.New().SetTimeout(5 * time.Second),
		baseURL: baseURL,
	}
}

func (b *HTTPBackend) Invalidate(ctx context.Context, key string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Invalidation-Match", fmt.Sprintf(`obj.http.Surrogate-Key ~ \b%s\b`, key)).
		Execute("PURGE", b.baseURL+"/key")
	if err != nil {
		return fmt.Errorf("varnish purge failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("varnish purge returned status %d", resp.StatusCode())
	}
	return nil
}
