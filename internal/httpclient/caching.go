package httpclient

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// NewCachingClient creates an HTTP client that honours Cache-Control
// response headers. Used for JWKS fetches so background key refreshes
// don't refetch unchanged key material.
//
// With a cache directory the cache persists across restarts, which avoids
// a JWKS round trip on every boot. An empty directory selects an in-memory
// cache.
func NewCachingClient(cacheDir string) *http.Client {
	if cacheDir == "" {
		return &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
		}
	}

	return &http.Client{
		Transport: httpcache.NewTransport(diskcache.New(cacheDir)),
	}
}
