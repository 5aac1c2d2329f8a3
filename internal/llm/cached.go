package llm

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/agac/browser-action-core/internal/cache"
)

// cachedClient decorates a Client with the content-addressed cache:
// identical (System, Messages, Tools, Temperature) requests within the
// cache's lifetime skip the network round trip entirely. Exists
// because observe/act re-issue near-identical prompts across
// self-healing retries on a page whose accessibility outline hasn't
// changed.
type cachedClient struct {
	inner Client
	store *cache.Cache
	log   zerolog.Logger
}

// NewCached wraps inner with store. A cache miss or a corrupt cached
// entry both fall through to inner.Generate transparently.
func NewCached(inner Client, store *cache.Cache, log zerolog.Logger) Client {
	return &cachedClient{inner: inner, store: store, log: log.With().Str("component", "llm_cache").Logger()}
}

func (c *cachedClient) Generate(ctx context.Context, req Request) (Response, error) {
	key, err := cacheKeyForRequest(req)
	if err != nil {
		return c.inner.Generate(ctx, req)
	}
	if cached, ok := c.store.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(cached, &resp); err == nil {
			c.log.Debug().Str("key", key).Msg("LLM cache hit")
			return resp, nil
		}
	}

	resp, err := c.inner.Generate(ctx, req)
	if err != nil {
		return resp, err
	}
	if encoded, mErr := json.Marshal(resp); mErr == nil {
		if pErr := c.store.Put(key, encoded); pErr != nil {
			c.log.Debug().Err(pErr).Msg("LLM cache write failed, continuing uncached")
		}
	}
	return resp, nil
}

func (c *cachedClient) Name() string { return c.inner.Name() }

func cacheKeyForRequest(req Request) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return cache.Key(b), nil
}
