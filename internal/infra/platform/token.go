package platform

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fableworks/coinledger/internal/infra/observability"
)

// DefaultRefreshSkew refreshes a token this long before it expires.
const DefaultRefreshSkew = 5 * time.Minute

// Token is an access token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenSource fetches a fresh access token.
type TokenSource func(ctx context.Context) (Token, error)

// TokenCache holds one access token and refreshes it on demand. Concurrent
// callers that find the token stale share a single in-flight fetch.
type TokenCache struct {
	fetch TokenSource
	skew  time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	token Token
	group singleflight.Group
}

// NewTokenCache creates a cache around fetch.
func NewTokenCache(fetch TokenSource, skew time.Duration) *TokenCache {
	return &TokenCache{fetch: fetch, skew: skew, now: time.Now}
}

// Get returns a valid token, fetching one if the cached token is missing or
// within skew of expiry.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	if v, ok := c.cached(); ok {
		return v, nil
	}

	v, err, _ := c.group.Do("token", func() (any, error) {
		if v, ok := c.cached(); ok {
			return v, nil
		}
		// A caller that gives up must not fail the others waiting on this fetch.
		tok, err := c.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		observability.TokenRefreshes.Inc()
		c.mu.Lock()
		c.token = tok
		c.mu.Unlock()
		return tok.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token, e.g. after the platform rejects it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = Token{}
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token.Value == "" || !c.now().Add(c.skew).Before(c.token.ExpiresAt) {
		return "", false
	}
	return c.token.Value, true
}
