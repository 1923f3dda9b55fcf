package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// TokenCache holds one bearer token and the instant it stops being usable.
// The lock only protects the fields; callers racing on an expired token may
// both run an exchange, and the last one to finish wins.
type TokenCache struct {
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// Get returns the cached token when now is before its expiry.
func (tc *TokenCache) Get(now time.Time) (string, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	if tc.token == "" || !now.Before(tc.expiry) {
		return "", false
	}
	return tc.token, true
}

// Set replaces the cached token.
func (tc *TokenCache) Set(token string, expiry time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.token = token
	tc.expiry = expiry
}

// Expiry returns the expiry of the cached token, zero when empty.
func (tc *TokenCache) Expiry() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.expiry
}

// AccessToken returns a bearer token, exchanging the client credentials for
// a new one when the cached token is missing or expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Get(c.now()); ok {
		return token, nil
	}

	// clientcredentials picks the HTTP client up from the context.
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.credentials.Token(exchangeCtx)
	c.metrics.ObserveTokenExchange(err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	c.tokens.Set(tok.AccessToken, c.now().Add(tokenTTL(tok)))
	c.logger.Debug().Time("expiry", c.tokens.Expiry()).Msg("catalog token refreshed")
	return tok.AccessToken, nil
}

// tokenTTL prefers the raw expires_in from the response; oauth2 only keeps
// it alongside the wall-clock Expiry it derives from it.
func tokenTTL(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		if ttl := time.Until(tok.Expiry); ttl > 0 {
			return ttl
		}
	}
	return 0
}
