package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"venueboard/internal/logging"
)

const (
	defaultAPIURL   = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"
)

// Client implements catalog lookups against the Spotify Web API.
type Client struct {
	credentials *clientcredentials.Config
	apiURL      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	now         func() time.Time
	tokens      *TokenCache
	metrics     Recorder
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs points the client at a different API and token endpoint.
func WithBaseURLs(apiURL, tokenURL string) Option {
	return func(c *Client) {
		if apiURL != "" {
			c.apiURL = strings.TrimRight(apiURL, "/")
		}
		if tokenURL != "" {
			c.credentials.TokenURL = tokenURL
		}
	}
}

// WithClock sets the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithTokenCache shares a token cache between clients.
func WithTokenCache(cache *TokenCache) Option {
	return func(c *Client) { c.tokens = cache }
}

// WithLimiter throttles outbound API calls. A nil limiter disables throttling.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithMetrics records call counts and latencies.
func WithMetrics(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithLogger sets the logger used for absorbed failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a catalog client for the given app credentials.
func New(clientID, clientSecret string, opts ...Option) *Client {
	c := &Client{
		credentials: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     defaultTokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		apiURL: defaultAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now:     time.Now,
		tokens:  &TokenCache{},
		metrics: nopRecorder{},
		logger:  logging.Component("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs an authenticated GET against the catalog API and decodes the
// JSON body into result.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, result any) (err error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	start := time.Now()
	defer func() {
		c.metrics.ObserveCatalogCall(metricEndpoint(endpoint), err, time.Since(start))
	}()

	apiURL := c.apiURL + "/" + endpoint
	if len(params) > 0 {
		apiURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: %s - %s", ErrAPI, resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// metricEndpoint keeps label cardinality bounded: "artists/<id>" -> "artists".
func metricEndpoint(endpoint string) string {
	head, _, _ := strings.Cut(endpoint, "/")
	return head
}
