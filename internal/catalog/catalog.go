// Package catalog talks to the Spotify Web API with app-level (client
// credentials) tokens: track search, query-based recommendations and
// recommendations seeded from a track the venue is already playing.
package catalog

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrTokenExchange wraps failures of the client-credentials exchange.
	ErrTokenExchange = errors.New("catalog token exchange failed")
	// ErrAPI wraps non-2xx responses from the catalog API.
	ErrAPI = errors.New("catalog api error")
)

const (
	searchLimit = 10

	// DefaultRecommendationQuery is used when Recommend is called without a query.
	DefaultRecommendationQuery = "tag:new genre:pop"
)

// Track is a catalog search result as shown to patrons and staff.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	ArtistID   string `json:"artistId,omitempty"`
	AlbumArt   string `json:"albumArt"`
	SpotifyURL string `json:"spotifyUrl"`
}

// Artist is the subset of an artist record used for genre discovery.
type Artist struct {
	ID     string
	Name   string
	Genres []string
}

// Reason explains how a lookup ended.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonEmptyQuery    Reason = "empty_query"
	ReasonManualEntry   Reason = "manual_entry"
	ReasonTokenExchange Reason = "token_exchange"
	ReasonRequestFailed Reason = "request_failed"
)

// Result is the outcome of a catalog lookup. Err is set only for the
// token_exchange and request_failed reasons.
type Result struct {
	Tracks []Track
	Reason Reason
	Err    error
}

// List collapses the result to the slice handed to callers that treat
// "no results" and "lookup failed" the same way. It never returns nil.
func (r Result) List() []Track {
	if r.Tracks == nil {
		return []Track{}
	}
	return r.Tracks
}

// OK reports whether the lookup reached the catalog and succeeded.
func (r Result) OK() bool {
	return r.Reason == ReasonOK
}

func failed(err error) Result {
	reason := ReasonRequestFailed
	if errors.Is(err, ErrTokenExchange) {
		reason = ReasonTokenExchange
	}
	return Result{Reason: reason, Err: err}
}

// isManualID reports whether id belongs to an entry typed in by hand ("m...")
// or restored from history ("h...") rather than a real catalog id.
func isManualID(id string) bool {
	return strings.HasPrefix(id, "m") || strings.HasPrefix(id, "h")
}

// primaryArtist returns the first name of a comma joined artist string.
func primaryArtist(artist string) string {
	first, _, _ := strings.Cut(artist, ",")
	return strings.TrimSpace(first)
}

// Recorder receives per-call measurements. The metrics package satisfies it.
type Recorder interface {
	ObserveCatalogCall(endpoint string, err error, d time.Duration)
	ObserveTokenExchange(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCatalogCall(string, error, time.Duration) {}
func (nopRecorder) ObserveTokenExchange(error)                      {}
