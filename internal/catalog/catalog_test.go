package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeCatalog struct {
	t *testing.T

	exchanges   atomic.Int32
	searches    atomic.Int32
	tokenStatus int
	expiresIn   int

	mu           sync.Mutex
	queries      []string
	trackItems   []spotifyTrack
	searchStatus int
	artistItems  []spotifyArtist
	genres       map[string][]string
	artistStatus int
}

func newFakeCatalog(t *testing.T) (*fakeCatalog, *httptest.Server) {
	t.Helper()
	f := &fakeCatalog{t: t, tokenStatus: http.StatusOK, expiresIn: 3600, searchStatus: http.StatusOK, artistStatus: http.StatusOK, genres: map[string][]string{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("GET /v1/search", f.handleSearch)
	mux.HandleFunc("GET /v1/artists/{id}", f.handleArtist)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeCatalog) handleToken(w http.ResponseWriter, r *http.Request) {
	n := f.exchanges.Add(1)
	id, secret, ok := r.BasicAuth()
	if !ok || id != "client-id" || secret != "client-secret" {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}
	if f.tokenStatus != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.tokenStatus)
		_, _ = w.Write([]byte(`{"error":"server_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": fmt.Sprintf("token-%d", n),
		"token_type":   "Bearer",
		"expires_in":   f.expiresIn,
	})
}

func (f *fakeCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.searches.Add(1)
	if got := r.Header.Get("Authorization"); got == "" {
		f.t.Errorf("search without bearer token")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	if q.Get("limit") == "" {
		f.t.Errorf("search without limit")
	}

	switch q.Get("type") {
	case "artist":
		if f.artistStatus != http.StatusOK {
			w.WriteHeader(f.artistStatus)
			return
		}
		writeJSON(w, spotifySearchResponse{Artists: &spotifyArtistsPage{Items: f.artistItems}})
	case "track":
		f.queries = append(f.queries, q.Get("q"))
		if f.searchStatus != http.StatusOK {
			w.WriteHeader(f.searchStatus)
			_, _ = w.Write([]byte(`{"error":{"status":500,"message":"boom"}}`))
			return
		}
		writeJSON(w, spotifySearchResponse{Tracks: &spotifyTracksPage{Items: f.trackItems}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCatalog) handleArtist(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	writeJSON(w, spotifyArtist{ID: id, Name: id, Genres: f.genres[id]})
}

func (f *fakeCatalog) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(srv *httptest.Server, clock *fakeClock) *Client {
	return New("client-id", "client-secret",
		WithBaseURLs(srv.URL+"/v1", srv.URL+"/token"),
		WithHTTPClient(srv.Client()),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()),
	)
}

func track(id, name string, artists ...string) spotifyTrack {
	st := spotifyTrack{
		ID:           id,
		Name:         name,
		Album:        &spotifySimpleAlbum{ID: "album-" + id, Images: []spotifyImage{{URL: "https://img/" + id}}},
		ExternalURLs: spotifyExternalURLs{Spotify: "https://open.spotify.com/track/" + id},
	}
	for i, a := range artists {
		st.Artists = append(st.Artists, spotifySimpleArtist{ID: fmt.Sprintf("%s-a%d", id, i), Name: a})
	}
	return st
}

func TestAccessTokenReusesCachedToken(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)}
	client := newTestClient(srv, clock)
	ctx := context.Background()

	first, err := client.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}

	clock.Advance(30 * time.Minute)
	second, err := client.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if first != second {
		t.Fatalf("expected cached token %q, got %q", first, second)
	}
	if got := fake.exchanges.Load(); got != 1 {
		t.Fatalf("expected 1 exchange, got %d", got)
	}

	clock.Advance(2 * time.Hour)
	third, err := client.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if third == first {
		t.Fatalf("expected a fresh token after expiry")
	}
	if got := fake.exchanges.Load(); got != 2 {
		t.Fatalf("expected exactly one new exchange, got %d", got)
	}
}

func TestAccessTokenPropagatesExchangeFailure(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.tokenStatus = http.StatusInternalServerError
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	_, err := client.AccessToken(context.Background())
	if !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("expected ErrTokenExchange, got %v", err)
	}

	res := client.Search(context.Background(), "anything")
	if res.Reason != ReasonTokenExchange {
		t.Fatalf("expected reason %q, got %q", ReasonTokenExchange, res.Reason)
	}
	if list := res.List(); list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestTokenCacheExpiryBoundary(t *testing.T) {
	cache := &TokenCache{}
	expiry := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, ok := cache.Get(expiry.Add(-time.Hour)); ok {
		t.Fatalf("empty cache returned a token")
	}

	cache.Set("abc", expiry)
	if tok, ok := cache.Get(expiry.Add(-time.Nanosecond)); !ok || tok != "abc" {
		t.Fatalf("expected token before expiry, got %q %v", tok, ok)
	}
	if _, ok := cache.Get(expiry); ok {
		t.Fatalf("token must not be used at its expiry instant")
	}
}

func TestSharedTokenCacheExchangesOnce(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)}
	cache := &TokenCache{}

	newClient := func() *Client {
		return New("client-id", "client-secret",
			WithBaseURLs(srv.URL+"/v1", srv.URL+"/token"),
			WithHTTPClient(srv.Client()),
			WithClock(clock.Now),
			WithTokenCache(cache),
			WithLogger(zerolog.Nop()),
		)
	}
	first, second := newClient(), newClient()

	a, err := first.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	b, err := second.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if a != b {
		t.Fatalf("clients sharing a cache got %q and %q", a, b)
	}
	if got := fake.exchanges.Load(); got != 1 {
		t.Fatalf("expected 1 exchange, got %d", got)
	}
}

func TestSearchTracksEmptyQuerySkipsNetwork(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	for _, q := range []string{"", "   "} {
		res := client.Search(context.Background(), q)
		if res.Reason != ReasonEmptyQuery {
			t.Fatalf("Search(%q) reason = %q", q, res.Reason)
		}
		if got := client.SearchTracks(context.Background(), q); len(got) != 0 || got == nil {
			t.Fatalf("SearchTracks(%q) = %#v, want empty list", q, got)
		}
	}
	if fake.exchanges.Load() != 0 || fake.searches.Load() != 0 {
		t.Fatalf("expected no network calls, got %d exchanges and %d searches", fake.exchanges.Load(), fake.searches.Load())
	}
}

func TestSearchTracksMapsResults(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	noArt := track("t2", "Bare", "Solo")
	noArt.Album = nil
	fake.trackItems = []spotifyTrack{track("t1", "Despacito", "Luis Fonsi", "Daddy Yankee"), noArt}
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	got := client.SearchTracks(context.Background(), "despacito")
	if len(got) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got))
	}

	want := Track{
		ID:         "t1",
		Title:      "Despacito",
		Artist:     "Luis Fonsi, Daddy Yankee",
		ArtistID:   "t1-a0",
		AlbumArt:   "https://img/t1",
		SpotifyURL: "https://open.spotify.com/track/t1",
	}
	if got[0] != want {
		t.Fatalf("track = %#v, want %#v", got[0], want)
	}
	if got[1].AlbumArt != "" {
		t.Fatalf("expected empty album art, got %q", got[1].AlbumArt)
	}
	if fake.lastQuery() != "despacito" {
		t.Fatalf("query = %q", fake.lastQuery())
	}
}

func TestSearchFailureCollapsesToEmptyList(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.searchStatus = http.StatusInternalServerError
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	res := client.Search(context.Background(), "anything")
	if res.Reason != ReasonRequestFailed || !errors.Is(res.Err, ErrAPI) {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := client.SearchTracks(context.Background(), "anything"); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}
}

func TestRecommendUsesDefaultQuery(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.trackItems = []spotifyTrack{track("t1", "New Hit", "Someone")}
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	got := client.Recommendations(context.Background(), "")
	if len(got) != 1 {
		t.Fatalf("expected 1 track, got %d", len(got))
	}
	if fake.lastQuery() != DefaultRecommendationQuery {
		t.Fatalf("query = %q, want %q", fake.lastQuery(), DefaultRecommendationQuery)
	}

	client.Recommendations(context.Background(), "genre:salsa")
	if fake.lastQuery() != "genre:salsa" {
		t.Fatalf("query = %q", fake.lastQuery())
	}
}

func TestRecommendForTrackManualEntryGuard(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	tests := []struct {
		name  string
		track *Track
	}{
		{name: "nil track", track: nil},
		{name: "missing id", track: &Track{Title: "Song"}},
		{name: "manual entry", track: &Track{ID: "m123", Title: "Song", Artist: "Artist"}},
		{name: "history entry", track: &Track{ID: "h123", Title: "Song", Artist: "Artist"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := client.RecommendForTrack(context.Background(), tt.track)
			if res.Reason != ReasonManualEntry {
				t.Fatalf("reason = %q", res.Reason)
			}
			got, err := client.RecommendationsByTrack(context.Background(), tt.track)
			if err != nil {
				t.Fatalf("RecommendationsByTrack() error = %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty list, got %d", len(got))
			}
		})
	}

	if fake.exchanges.Load() != 0 || fake.searches.Load() != 0 {
		t.Fatalf("guarded lookups must not touch the network")
	}
}

func TestRecommendForTrackUsesGenreAndFilters(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.artistItems = []spotifyArtist{{ID: "artist-a", Name: "Artist A"}}
	fake.genres["artist-a"] = []string{"Reggaetón Colombiano!"}
	fake.trackItems = []spotifyTrack{
		track("r1", "Song X (Remix)", "Other"),
		track("r2", "Different", "artist a", "Guest"),
		track("r3", "Keeper", "Someone Else"),
		track("r4", "Another Keeper", "Band"),
	}
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	seed := &Track{ID: "4uLU6hMCjMI75M1A2tKUQC", Title: "Song X", Artist: "Artist A, Featured"}
	res := client.RecommendForTrack(context.Background(), seed)
	if !res.OK() {
		t.Fatalf("unexpected result %+v", res)
	}

	if fake.lastQuery() != "reggaeton colombiano" {
		t.Fatalf("seed query = %q", fake.lastQuery())
	}
	if len(res.Tracks) != 2 || res.Tracks[0].ID != "r3" || res.Tracks[1].ID != "r4" {
		t.Fatalf("unexpected tracks %#v", res.Tracks)
	}
}

func TestRecommendForTrackFallsBackToUnfiltered(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.artistItems = []spotifyArtist{{ID: "artist-a", Name: "Artist A"}}
	for i := 0; i < 12; i++ {
		fake.trackItems = append(fake.trackItems, track(fmt.Sprintf("r%d", i), "Song X live", "Artist A"))
	}
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	seed := &Track{ID: "abc", Title: "Song X", Artist: "Artist A"}
	got, err := client.RecommendationsByTrack(context.Background(), seed)
	if err != nil {
		t.Fatalf("RecommendationsByTrack() error = %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("expected unfiltered top 10, got %d", len(got))
	}
	if got[0].ID != "r0" {
		t.Fatalf("expected original order, got %q first", got[0].ID)
	}
	// artist has no genres, so the artist name is the seed
	if fake.lastQuery() != "artist a" {
		t.Fatalf("seed query = %q", fake.lastQuery())
	}
}

func TestRecommendForTrackGenreLookupFailureFallsBackToArtist(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.artistStatus = http.StatusBadGateway
	fake.trackItems = []spotifyTrack{track("r1", "Other", "Other")}
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	seed := &Track{ID: "abc", Title: "Canción", Artist: "Beyoncé"}
	res := client.RecommendForTrack(context.Background(), seed)
	if !res.OK() {
		t.Fatalf("genre failure must not fail the lookup: %+v", res)
	}
	if fake.lastQuery() != "beyonce" {
		t.Fatalf("seed query = %q", fake.lastQuery())
	}
}

func TestRecommendForTrackSearchFailure(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.searchStatus = http.StatusInternalServerError
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	res := client.RecommendForTrack(context.Background(), &Track{ID: "abc", Title: "T", Artist: "A"})
	if res.Reason != ReasonRequestFailed {
		t.Fatalf("reason = %q", res.Reason)
	}
	if got := res.List(); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}

	got, err := client.RecommendationsByTrack(context.Background(), &Track{ID: "abc", Title: "T", Artist: "A"})
	if err != nil {
		t.Fatalf("search failures must be absorbed, got %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestRecommendationsByTrackReturnsTokenExchangeFailure(t *testing.T) {
	fake, srv := newFakeCatalog(t)
	fake.tokenStatus = http.StatusInternalServerError
	client := newTestClient(srv, &fakeClock{now: time.Now()})

	seed := &Track{ID: "abc", Title: "T", Artist: "A"}
	got, err := client.RecommendationsByTrack(context.Background(), seed)
	if !errors.Is(err, ErrTokenExchange) {
		t.Fatalf("expected ErrTokenExchange, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no tracks, got %#v", got)
	}
	if fake.searches.Load() != 0 {
		t.Fatalf("no search may run without a token")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Reggaetón! #1", want: "reggaeton 1"},
		{in: "  Música Ñandú  ", want: "musica nandu"},
		{in: "latin hip-hop", want: "latin hiphop"},
		{in: "K-Pop 🎶", want: "kpop"},
		{in: "!!!", want: ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrimaryArtist(t *testing.T) {
	if got := primaryArtist("Bad Bunny, Jhay Cortez"); got != "Bad Bunny" {
		t.Fatalf("primaryArtist = %q", got)
	}
	if got := primaryArtist(""); got != "" {
		t.Fatalf("primaryArtist(\"\") = %q", got)
	}
}
