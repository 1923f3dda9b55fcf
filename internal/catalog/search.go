package catalog

import (
	"context"
	"strings"
)

// Search looks up tracks matching query. A blank query returns an empty
// result without touching the network.
func (c *Client) Search(ctx context.Context, query string) Result {
	if strings.TrimSpace(query) == "" {
		return Result{Reason: ReasonEmptyQuery}
	}
	return c.trackResult(ctx, query)
}

// Recommend runs a recommendation query, DefaultRecommendationQuery when
// query is blank.
func (c *Client) Recommend(ctx context.Context, query string) Result {
	if strings.TrimSpace(query) == "" {
		query = DefaultRecommendationQuery
	}
	return c.trackResult(ctx, query)
}

func (c *Client) trackResult(ctx context.Context, query string) Result {
	items, err := c.searchTrackItems(ctx, query, searchLimit)
	if err != nil {
		return failed(err)
	}
	return Result{Tracks: convertTracks(items), Reason: ReasonOK}
}

// RecommendForTrack suggests tracks related to seed while avoiding the seed's
// own artist and title. The seed query is the primary artist's first genre
// when the catalog knows one, otherwise the artist name.
func (c *Client) RecommendForTrack(ctx context.Context, seed *Track) Result {
	if seed == nil || seed.ID == "" || isManualID(seed.ID) {
		return Result{Reason: ReasonManualEntry}
	}

	if _, err := c.AccessToken(ctx); err != nil {
		return failed(err)
	}

	artist := primaryArtist(seed.Artist)
	title := strings.TrimSpace(seed.Title)

	query := artist
	if query != "" {
		query = c.genreSeed(ctx, artist)
	} else {
		query = title
	}

	query = Normalize(query)
	if query == "" {
		return Result{Reason: ReasonEmptyQuery}
	}

	items, err := c.searchTrackItems(ctx, query, searchLimit)
	if err != nil {
		return failed(err)
	}

	picked := excludeSeed(items, artist, title)
	if len(picked) == 0 {
		picked = items
	}
	if len(picked) > searchLimit {
		picked = picked[:searchLimit]
	}
	return Result{Tracks: convertTracks(picked), Reason: ReasonOK}
}

// genreSeed returns the first genre of the best artist match for name, or
// name itself when the lookup fails or the artist lists no genres.
func (c *Client) genreSeed(ctx context.Context, name string) string {
	artists, err := c.SearchArtists(ctx, name, 1)
	if err != nil {
		c.logger.Warn().Err(err).Str("artist", name).Msg("genre discovery: artist search failed")
		return name
	}
	if len(artists) == 0 {
		return name
	}

	detail, err := c.GetArtist(ctx, artists[0].ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("artist", name).Msg("genre discovery: artist lookup failed")
		return name
	}
	if len(detail.Genres) == 0 || strings.TrimSpace(detail.Genres[0]) == "" {
		return name
	}
	return detail.Genres[0]
}

// excludeSeed drops items by the seed artist or sharing the seed title.
// Empty artist or title values never match.
func excludeSeed(items []spotifyTrack, artist, title string) []spotifyTrack {
	artist = strings.ToLower(artist)
	title = strings.ToLower(title)

	kept := make([]spotifyTrack, 0, len(items))
	for _, item := range items {
		if title != "" && strings.Contains(strings.ToLower(item.Name), title) {
			continue
		}
		if artist != "" && hasArtist(item.Artists, artist) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func hasArtist(artists []spotifySimpleArtist, lowerName string) bool {
	for _, a := range artists {
		if strings.Contains(strings.ToLower(a.Name), lowerName) {
			return true
		}
	}
	return false
}

// SearchTracks is Search collapsed to a plain list; failures are logged.
func (c *Client) SearchTracks(ctx context.Context, query string) []Track {
	return c.collapse(c.Search(ctx, query), "search tracks", query)
}

// Recommendations is Recommend collapsed to a plain list; failures are logged.
func (c *Client) Recommendations(ctx context.Context, query string) []Track {
	return c.collapse(c.Recommend(ctx, query), "recommendations", query)
}

// RecommendationsByTrack is RecommendForTrack collapsed to a plain list.
// Lookup failures are logged and yield an empty list; a failed token
// exchange is returned since no lookup could run at all.
func (c *Client) RecommendationsByTrack(ctx context.Context, seed *Track) ([]Track, error) {
	id := ""
	if seed != nil {
		id = seed.ID
	}
	r := c.RecommendForTrack(ctx, seed)
	if r.Reason == ReasonTokenExchange {
		return nil, r.Err
	}
	return c.collapse(r, "recommendations by track", id), nil
}

func (c *Client) collapse(r Result, op, subject string) []Track {
	if r.Err != nil {
		c.logger.Error().
			Err(r.Err).
			Str("op", op).
			Str("subject", subject).
			Str("reason", string(r.Reason)).
			Msg("catalog lookup failed")
	}
	return r.List()
}
