package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Spotify API response structures
type spotifySearchResponse struct {
	Artists *spotifyArtistsPage `json:"artists,omitempty"`
	Tracks  *spotifyTracksPage  `json:"tracks,omitempty"`
}

type spotifyArtistsPage struct {
	Items []spotifyArtist `json:"items"`
}

type spotifyTracksPage struct {
	Items []spotifyTrack `json:"items"`
}

type spotifyArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

type spotifyTrack struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Artists      []spotifySimpleArtist `json:"artists"`
	Album        *spotifySimpleAlbum   `json:"album,omitempty"`
	ExternalURLs spotifyExternalURLs   `json:"external_urls"`
}

type spotifySimpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type spotifySimpleAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []spotifyImage `json:"images"`
}

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

func (c *Client) searchTrackItems(ctx context.Context, query string, limit int) ([]spotifyTrack, error) {
	params := url.Values{
		"q":     []string{query},
		"type":  []string{"track"},
		"limit": []string{strconv.Itoa(limit)},
	}

	var result spotifySearchResponse
	if err := c.get(ctx, "search", params, &result); err != nil {
		return nil, fmt.Errorf("search tracks: %w", err)
	}
	if result.Tracks == nil {
		return []spotifyTrack{}, nil
	}
	return result.Tracks.Items, nil
}

// SearchArtists searches for artists by name.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error) {
	params := url.Values{
		"q":     []string{query},
		"type":  []string{"artist"},
		"limit": []string{strconv.Itoa(limit)},
	}

	var result spotifySearchResponse
	if err := c.get(ctx, "search", params, &result); err != nil {
		return nil, fmt.Errorf("search artists: %w", err)
	}
	if result.Artists == nil {
		return []Artist{}, nil
	}

	artists := make([]Artist, 0, len(result.Artists.Items))
	for _, sa := range result.Artists.Items {
		artists = append(artists, convertArtist(sa))
	}
	return artists, nil
}

// GetArtist retrieves full artist details by ID
func (c *Client) GetArtist(ctx context.Context, artistID string) (*Artist, error) {
	var sa spotifyArtist
	if err := c.get(ctx, "artists/"+url.PathEscape(artistID), nil, &sa); err != nil {
		return nil, fmt.Errorf("get artist %s: %w", artistID, err)
	}
	artist := convertArtist(sa)
	return &artist, nil
}

func convertArtist(sa spotifyArtist) Artist {
	return Artist{
		ID:     sa.ID,
		Name:   sa.Name,
		Genres: sa.Genres,
	}
}

func convertTrack(st spotifyTrack) Track {
	names := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		names = append(names, a.Name)
	}

	artistID := ""
	if len(st.Artists) > 0 {
		artistID = st.Artists[0].ID
	}

	albumArt := ""
	if st.Album != nil && len(st.Album.Images) > 0 {
		albumArt = st.Album.Images[0].URL
	}

	return Track{
		ID:         st.ID,
		Title:      st.Name,
		Artist:     strings.Join(names, ", "),
		ArtistID:   artistID,
		AlbumArt:   albumArt,
		SpotifyURL: st.ExternalURLs.Spotify,
	}
}

func convertTracks(items []spotifyTrack) []Track {
	tracks := make([]Track, 0, len(items))
	for _, st := range items {
		tracks = append(tracks, convertTrack(st))
	}
	return tracks
}
