package httpapi

import (
	"encoding/json"
	"net/http"

	"venueboard/internal/catalog"
)

type tracksResponse struct {
	Tracks []catalog.Track `json:"tracks"`
}

func tracks(list []catalog.Track) tracksResponse {
	if list == nil {
		list = []catalog.Track{}
	}
	return tracksResponse{Tracks: list}
}

func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	found := s.catalog.SearchTracks(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, tracks(found))
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	found := s.catalog.Recommendations(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, tracks(found))
}

func (s *Server) handleRecommendationsByTrack(w http.ResponseWriter, r *http.Request) {
	var seed catalog.Track
	if err := json.NewDecoder(r.Body).Decode(&seed); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	found, err := s.catalog.RecommendationsByTrack(r.Context(), &seed)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks(found))
}
