package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"venueboard/internal/app/board"
	"venueboard/internal/store"
)

const maxHistoryLimit = 200

func (s *Server) handleAddRequest(w http.ResponseWriter, r *http.Request) {
	var data store.Attributes
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	created, err := s.board.AddRequest(r.Context(), r.PathValue("venueId"), data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleRequestEvents(w http.ResponseWriter, r *http.Request) {
	venueID := r.PathValue("venueId")
	s.stream(w, r, "requests", func(push func(any)) (*board.Subscription, error) {
		return s.board.SubscribeToRequests(r.Context(), venueID, func(pending []store.Request) {
			if pending == nil {
				pending = []store.Request{}
			}
			push(pending)
		})
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit parameter"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	played, err := s.board.History(r.Context(), r.PathValue("venueId"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Requests []store.Request `json:"requests"`
	}{Requests: played})
}

func (s *Server) handleMarkPlayed(w http.ResponseWriter, r *http.Request) {
	err := s.board.MarkAsPlayed(r.Context(), r.PathValue("venueId"), r.PathValue("requestId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
