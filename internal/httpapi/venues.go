package httpapi

import (
	"encoding/json"
	"net/http"

	"venueboard/internal/app/board"
	"venueboard/internal/auth"
	"venueboard/internal/store"
)

type loginRequest struct {
	PIN string `json:"pin"`
}

func (s *Server) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	venue, err := s.board.GetVenue(r.Context(), r.PathValue("venueId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue.Public())
}

func (s *Server) handleVenueEvents(w http.ResponseWriter, r *http.Request) {
	venueID := r.PathValue("venueId")
	s.stream(w, r, "venue", func(push func(any)) (*board.Subscription, error) {
		return s.board.SubscribeToVenue(r.Context(), venueID, func(v *store.Venue) {
			push(v.Public())
		})
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings store.Attributes
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}
	if len(settings) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no settings given"})
		return
	}

	settings, err := hashSettingsPIN(settings)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	venue, err := s.board.UpdateVenueSettings(r.Context(), r.PathValue("venueId"), settings)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, venue.Public())
}

// hashSettingsPIN never lets a PIN reach the document in plain text. A new
// pin replaces both stored forms; a client-supplied pinHash is ignored.
func hashSettingsPIN(settings store.Attributes) (store.Attributes, error) {
	out := settings.Clone()
	delete(out, store.VenuePINHash)

	raw, ok := out[store.VenuePIN]
	if !ok {
		return out, nil
	}
	pin, _ := raw.(string)
	hash, err := auth.HashPIN(pin)
	if err != nil {
		return nil, err
	}
	out[store.VenuePIN] = nil
	out[store.VenuePINHash] = hash
	return out, nil
}

func (s *Server) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return
	}

	session, err := s.staff.Login(r.Context(), r.PathValue("venueId"), req.PIN)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
