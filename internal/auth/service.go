package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"venueboard/internal/store"
)

// VenueStore looks up venue documents.
type VenueStore interface {
	GetVenue(ctx context.Context, id string) (*store.Venue, error)
}

// Session is an issued staff token.
type Session struct {
	Token     string    `json:"token"`
	VenueID   string    `json:"venueId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service logs staff in by venue PIN and authorizes their tokens.
type Service struct {
	venues VenueStore
	tokens *TokenManager
}

// NewService wires PIN checks to venue documents.
func NewService(venues VenueStore, tokens *TokenManager) *Service {
	return &Service{venues: venues, tokens: tokens}
}

// Login exchanges a venue PIN for a session token.
func (s *Service) Login(ctx context.Context, venueID, pin string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	venue, err := s.venues.GetVenue(ctx, venueID)
	if err != nil && !errors.Is(err, store.ErrVenueNotFound) && !errors.Is(err, store.ErrInvalidVenue) {
		return Session{}, err
	}
	if !VerifyPIN(venue, strings.TrimSpace(pin)) {
		return Session{}, ErrInvalidPIN
	}

	token, expiresAt, err := s.tokens.GenerateToken(venueID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, VenueID: venueID, ExpiresAt: expiresAt}, nil
}

// Authorize checks that token is a live session for venueID.
func (s *Service) Authorize(token, venueID string) error {
	if token == "" {
		return ErrUnauthorized
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return err
	}
	if claims.VenueID() != venueID {
		return ErrForbidden
	}
	return nil
}
