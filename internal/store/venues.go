package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Well-known venue attribute keys.
const (
	VenueName    = "name"
	VenueTheme   = "theme"
	VenuePIN     = "pin"
	VenuePINHash = "pinHash"
)

// Venue is the settings document of one venue.
type Venue struct {
	ID         string
	Attributes Attributes
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Name returns the display name.
func (v *Venue) Name() string { return v.Attributes.String(VenueName) }

// Theme returns the color theme.
func (v *Venue) Theme() string { return v.Attributes.String(VenueTheme) }

// PIN returns the plain staff PIN, if one is stored.
func (v *Venue) PIN() string { return v.Attributes.String(VenuePIN) }

// PINHash returns the bcrypt hash of the staff PIN, if one is stored.
func (v *Venue) PINHash() string { return v.Attributes.String(VenuePINHash) }

// Public returns a copy safe to hand to patrons: staff PIN fields removed.
func (v *Venue) Public() *Venue {
	if v == nil {
		return nil
	}
	attrs := v.Attributes.Clone()
	delete(attrs, VenuePIN)
	delete(attrs, VenuePINHash)
	return &Venue{ID: v.ID, Attributes: attrs, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt}
}

// MarshalJSON renders the document body with its id, the way clients read it.
func (v Venue) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(v.Attributes)+1)
	for k, val := range v.Attributes {
		doc[k] = val
	}
	doc["id"] = v.ID
	return json.Marshal(doc)
}

// ValidateVenueID rejects blank ids and ids that would address a nested
// document.
func ValidateVenueID(id string) error {
	if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
		return ErrInvalidVenue
	}
	return nil
}

// GetVenue returns the venue document, or ErrVenueNotFound. It never creates one.
func (s *Store) GetVenue(ctx context.Context, id string) (*Venue, error) {
	if err := ValidateVenueID(id); err != nil {
		return nil, err
	}

	var (
		raw []byte
		v   = Venue{ID: id}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT data, created_at, updated_at
		FROM venues
		WHERE id = $1
	`, id).Scan(&raw, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVenueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get venue %s: %w", id, err)
	}

	if v.Attributes, err = decodeAttributes(raw); err != nil {
		return nil, err
	}
	return &v, nil
}

// MergeVenue merges settings into the venue document, creating it when
// absent. Top-level keys in settings replace existing keys; other keys are kept.
func (s *Store) MergeVenue(ctx context.Context, id string, settings Attributes) (*Venue, error) {
	if err := ValidateVenueID(id); err != nil {
		return nil, err
	}
	payload, err := encodeAttributes(settings)
	if err != nil {
		return nil, err
	}

	var (
		raw []byte
		v   = Venue{ID: id}
	)
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO venues (id, data)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET data = venues.data || EXCLUDED.data, updated_at = NOW()
		RETURNING data, created_at, updated_at
	`, id, payload).Scan(&raw, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("merge venue %s: %w", id, err)
	}

	if v.Attributes, err = decodeAttributes(raw); err != nil {
		return nil, err
	}
	return &v, nil
}
