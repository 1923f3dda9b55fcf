package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"venueboard/internal/auth"
	"venueboard/internal/store"
)

const (
	demoVenueID = "demo"
	demoPIN     = "1234"
)

// ensureDemoVenue creates the demo venue document unless it already exists.
func ensureDemoVenue(ctx context.Context, dataStore *store.Store) error {
	_, err := dataStore.GetVenue(ctx, demoVenueID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrVenueNotFound) {
		return fmt.Errorf("lookup demo venue: %w", err)
	}

	hash, err := auth.HashPIN(demoPIN)
	if err != nil {
		return fmt.Errorf("hash demo pin: %w", err)
	}

	if _, err := dataStore.MergeVenue(ctx, demoVenueID, store.Attributes{
		store.VenueName:    "Demo Bar",
		store.VenueTheme:   "dark",
		store.VenuePINHash: hash,
		"welcomeMessage":   "Request a song and we'll play it next!",
	}); err != nil {
		return fmt.Errorf("bootstrap demo venue: %w", err)
	}

	log.Info().Str("venue_id", demoVenueID).Msg("created demo venue")
	return nil
}
