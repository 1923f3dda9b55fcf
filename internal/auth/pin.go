// Package auth guards the staff side of a venue board: a venue PIN is
// exchanged for a short-lived signed session token scoped to that venue.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"venueboard/internal/store"
)

var (
	// ErrInvalidPIN indicates a login failure.
	ErrInvalidPIN = errors.New("invalid venue or pin")
	// ErrUnauthorized indicates an invalid or missing session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid session for a different venue.
	ErrForbidden = errors.New("forbidden")

	dummyPINHash = []byte("$2a$10$CwTycUXWue0Thq9StjUM0uJ8n4VWeNseyX2fA9DE.D7su7J6iYGTC")
)

// HashPIN returns the bcrypt hash stored under a venue's pinHash key.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", fmt.Errorf("%w: empty pin", ErrInvalidPIN)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPIN checks pin against the venue's pinHash, or its plain pin when no
// hash is stored. A nil venue still costs one bcrypt comparison.
func VerifyPIN(venue *store.Venue, pin string) bool {
	if venue == nil {
		_ = bcrypt.CompareHashAndPassword(dummyPINHash, []byte(pin))
		return false
	}
	if pin == "" {
		return false
	}

	if hash := venue.PINHash(); hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
	}
	if plain := venue.PIN(); plain != "" {
		return subtle.ConstantTimeCompare([]byte(plain), []byte(pin)) == 1
	}
	return false
}
