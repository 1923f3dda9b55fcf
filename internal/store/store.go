package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrVenueNotFound signals that no document exists for a venue id.
	ErrVenueNotFound = errors.New("venue not found")
	// ErrRequestNotFound signals that no request matched the venue and request id.
	ErrRequestNotFound = errors.New("request not found")
	// ErrInvalidVenue indicates an empty or malformed venue id.
	ErrInvalidVenue = errors.New("invalid venue id")
	// ErrInvalidRequest indicates request data that cannot be stored.
	ErrInvalidRequest = errors.New("invalid request")
)

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Attributes is an open document body. Values are whatever encoding/json
// produces for a JSON object: strings, float64, bool, nil, []any, map[string]any.
type Attributes map[string]any

// String returns the value under key when it is a string.
func (a Attributes) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy; nested maps are shared.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func encodeAttributes(a Attributes) (string, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return string(b), nil
}

func decodeAttributes(raw []byte) (Attributes, error) {
	attrs := Attributes{}
	if len(raw) == 0 {
		return attrs, nil
	}
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return attrs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
