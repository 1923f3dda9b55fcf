package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a song request.
type Status string

const (
	StatusPending Status = "pending"
	StatusPlayed  Status = "played"
)

// reservedRequestKeys are owned by the store and dropped from caller data.
var reservedRequestKeys = []string{"requestId", "venueId", "status", "requestedAt", "playedAt"}

// Request is a patron's song request under a venue.
type Request struct {
	ID          string
	VenueID     string
	Status      Status
	RequestedAt time.Time
	PlayedAt    *time.Time
	Data        Attributes
}

// MarshalJSON flattens the caller data next to the store-owned fields.
func (r Request) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(r.Data)+5)
	for k, v := range r.Data {
		doc[k] = v
	}
	doc["requestId"] = r.ID
	doc["venueId"] = r.VenueID
	doc["status"] = r.Status
	doc["requestedAt"] = r.RequestedAt
	if r.PlayedAt != nil {
		doc["playedAt"] = *r.PlayedAt
	}
	return json.Marshal(doc)
}

// AddRequest stores a new pending request. The store assigns the id and the
// requestedAt timestamp; reserved keys in data are ignored.
func (s *Store) AddRequest(ctx context.Context, venueID string, data Attributes) (Request, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return Request{}, err
	}

	clean := data.Clone()
	for _, key := range reservedRequestKeys {
		delete(clean, key)
	}
	payload, err := encodeAttributes(clean)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		ID:      uuid.NewString(),
		VenueID: venueID,
		Status:  StatusPending,
		Data:    clean,
	}

	insert := func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO venue_requests (id, venue_id, data, status)
			VALUES ($1, $2, $3::jsonb, $4)
			RETURNING requested_at
		`, req.ID, venueID, payload, string(StatusPending)).Scan(&req.RequestedAt)
	}

	err = insert()
	if isUniqueViolation(err) {
		req.ID = uuid.NewString()
		err = insert()
	}
	if err != nil {
		return Request{}, fmt.Errorf("insert request: %w", err)
	}
	return req, nil
}

// MarkPlayed moves a request to played and stamps playedAt. The row is kept
// so the venue's play history survives.
func (s *Store) MarkPlayed(ctx context.Context, venueID, requestID string) error {
	if err := ValidateVenueID(venueID); err != nil {
		return err
	}
	if strings.TrimSpace(requestID) == "" {
		return ErrRequestNotFound
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE venue_requests
		SET status = $1, played_at = NOW()
		WHERE venue_id = $2 AND id = $3
	`, string(StatusPlayed), venueID, requestID)
	if err != nil {
		return fmt.Errorf("mark request played: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark request played: %w", err)
	}
	if rows == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// GetRequest returns one request of a venue.
func (s *Store) GetRequest(ctx context.Context, venueID, requestID string) (Request, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return Request{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, venue_id, data, status, requested_at, played_at
		FROM venue_requests
		WHERE venue_id = $1 AND id = $2
	`, venueID, requestID)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrRequestNotFound
	}
	return req, err
}

// ListRequests returns every request of a venue, oldest first.
func (s *Store) ListRequests(ctx context.Context, venueID string) ([]Request, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue_id, data, status, requested_at, played_at
		FROM venue_requests
		WHERE venue_id = $1
		ORDER BY requested_at ASC, id ASC
	`, venueID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	return scanRequestRows(rows)
}

// PendingRequests returns the venue's pending requests, oldest first. The
// status filter runs here rather than in SQL so both views share one query.
func (s *Store) PendingRequests(ctx context.Context, venueID string) ([]Request, error) {
	all, err := s.ListRequests(ctx, venueID)
	if err != nil {
		return nil, err
	}
	return FilterStatus(all, StatusPending), nil
}

// PlayedRequests returns up to limit played requests, most recently played first.
func (s *Store) PlayedRequests(ctx context.Context, venueID string, limit int) ([]Request, error) {
	if err := ValidateVenueID(venueID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, venue_id, data, status, requested_at, played_at
		FROM venue_requests
		WHERE venue_id = $1 AND status = $2
		ORDER BY played_at DESC, id ASC
		LIMIT $3
	`, venueID, string(StatusPlayed), limit)
	if err != nil {
		return nil, fmt.Errorf("list played requests: %w", err)
	}
	defer rows.Close()

	return scanRequestRows(rows)
}

// FilterStatus keeps the requests in the given status, preserving order.
func FilterStatus(requests []Request, status Status) []Request {
	out := make([]Request, 0, len(requests))
	for _, r := range requests {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(scanner requestScanner) (Request, error) {
	var (
		req      Request
		raw      []byte
		status   string
		playedAt sql.NullTime
	)
	if err := scanner.Scan(&req.ID, &req.VenueID, &raw, &status, &req.RequestedAt, &playedAt); err != nil {
		return Request{}, err
	}

	data, err := decodeAttributes(raw)
	if err != nil {
		return Request{}, err
	}
	req.Data = data
	req.Status = Status(status)
	if playedAt.Valid {
		t := playedAt.Time
		req.PlayedAt = &t
	}
	return req, nil
}

func scanRequestRows(rows *sql.Rows) ([]Request, error) {
	requests := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}
