package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"venueboard/internal/changefeed"
	"venueboard/internal/logging"
	"venueboard/internal/store"
)

// Store defines persistence operations for venues and their requests
type Store interface {
	GetVenue(ctx context.Context, id string) (*store.Venue, error)
	MergeVenue(ctx context.Context, id string, settings store.Attributes) (*store.Venue, error)
	AddRequest(ctx context.Context, venueID string, data store.Attributes) (store.Request, error)
	MarkPlayed(ctx context.Context, venueID, requestID string) error
	PendingRequests(ctx context.Context, venueID string) ([]store.Request, error)
	PlayedRequests(ctx context.Context, venueID string, limit int) ([]store.Request, error)
}

// Service coordinates the request board of a venue: its settings document,
// the request queue, and live views of both.
type Service interface {
	GetVenue(ctx context.Context, venueID string) (*store.Venue, error)
	SubscribeToVenue(ctx context.Context, venueID string, fn func(*store.Venue)) (*Subscription, error)
	SubscribeToRequests(ctx context.Context, venueID string, fn func([]store.Request)) (*Subscription, error)
	AddRequest(ctx context.Context, venueID string, data store.Attributes) (store.Request, error)
	MarkAsPlayed(ctx context.Context, venueID, requestID string) error
	UpdateVenueSettings(ctx context.Context, venueID string, settings store.Attributes) (*store.Venue, error)
	History(ctx context.Context, venueID string, limit int) ([]store.Request, error)
}

// Gauge tracks open subscriptions by kind ("venue" or "requests").
type Gauge interface {
	SubscriptionOpened(kind string)
	SubscriptionClosed(kind string)
}

type nopGauge struct{}

func (nopGauge) SubscriptionOpened(string) {}
func (nopGauge) SubscriptionClosed(string) {}

// Option configures the service.
type Option func(*service)

// WithGauge reports subscription counts.
func WithGauge(g Gauge) Option {
	return func(s *service) {
		if g != nil {
			s.gauge = g
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *service) { s.logger = l }
}

type service struct {
	store  Store
	feed   changefeed.Feed
	gauge  Gauge
	logger zerolog.Logger
}

// New constructs a board Service backed by the provided Store and change feed
func New(st Store, feed changefeed.Feed, opts ...Option) Service {
	s := &service{
		store:  st,
		feed:   feed,
		gauge:  nopGauge{},
		logger: logging.Component("board"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) GetVenue(ctx context.Context, venueID string) (*store.Venue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.GetVenue(ctx, venueID)
}

func (s *service) SubscribeToVenue(ctx context.Context, venueID string, fn func(*store.Venue)) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateVenueID(venueID); err != nil {
		return nil, err
	}

	refresh := func(ctx context.Context) {
		venue, err := s.store.GetVenue(ctx, venueID)
		if errors.Is(err, store.ErrVenueNotFound) {
			venue, err = nil, nil
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log(ctx, venueID).Warn().Err(err).Msg("refresh venue subscription")
			return
		}
		fn(venue)
	}
	return s.watch(ctx, "venue", changefeed.VenueTopic(venueID), refresh)
}

func (s *service) SubscribeToRequests(ctx context.Context, venueID string, fn func([]store.Request)) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := store.ValidateVenueID(venueID); err != nil {
		return nil, err
	}

	refresh := func(ctx context.Context) {
		pending, err := s.store.PendingRequests(ctx, venueID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log(ctx, venueID).Warn().Err(err).Msg("refresh request subscription")
			return
		}
		fn(pending)
	}
	return s.watch(ctx, "requests", changefeed.RequestsTopic(venueID), refresh)
}

// watch subscribes to topic before the first read so no change between the
// initial snapshot and the subscription is lost.
func (s *service) watch(ctx context.Context, kind, topic string, refresh func(context.Context)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	listener, err := s.feed.Subscribe(ctx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	s.gauge.SubscriptionOpened(kind)

	go func() {
		defer close(sub.done)
		defer s.gauge.SubscriptionClosed(kind)
		defer listener.Close()

		refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-listener.C():
				if !ok {
					return
				}
				refresh(ctx)
			}
		}
	}()
	return sub, nil
}

func (s *service) AddRequest(ctx context.Context, venueID string, data store.Attributes) (store.Request, error) {
	if err := ctx.Err(); err != nil {
		return store.Request{}, err
	}
	req, err := s.store.AddRequest(ctx, venueID, data)
	if err != nil {
		return store.Request{}, err
	}
	s.publish(ctx, venueID, changefeed.RequestsTopic(venueID))
	return req, nil
}

func (s *service) MarkAsPlayed(ctx context.Context, venueID, requestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.store.MarkPlayed(ctx, venueID, requestID); err != nil {
		return err
	}
	s.publish(ctx, venueID, changefeed.RequestsTopic(venueID))
	return nil
}

func (s *service) UpdateVenueSettings(ctx context.Context, venueID string, settings store.Attributes) (*store.Venue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	venue, err := s.store.MergeVenue(ctx, venueID, settings)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, venueID, changefeed.VenueTopic(venueID))
	return venue, nil
}

func (s *service) History(ctx context.Context, venueID string, limit int) ([]store.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.PlayedRequests(ctx, venueID, limit)
}

// publish is best effort: the write already succeeded, and subscribers
// catch up on the next change.
func (s *service) publish(ctx context.Context, venueID, topic string) {
	if err := s.feed.Publish(ctx, topic); err != nil {
		s.log(ctx, venueID).Warn().Err(err).Str("topic", topic).Msg("publish change")
	}
}

func (s *service) log(ctx context.Context, venueID string) *zerolog.Logger {
	return logging.WithContext(logging.WithVenueID(ctx, venueID), s.logger)
}
