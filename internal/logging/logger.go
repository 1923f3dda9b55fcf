package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// contextKey is the type for context keys
type contextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey contextKey = "request_id"
	// VenueIDKey is the context key for the venue a request is scoped to
	VenueIDKey contextKey = "venue_id"
)

// Config holds logging configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// New creates a zerolog logger with the given configuration
func New(cfg Config) zerolog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "text" {
		// Pretty console output for development
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).
			Level(level).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger zerolog.Logger) {
	log.Logger = logger
}

// Component returns a child of the global logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// WithRequestID stores the request ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithVenueID stores the venue ID on the context.
func WithVenueID(ctx context.Context, venueID string) context.Context {
	return context.WithValue(ctx, VenueIDKey, venueID)
}

// RequestID returns the request ID stored on the context, if any.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger enriched with the request and venue IDs found on ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) *zerolog.Logger {
	lc := logger.With()

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	if venueID, ok := ctx.Value(VenueIDKey).(string); ok && venueID != "" {
		lc = lc.Str("venue_id", venueID)
	}

	contextLogger := lc.Logger()
	return &contextLogger
}
