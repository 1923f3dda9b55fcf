package changefeed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const (
	pgChannel        = "venueboard"
	pgMinReconnect   = 10 * time.Second
	pgMaxReconnect   = time.Minute
	pgListenerHealth = 90 * time.Second
)

type pgNotification struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
}

// Postgres uses NOTIFY on the application database, so a deployment with
// several API instances needs no extra infrastructure.
type Postgres struct {
	db        *sql.DB
	listener  *pq.Listener
	hub       *hub
	logger    zerolog.Logger
	now       func() time.Time
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newPostgres(db *sql.DB, logger zerolog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		hub:    newHub(),
		logger: logger,
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// NewPostgres publishes through db and listens on a dedicated lib/pq
// connection opened from dsn.
func NewPostgres(db *sql.DB, dsn string, logger zerolog.Logger) (*Postgres, error) {
	p := newPostgres(db, logger)
	p.listener = pq.NewListener(dsn, pgMinReconnect, pgMaxReconnect, p.onListenerEvent)
	if err := p.listener.Listen(pgChannel); err != nil {
		_ = p.listener.Close()
		return nil, fmt.Errorf("listen %s: %w", pgChannel, err)
	}
	go p.run()
	return p, nil
}

func (p *Postgres) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed:
		p.logger.Warn().Err(err).Msg("change feed listener connection attempt failed")
	case pq.ListenerEventDisconnected:
		p.logger.Warn().Err(err).Msg("change feed listener disconnected")
	case pq.ListenerEventReconnected:
		p.logger.Info().Msg("change feed listener reconnected")
	}
}

func (p *Postgres) run() {
	defer close(p.done)
	ticker := time.NewTicker(pgListenerHealth)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			p.handle(n)
		case <-ticker.C:
			go func() {
				if err := p.listener.Ping(); err != nil {
					p.logger.Warn().Err(err).Msg("change feed listener ping failed")
				}
			}()
		}
	}
}

// handle dispatches one notification. A nil notification means the
// connection was re-established and events may have been missed, so every
// listener is woken to re-read.
func (p *Postgres) handle(n *pq.Notification) {
	if n == nil {
		p.hub.dispatchAll(p.now())
		return
	}

	var msg pgNotification
	if err := json.Unmarshal([]byte(n.Extra), &msg); err != nil || msg.Topic == "" {
		p.logger.Warn().Err(err).Str("payload", n.Extra).Msg("ignoring malformed change notification")
		return
	}
	if msg.At.IsZero() {
		msg.At = p.now()
	}
	p.hub.dispatch(Event{Topic: msg.Topic, At: msg.At})
}

// Publish sends a NOTIFY visible to every instance listening on the database.
func (p *Postgres) Publish(ctx context.Context, topic string) error {
	if p.hub.isClosed() {
		return ErrClosed
	}
	payload, err := json.Marshal(pgNotification{Topic: topic, At: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, pgChannel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a local listener; the database LISTEN is shared.
func (p *Postgres) Subscribe(ctx context.Context, topic string) (*Listener, error) {
	return p.hub.add(ctx, topic)
}

// Ping checks the publishing pool and the LISTEN connection.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return err
	}
	if p.listener == nil {
		return nil
	}
	return p.listener.Ping()
}

// Close stops listening and closes every listener.
func (p *Postgres) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		if p.listener != nil {
			<-p.done
			p.closeErr = p.listener.Close()
		}
		p.hub.closeAll()
	})
	return p.closeErr
}
