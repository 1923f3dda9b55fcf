package changefeed

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

func TestPostgresPublishUsesPgNotify(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	p := newPostgres(db, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC) }
	defer p.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WithArgs("venueboard", `{"topic":"venues/bar-centro/requests","at":"2025-03-01T21:00:00Z"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.Publish(context.Background(), RequestsTopic("bar-centro")); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresHandleDispatchesByTopic(t *testing.T) {
	p := newPostgres(nil, zerolog.Nop())
	defer p.Close()
	ctx := context.Background()

	venue, err := p.Subscribe(ctx, VenueTopic("bar-centro"))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	requests, err := p.Subscribe(ctx, RequestsTopic("bar-centro"))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	p.handle(&pq.Notification{Channel: "venueboard", Extra: `{"topic":"venues/bar-centro"}`})
	if e, ok := receive(venue); !ok || e.Topic != "venues/bar-centro" {
		t.Fatalf("venue listener got %v %v", e, ok)
	}
	if len(requests.ch) != 0 {
		t.Fatalf("requests listener woke for a venue change")
	}

	p.handle(&pq.Notification{Channel: "venueboard", Extra: `not json`})
	if len(venue.ch) != 0 || len(requests.ch) != 0 {
		t.Fatalf("malformed payload must be ignored")
	}

	// reconnect: everyone re-reads
	p.handle(nil)
	if _, ok := receive(venue); !ok {
		t.Fatalf("venue listener not woken after reconnect")
	}
	if _, ok := receive(requests); !ok {
		t.Fatalf("requests listener not woken after reconnect")
	}
}

func TestPostgresCloseIsIdempotent(t *testing.T) {
	p := newPostgres(nil, zerolog.Nop())
	l, err := p.Subscribe(context.Background(), VenueTopic("x"))
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if _, ok := <-l.C(); ok {
		t.Fatalf("listener channel still open")
	}
	if err := p.Publish(context.Background(), VenueTopic("x")); err != ErrClosed {
		t.Fatalf("Publish after Close = %v, want ErrClosed", err)
	}
}

func TestParseStamp(t *testing.T) {
	want := time.Date(2025, 3, 1, 21, 0, 0, 0, time.UTC)
	if got := parseStamp(want.Format(time.RFC3339Nano)); !got.Equal(want) {
		t.Fatalf("parseStamp = %v", got)
	}
	if got := parseStamp("garbage"); got.IsZero() {
		t.Fatalf("parseStamp must fall back to now")
	}
}
