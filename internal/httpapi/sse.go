package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"venueboard/internal/app/board"
	"venueboard/internal/logging"
)

// stream serves a live view as server-sent events. subscribe receives a push
// function that the subscription callback hands each new snapshot to. A slow
// client only ever receives the latest snapshot; older unsent ones are dropped.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, event string, subscribe func(push func(any)) (*board.Subscription, error)) {
	logger := logging.WithContext(r.Context(), s.logger)
	updates := make(chan []byte, 1)

	push := func(snapshot any) {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			logger.Error().Err(err).Str("event", event).Msg("encode snapshot")
			return
		}
		// Only the subscription goroutine sends, so drain-then-send cannot block.
		select {
		case <-updates:
		default:
		}
		updates <- payload
	}

	sub, err := subscribe(push)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "retry: 3000\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logger.Error().Err(err).Msg("event stream not supported by response writer")
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var id int
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case payload := <-updates:
			id++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
