package http

import (
	"log/slog"
	"net/http"

	"quiz-attempt-service/internal/domain"
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// attemptEvents streams the caller's attempt over a websocket: the current
// state first, then every committed change.
func (s *server) attemptEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "attemptID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if s.feed == nil {
		respondError(w, r, domain.ErrNotFound)
		return
	}

	// Subscribe before reading so no change between the read and the
	// subscription is lost.
	updates, cancel := s.feed.Subscribe(id)
	defer cancel()

	view, err := s.attempts.GetAttempt(r.Context(), mustCaller(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "ws: upgrade failed", "attempt_id", id, "err", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[domain.Attempt], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// The snapshot is queued before any update can be forwarded.
	send <- outboundMessage[domain.Attempt]{Type: "attempt", Payload: view.Attempt}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				slog.DebugContext(r.Context(), "ws: write failed", "attempt_id", id, "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[domain.Attempt]{Type: "attempt", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	slog.DebugContext(r.Context(), "ws: attempt feed opened", "attempt_id", id)

	// Clients do not send anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
