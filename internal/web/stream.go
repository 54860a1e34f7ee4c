package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/checkpoint"
	"github.com/veritest/veritest/internal/events"
	"github.com/veritest/veritest/internal/model"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Sessions are keyed by unguessable IDs and the server binds to
	// loopback by default, so cross-origin reads are acceptable here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and streams the session's progress
// events as JSON, one message per event. Persisted events are replayed first
// so late subscribers see the full history, then live events follow. The
// stream closes after the terminal event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	cp, err := s.store.Load(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoSuchSession) {
			writeError(w, http.StatusNotFound, "no such session")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Subscribe before replaying so no event falls in the gap.
	live, cancel := s.broker.Subscribe(sessionID)
	defer cancel()

	replay, err := s.store.ListEvents(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain reads so close frames and pings from the client are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastSeq := 0
	for _, rec := range replay {
		ev := events.Event{
			SessionID: sessionID,
			Seq:       rec.Seq,
			Stage:     rec.Stage,
			Message:   rec.Message,
			Timestamp: rec.Timestamp,
		}
		if err := writeEvent(conn, ev); err != nil {
			return
		}
		lastSeq = rec.Seq
	}
	if cp.Terminal() {
		return
	}

	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				return
			}
			lastSeq = ev.Seq
			if ev.Stage == model.StageDone {
				deadline := time.Now().Add(writeWait)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
