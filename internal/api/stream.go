package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/chase/internal/engine"
)

const (
	maxStreamConns = 16
	pingInterval   = 25 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// Read-only stream; origin checks are left to the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStream upgrades to a websocket and sends a snapshot followed by one
// JSON frame per committed reset or step.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Hub.Count() >= maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, ch := s.Hub.Subscribe()
	defer s.Hub.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	// Reader: only control frames are expected; it exits when the client goes away.
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("stream write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) snapshot() Message {
	st := s.Episode.Status()
	m := Message{Type: "snapshot", Step: st.Steps, Terminated: st.Terminated}
	if state, err := s.Episode.CurrentState(); err == nil {
		m.Seed = &st.Seed
		m.State = &state
	} else if !errors.Is(err, engine.ErrUninitializedEpisode) {
		slog.Warn("stream snapshot failed", "error", err)
	}
	return m
}
