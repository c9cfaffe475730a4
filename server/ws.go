package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"darkgrid/core/events"
	"darkgrid/pubsub"
)

const wsWriteTimeout = 10 * time.Second

// StreamEvents upgrades the connection and pushes simulation events as they
// are published. Slow consumers miss frames rather than stalling the
// broadcaster.
func (s *Server) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	if err := s.streamEvents(r.Context(), conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn) error {
	updates, cancel := s.stream.Subscribe(events.Channel)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEventFrame(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeEventFrame(ctx context.Context, conn *websocket.Conn, msg pubsub.Message) error {
	data, err := json.Marshal(map[string]any{"events": []pubsub.Message{msg}})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
