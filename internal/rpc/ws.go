package rpc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulse-net/pulse-chain/internal/events"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The REST surface is already CORS-permissive; the stream matches.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Wire frames are discriminated by a type field.
type wsNewBlock struct {
	Type  string            `json:"type"`
	Block *types.PulseBlock `json:"block"`
}

type wsStats struct {
	Type  string              `json:"type"`
	Stats *types.NetworkStats `json:"stats"`
}

type wsHeartbeatCount struct {
	Type  string `json:"type"`
	Count uint64 `json:"count"`
}

// wsFrame converts a bus event into its wire form.
func wsFrame(ev events.Event) any {
	switch e := ev.(type) {
	case events.NewBlock:
		return wsNewBlock{Type: e.Type(), Block: e.Block}
	case events.Stats:
		return wsStats{Type: e.Type(), Stats: e.Stats}
	case events.HeartbeatCount:
		return wsHeartbeatCount{Type: e.Type(), Count: e.Count}
	default:
		return nil
	}
}

// handleWebSocket upgrades the connection and streams bus events until the
// client disconnects or the node shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sub := s.engine.Subscribe()
	if sub == nil {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Error: "shutting down"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.engine.Bus().Unsubscribe(sub)
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	done := make(chan struct{})

	// Reader: drain client frames to detect disconnect; inbound content is
	// ignored.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer: pump bus events until the subscription closes or the client
	// goes away.
	func() {
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return // bus closed (shutdown)
				}
				frame := wsFrame(ev)
				if frame == nil {
					continue
				}
				payload, err := json.Marshal(frame)
				if err != nil {
					s.logger.Warn().Err(err).Msg("Failed to marshal event")
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	s.engine.Bus().Unsubscribe(sub)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
}
