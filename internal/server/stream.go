package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kingrea/smart-mirror/internal/stream"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream pushes change notifications to a dashboard client. The first
// frame is always "connected".
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("stream unavailable"))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("server: stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.deps.Hub.Subscribe()
	defer sub.Close()

	if err := writeFrame(conn, stream.NewEvent(stream.TypeConnected, s.clock())); err != nil {
		return
	}

	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			if err := writeFrame(conn, event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, event stream.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(event)
}
