package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleNotifications upgrades the request and streams every payload
// published on the notification topic until the client goes away
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	sub, err := s.hub.Subscribe(s.cfg.Topic)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer s.hub.Unsubscribe(sub.ID)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("subscription_id", sub.ID), zap.String("remote_addr", r.RemoteAddr))
	logger.Info("Subscriber connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		readPump(conn)
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("Failed to write notification", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			logger.Info("Subscriber disconnected", zap.Int("dropped", sub.Dropped()))
			return
		case <-r.Context().Done():
			return
		}
	}
}

// readPump discards client frames so control messages are processed and
// returns once the connection is closed
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
