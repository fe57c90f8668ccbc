package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"market-pulse-alerts/internal/alert"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleStream upgrades the connection and bridges a hub subscription onto
// it. ?channel= selects a symbol channel; default is the unified channel.
// A write failure deregisters only this subscriber.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	channel := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("channel")))
	if channel == "" || strings.EqualFold(channel, alert.ChannelUnified) {
		channel = alert.ChannelUnified
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := s.hub.Subscribe(channel)
	s.logger.Info().Str("channel", channel).Str("subscriber", sub.ID).Msg("stream subscriber connected")

	// Reader goroutine: drains client frames and detects disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(sub)
		_ = conn.Close()
		s.logger.Info().Str("channel", channel).Str("subscriber", sub.ID).Msg("stream subscriber disconnected")
	}()

	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				// Hub dropped us (slow consumer); tell the client why.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
