package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleStream upgrades to a WebSocket and pushes every progress snapshot
// for the conversation until the client goes away. The retained snapshot is
// sent first so a late-joining client sees the full accumulated state
// immediately.
func (s *Server) handleStream(c *gin.Context) {
	conversationID := c.Param("conversationID")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.logger.Warn("websocket upgrade failed for %s: %v", conversationID, err)
		return
	}
	defer conn.Close()

	updates, cancel := s.hub.Subscribe(conversationID)
	defer cancel()

	if snapshot, ok := s.hub.Latest(conversationID); ok {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}

	// Reader goroutine: the client sends nothing meaningful, but reads are
	// needed to notice disconnects and answer control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snapshot); err != nil {
				s.logger.Debug("websocket write for %s failed: %v", conversationID, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
