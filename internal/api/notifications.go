package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 16
)

func (h *Handler) listNotifications(c *gin.Context) {
	respond(c, http.StatusOK, currentSession(c), nil)
}

func (h *Handler) dismissNotification(c *gin.Context) {
	sess := currentSession(c)
	sess.Notifications.Remove(c.Param("id"))
	respond(c, http.StatusOK, sess, nil)
}

func (h *Handler) clearNotifications(c *gin.Context) {
	sess := currentSession(c)
	sess.Notifications.ClearAll()
	respond(c, http.StatusOK, sess, nil)
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// streamNotifications pushes every new notification of the session to a
// websocket until either side closes it
func (h *Handler) streamNotifications(c *gin.Context) {
	sess := currentSession(c)

	up := h.upgrader()
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	updates, cancel := sess.Notifications.Subscribe(wsBuffer)
	defer cancel()

	// Reads only serve to notice the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case n, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(n); err != nil {
				h.logger.Debug("WebSocket write failed", zap.String("session_id", sess.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
