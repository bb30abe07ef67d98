package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/serkee5559/coin-portal/internal/usecase/broadcast"
	"github.com/serkee5559/coin-portal/pkg/logger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 10,
	WriteBufferSize: 1 << 14,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// MarketStream upgrades the connection and streams snapshot, delta and
// signal frames from the subscriber queue until either side goes away.
func (h *Handler) MarketStream(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), err, logger.Field{
			Key:   "action",
			Value: "ws_upgrade",
		})
		return
	}
	defer conn.Close()

	sub, err := h.broadcaster.Subscribe()
	if err != nil {
		h.logger.ErrorContext(ctx.Request.Context(), err, logger.Field{
			Key:   "action",
			Value: "ws_subscribe",
		})
		return
	}
	defer h.broadcaster.Unsubscribe(sub)

	reqCtx := ctx.Request.Context()

	// Read pump: clients send nothing meaningful; reading surfaces closes
	// and keeps the pong handler running.
	go func() {
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.broadcaster.Unsubscribe(sub)
				return
			}
		}
	}()

	// Bridge the blocking queue into a channel so the write pump can
	// interleave pings.
	frames := make(chan broadcast.Message)
	go func() {
		defer close(frames)
		for {
			msg, err := sub.Next(reqCtx)
			if err != nil {
				return
			}
			select {
			case frames <- msg:
			case <-reqCtx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-reqCtx.Done():
			return
		}
	}
}
