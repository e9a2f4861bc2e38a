package server

import (
	"context"
	"sync"
	"time"

	"github.com/Meet1306/Whiteboard/internal/auth"
	"github.com/Meet1306/Whiteboard/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	websocketWriteWait  = 10 * time.Second
	websocketPongWait   = 60 * time.Second
	websocketPingPeriod = (websocketPongWait * 9) / 10
	websocketReadLimit  = 4 << 20
)

// wsConnection is one websocket client. The read loop runs on the handler
// goroutine and processes frames one at a time; the write loop drains send.
type wsConnection struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newWSConnection(id string, conn *websocket.Conn, bufferSize int, logger *zap.Logger) *wsConnection {
	return &wsConnection{
		id:     id,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, bufferSize),
	}
}

func (c *wsConnection) ID() string {
	return c.id
}

// Send queues a frame without blocking; a full buffer drops it.
func (c *wsConnection) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConnection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *wsConnection) readLoop(ctx context.Context, gateway *realtime.Gateway, session *realtime.Session) {
	c.conn.SetReadLimit(websocketReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(websocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(websocketPongWait))
	})
	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = gateway.Dispatch(ctx, session, frame)
	}
}

func (c *wsConnection) writeLoop() {
	ticker := time.NewTicker(websocketPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(websocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *httpHandler) handleWebSocket(c *gin.Context) {
	token := auth.TokenFromRequest(c.Request)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connectionID, err := uuid.NewV7()
	if err != nil {
		h.logger.Error("connection id generation failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	connection := newWSConnection(connectionID.String(), conn, h.sendBuffer, h.logger)
	session := h.gateway.Connect(connection, token)

	go connection.writeLoop()
	connection.readLoop(c.Request.Context(), h.gateway, session)

	h.gateway.Disconnect(session)
	connection.closeSend()
}
