package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"peerpractice-backend/internal/signal"
	"peerpractice-backend/pkg/constants"
	apperrors "peerpractice-backend/pkg/errors"
	"peerpractice-backend/pkg/logger"
)

// Client is one WebSocket connection. Before authentication only an
// authenticate frame is accepted; after it, the client is registered
// with the hub as the user's live connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	connectionID  string
	userID        uuid.UUID
	authenticated bool

	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, constants.WebSocketSendBuffer),
		done:         make(chan struct{}),
		connectionID: uuid.NewString(),
	}
}

// close tears down the connection; safe to call more than once. The
// send channel is never closed because the hub may be pushing to it
// concurrently; writers bail out via done instead.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// opCtx returns a context for one service operation. Operations must
// not inherit the connection lifetime: disconnect cleanup runs after
// the transport is already gone.
func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), constants.DefaultTimeout)
}

// readPump reads frames until the connection dies, then runs the
// disconnect cleanup exactly once
func (c *Client) readPump() {
	defer func() {
		authoritative := c.hub.unregister(c)
		c.close()
		<-c.hub.semaphore

		if authoritative && c.authenticated {
			ctx, cancel := opCtx()
			defer cancel()
			c.hub.service.ConnectionClosed(ctx, c.userID)
		}
	}()

	pongWait := constants.WebSocketPingInterval + constants.WebSocketWriteTimeout
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("connection_id", c.connectionID),
					zap.Error(err))
			}
			break
		}

		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued messages and pings until the send channel
// closes or a write fails
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// sendMessage queues a message for this connection
func (c *Client) sendMessage(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		logger.Warn("Send buffer full, dropping message",
			zap.String("connection_id", c.connectionID))
		c.hub.metrics.RecordWebSocketError("slow_client")
	}
}

// sendError queues a protocol error reply; the connection stays open
func (c *Client) sendError(code, message string) {
	c.hub.metrics.RecordWebSocketError(code)
	c.sendMessage(signal.NewError(code, message))
}

func (c *Client) handleMessage(data []byte) {
	envelope, err := signal.ParseEnvelope(data)
	if err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Message is not valid JSON or has no type")
		return
	}

	c.hub.metrics.RecordWebSocketMessage(envelope.Type, "inbound")

	if !c.authenticated && envelope.Type != signal.TypeAuthenticate {
		c.sendError(signal.ErrCodeNotAuthenticated, "Authenticate first")
		return
	}

	switch envelope.Type {
	case signal.TypeAuthenticate:
		c.handleAuthenticate(data)
	case signal.TypeCallRequest:
		c.handleCallRequest(data)
	case signal.TypeCallResponse:
		c.handleCallResponse(data)
	case signal.TypeCallCancel:
		c.handleCallCancel(data)
	case signal.TypeCallDisconnect:
		c.handleCallDisconnect(data)
	case signal.TypeHeartbeat:
		c.handleHeartbeat()
	default:
		c.sendError(signal.ErrCodeInvalidMessage, "Unknown message type: "+envelope.Type)
	}
}

func (c *Client) handleAuthenticate(data []byte) {
	if c.authenticated {
		c.sendError(signal.ErrCodeInvalidMessage, "Already authenticated")
		return
	}

	var payload signal.AuthenticatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Malformed authenticate payload")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	user, err := c.hub.service.Authenticate(ctx, payload.Token)
	if err != nil {
		logger.Warn("WebSocket authentication failed",
			zap.String("connection_id", c.connectionID),
			zap.Error(err))
		c.sendError(signal.ErrCodeNotAuthenticated, "Authentication failed")
		return
	}

	c.userID = user.UserID
	c.authenticated = true

	// Register before flipping presence so pushes triggered by the
	// presence broadcast reach this connection
	c.hub.register(c)
	c.hub.service.ConnectionOpened(ctx, user.UserID, c.connectionID)

	c.sendMessage(signal.NewAuthenticated(user.UserID))

	logger.Info("WebSocket client authenticated",
		zap.String("user_id", user.UserID.String()),
		zap.String("connection_id", c.connectionID))
}

func (c *Client) handleCallRequest(data []byte) {
	var payload signal.CallRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Malformed call_request payload")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if _, err := c.hub.service.CreateCallRequest(ctx, c.userID, &payload); err != nil {
		c.replyError(err)
	}
}

func (c *Client) handleCallResponse(data []byte) {
	var payload signal.CallResponsePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Malformed call_response payload")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if _, err := c.hub.service.RespondToCallRequest(ctx, c.userID, payload.RequestID, payload.Accepted); err != nil {
		c.replyError(err)
	}
}

func (c *Client) handleCallCancel(data []byte) {
	var payload signal.CallCancelPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Malformed call_cancel payload")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if err := c.hub.service.CancelCallRequest(ctx, c.userID, payload.RequestID); err != nil {
		c.replyError(err)
	}
}

func (c *Client) handleCallDisconnect(data []byte) {
	var payload signal.CallDisconnectPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(signal.ErrCodeInvalidMessage, "Malformed call_disconnect payload")
		return
	}

	ctx, cancel := opCtx()
	defer cancel()

	if _, err := c.hub.service.EndSession(ctx, c.userID, payload.SessionID); err != nil {
		c.replyError(err)
	}
}

func (c *Client) handleHeartbeat() {
	ctx, cancel := opCtx()
	defer cancel()

	c.hub.service.Heartbeat(ctx, c.userID)
	c.sendMessage(signal.NewHeartbeatAck())
}

// replyError maps a service error onto a protocol error reply
func (c *Client) replyError(err error) {
	appErr := apperrors.GetAppError(err)

	var code string
	switch appErr.Code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidInput, apperrors.ErrCodeMissingField:
		code = signal.ErrCodeInvalidMessage
	case apperrors.ErrCodeUnauthorized, apperrors.ErrCodeInvalidToken, apperrors.ErrCodeExpiredToken:
		code = signal.ErrCodeNotAuthenticated
	case apperrors.ErrCodeForbidden:
		code = signal.ErrCodeForbidden
	case apperrors.ErrCodeNotFound, apperrors.ErrCodeUserNotFound,
		apperrors.ErrCodeRequestNotFound, apperrors.ErrCodeSessionNotFound:
		code = signal.ErrCodeNotFound
	case apperrors.ErrCodeRequestExpired:
		code = signal.ErrCodeExpired
	case apperrors.ErrCodeConflict, apperrors.ErrCodeRequestNotPending, apperrors.ErrCodeSessionNotActive:
		code = signal.ErrCodeConflict
	default:
		code = signal.ErrCodeInternal
	}

	c.sendError(code, appErr.Message)
}
