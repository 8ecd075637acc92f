// Package ws carries the signaling transport: one WebSocket per participant
// per call. The transport owns connection lifecycle and fan-out; what a
// message means is decided by the signaling router.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inspectcall-backend/internal/domain"
	"inspectcall-backend/internal/service/session"
	"inspectcall-backend/internal/service/signaling"
	"inspectcall-backend/pkg/constants"
	apperrors "inspectcall-backend/pkg/errors"
	"inspectcall-backend/pkg/logger"
	"inspectcall-backend/pkg/metrics"
)

// SignalingHub manages WebSocket signaling connections for inspection calls
type SignalingHub struct {
	// Connected clients per call, keyed by participant
	calls map[uuid.UUID]map[uuid.UUID]*SignalingClient

	// Cancel functions for call subscriptions
	subscriptionCancels map[uuid.UUID]context.CancelFunc

	// Redis client for cross-instance Pub/Sub
	redisClient *redis.Client

	registry *session.Registry
	router   *signaling.Router
	metrics  *metrics.Metrics

	// instanceID marks messages this instance published so its own
	// subscription can skip them
	instanceID string

	mu sync.RWMutex

	register   chan *SignalingClient
	unregister chan *SignalingClient
	outbound   chan *outboundMessage

	// Semaphore for limiting concurrent connections
	semaphore chan struct{}
}

// SignalingClient represents one participant's WebSocket attachment
type SignalingClient struct {
	hub    *SignalingHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	callID uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// outboundMessage is one payload addressed to one participant of one call
type outboundMessage struct {
	callID  uuid.UUID
	to      uuid.UUID
	payload []byte
}

// signalingEnvelope is the Redis Pub/Sub wire format. Origin lets the
// publishing instance skip its own fan-out.
type signalingEnvelope struct {
	Origin  string                   `json:"origin"`
	To      uuid.UUID                `json:"to"`
	Message *domain.SignalingMessage `json:"message"`
}

// errorFrame is sent to a client whose message was rejected. It sits outside
// the signaling type set on purpose; clients treat it as an ack failure, not
// a routed message.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var signalingUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}
		return GetAllowedOrigins()[origin]
	},
}

// NewSignalingHub creates a new signaling hub
func NewSignalingHub(redisClient *redis.Client, registry *session.Registry, router *signaling.Router, m *metrics.Metrics) *SignalingHub {
	hub := &SignalingHub{
		calls:               make(map[uuid.UUID]map[uuid.UUID]*SignalingClient),
		subscriptionCancels: make(map[uuid.UUID]context.CancelFunc),
		redisClient:         redisClient,
		registry:            registry,
		router:              router,
		metrics:             m,
		instanceID:          uuid.NewString(),
		register:            make(chan *SignalingClient),
		unregister:          make(chan *SignalingClient),
		outbound:            make(chan *outboundMessage, 256),
		semaphore:           make(chan struct{}, constants.MaxSignalingConnections),
	}

	go hub.run()

	return hub
}

// run handles hub membership and local fan-out
func (h *SignalingHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.calls[client.callID] == nil {
				h.calls[client.callID] = make(map[uuid.UUID]*SignalingClient)

				ctx, cancel := context.WithCancel(context.Background())
				h.subscriptionCancels[client.callID] = cancel

				// Subscribe to the call's channel so deliveries from other
				// instances reach clients attached here
				go h.subscribeToCall(ctx, client.callID)
			}
			// A reconnect replaces the previous attachment
			if prev, ok := h.calls[client.callID][client.userID]; ok {
				close(prev.send)
				prev.cancel()
			}
			h.calls[client.callID][client.userID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.detach(client)

		case msg := <-h.outbound:
			h.mu.RLock()
			var target *SignalingClient
			if clients, ok := h.calls[msg.callID]; ok {
				target = clients[msg.to]
			}
			h.mu.RUnlock()

			if target == nil {
				continue
			}

			select {
			case target.send <- msg.payload:
				h.metrics.RecordWebSocketMessage("signaling", "outbound")
			default:
				// Slow consumer; drop the attachment, the client will
				// reconnect
				h.detach(target)
			}
		}
	}
}

// detach removes a client's attachment and releases its registry presence.
// A no-op when the client has already been replaced by a reconnect; only the
// current attachment owns the registry presence.
func (h *SignalingHub) detach(client *SignalingClient) {
	h.mu.Lock()
	detached := false
	if clients, ok := h.calls[client.callID]; ok {
		if current, exists := clients[client.userID]; exists && current == client {
			delete(clients, client.userID)
			close(client.send)
			client.cancel()
			detached = true

			if len(clients) == 0 {
				if cancel, ok := h.subscriptionCancels[client.callID]; ok {
					cancel()
					delete(h.subscriptionCancels, client.callID)
				}
				delete(h.calls, client.callID)
			}
		}
	}
	h.mu.Unlock()

	if detached {
		h.registry.Disconnect(context.Background(), client.callID, client.userID)
	}
}

// Deliver routes one encoded message to a participant. The participant may
// be attached to this instance or to a peer; local fan-out and Pub/Sub both
// get the message, and peers skip envelopes they published themselves.
func (h *SignalingHub) Deliver(ctx context.Context, callID, to uuid.UUID, message *domain.SignalingMessage) {
	payload, err := signaling.EncodeMessage(message)
	if err != nil {
		logger.Error("failed to encode signaling message",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	h.outbound <- &outboundMessage{callID: callID, to: to, payload: payload}

	envelope, err := json.Marshal(&signalingEnvelope{
		Origin:  h.instanceID,
		To:      to,
		Message: message,
	})
	if err != nil {
		return
	}

	channel := signalingChannel(callID)
	if err := h.redisClient.Publish(ctx, channel, envelope).Err(); err != nil {
		logger.Warn("failed to publish signaling message",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}
}

// subscribeToCall feeds deliveries published by other instances into the
// local fan-out
func (h *SignalingHub) subscribeToCall(ctx context.Context, callID uuid.UUID) {
	channel := signalingChannel(callID)

	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("failed to subscribe to signaling channel",
			zap.String("call_id", callID.String()),
			zap.Error(err))
		return
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var envelope signalingEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				logger.Warn("failed to unmarshal signaling envelope",
					zap.String("call_id", callID.String()),
					zap.Error(err))
				continue
			}

			// Skip our own publications; local clients already got them
			if envelope.Origin == h.instanceID || envelope.Message == nil {
				continue
			}

			payload, err := signaling.EncodeMessage(envelope.Message)
			if err != nil {
				continue
			}

			h.outbound <- &outboundMessage{callID: callID, to: envelope.To, payload: payload}
		}
	}
}

// ServeWS handles WebSocket attachment requests for signaling
func (h *SignalingHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", constants.MaxSignalingConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	callIDStr := c.Query("call_id")
	if callIDStr == "" {
		release()
		c.JSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	callID, err := uuid.Parse(callIDStr)
	if err != nil {
		release()
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call_id"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	// Only assigned participants may attach; check before paying for the
	// upgrade
	if err := h.registry.Connect(c.Request.Context(), callID, userID); err != nil {
		release()
		appErr := apperrors.GetAppError(err)
		if appErr != nil {
			c.JSON(appErr.StatusCode, gin.H{"error": appErr.Message})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join call"})
		}
		return
	}

	conn, err := signalingUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.registry.Disconnect(context.Background(), callID, userID)
		release()
		logger.Warn("WebSocket upgrade failed",
			zap.String("call_id", callID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &SignalingClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, constants.SignalingSendBuffer),
		userID: userID,
		callID: callID,
		ctx:    ctx,
		cancel: cancel,
	}

	h.metrics.WebSocketConnectionOpened()
	client.hub.register <- client

	go client.writePump()
	go client.readPump(release)
}

// readPump reads messages from the WebSocket, routes them, and hands
// deliveries back to the hub
func (c *SignalingClient) readPump(release func()) {
	defer func() {
		c.hub.unregister <- c
		c.hub.metrics.WebSocketConnectionClosed()
		c.conn.Close()
		release()
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("call_id", c.callID.String()),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		c.hub.metrics.RecordWebSocketMessage("signaling", "inbound")

		msg, err := signaling.DecodeMessage(raw)
		if err != nil {
			c.hub.metrics.RecordWebSocketError("decode")
			c.sendError(err)
			continue
		}

		// The transport is authoritative for identity; whatever the frame
		// claims, it speaks for this attachment only
		msg.CallID = c.callID.String()
		msg.UserID = c.userID.String()

		deliveries, err := c.hub.router.Route(c.ctx, msg)
		if err != nil {
			c.hub.metrics.RecordWebSocketError("route")
			c.sendError(err)
			continue
		}

		for _, delivery := range deliveries {
			c.hub.Deliver(c.ctx, c.callID, delivery.To, delivery.Message)
		}
	}
}

// sendError pushes an error frame to this client without closing the
// connection
func (c *SignalingClient) sendError(err error) {
	frame := errorFrame{Type: "error"}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		frame.Code = string(appErr.Code)
		frame.Message = appErr.Message
	} else {
		frame.Code = string(apperrors.ErrCodeInternal)
		frame.Message = "internal error"
	}

	payload, marshalErr := json.Marshal(frame)
	if marshalErr != nil {
		return
	}

	select {
	case c.send <- payload:
	default:
	}
}

// writePump writes messages to the WebSocket
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func signalingChannel(callID uuid.UUID) string {
	return fmt.Sprintf("call:%s:signaling", callID)
}
