package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	errprocess "civic_message_service/pkg/err"
	"civic_message_service/pkg/logger"
	"civic_message_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// MessagingWebsocketHandler multiplexes one authenticated connection onto
// the messaging use cases: inbound commands in, delivery/receipt/typing/
// presence/call events out.
type MessagingWebsocketHandler struct {
	conversationUC *ConversationUseCase
	messageUC      *MessageUseCase
	deliveryUC     *DeliveryUseCase
	typingUC       *TypingUseCase
	callRelay      *CallRelayUseCase
	presence       repository.PresenceRepository
	registry       *ConnectionRegistry

	// presence-changed fan-out goes over redis pubsub; global broadcast was
	// chosen over per-peer precision, every session hears every transition
	// and filters client side
	presencePubSub *repository.RedisPubSub
}

// NewMessagingWebsocketHandler create MessagingWebsocketHandler
func NewMessagingWebsocketHandler(
	conversationUC *ConversationUseCase,
	messageUC *MessageUseCase,
	deliveryUC *DeliveryUseCase,
	typingUC *TypingUseCase,
	callRelay *CallRelayUseCase,
	presence repository.PresenceRepository,
	registry *ConnectionRegistry,
	pubsub *repository.RedisPubSub,
) *MessagingWebsocketHandler {
	return &MessagingWebsocketHandler{
		conversationUC: conversationUC,
		messageUC:      messageUC,
		deliveryUC:     deliveryUC,
		typingUC:       typingUC,
		callRelay:      callRelay,
		presence:       presence,
		registry:       registry,
		presencePubSub: pubsub,
	}
}

func (h *MessagingWebsocketHandler) broadcastPresence(userID string, online bool) {
	if h.presencePubSub == nil {
		return
	}
	ev := domain.PresenceEvent{
		UserID:   userID,
		Online:   online,
		LastSeen: time.Now().Unix(),
	}
	if err := h.presencePubSub.Publish(repository.PresenceChannel, ev); err != nil {
		logger.Log.Warn("presence broadcast failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// HandleConnection is the WebSocket entry point for one authenticated user.
// Last session wins: a fresh connection evicts and closes the previous one.
func (h *MessagingWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	principal := conn.Locals(middlewares.PrincipalID)
	userID, ok := principal.(string)
	if !ok || userID == "" {
		logger.Log.Error("websocket connection without resolved principal")
		conn.Close()
		return
	}
	logger.Log.Info("websocket connected", zap.String("user_id", userID))

	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	// every write to this connection, including pushes from other users'
	// send paths, goes through the session's write lock
	session := newSessionConn(conn)
	if prev := h.registry.Add(userID, session); prev != nil {
		prev.Close()
	}

	defer func() {
		ticker.Stop()
		logger.Log.Info("websocket close", zap.String("user_id", userID))
		removed := h.registry.Remove(userID, session)
		conn.Close()
		cancel()
		// a replacement session keeps the user online
		if removed {
			if err := h.presence.SetOffline(ctx, userID); err != nil {
				logger.Log.Warn("presence offline failed", zap.String("user_id", userID), zap.Error(err))
			}
			h.broadcastPresence(userID, false)
		}
	}()

	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("received pong", zap.String("user_id", userID))
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	if err := h.presence.SetOnline(ctx, userID); err != nil {
		logger.Log.Warn("presence online failed", zap.String("user_id", userID), zap.Error(err))
	}
	h.broadcastPresence(userID, true)

	// presence-changed events from every gateway instance land here and are
	// forwarded down this connection
	if h.presencePubSub != nil {
		h.presencePubSub.Subscribe(ctxClose, repository.PresenceChannel, func(ev domain.PresenceEvent) {
			if ev.UserID == userID {
				return
			}
			h.sendResponse(session, domain.WSResponse{
				Action:  string(domain.EventPresenceChanged),
				Success: true,
				Payload: map[string]interface{}{
					"user_id":   ev.UserID,
					"online":    ev.Online,
					"last_seen": ev.LastSeen,
				},
			})
		})
	}

	// flush the undelivered backlog over the now-live connection
	if flushed, err := h.deliveryUC.FlushOnConnect(ctx, userID); err != nil {
		logger.Log.Warn("backlog flush failed", zap.String("user_id", userID), zap.Error(err))
	} else if flushed > 0 {
		logger.Log.Info("backlog flushed", zap.String("user_id", userID), zap.Int64("count", flushed))
	}

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := session.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("connection closed", zap.String("user_id", userID))
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		h.execWebsocketAction(ctx, session, userID, mt, message)
	}
}

func (h *MessagingWebsocketHandler) execWebsocketAction(ctx context.Context, conn ClientConn, userID string, mt int, msg []byte) {
	switch mt {
	case websocket.TextMessage:
		h.textMessageAction(ctx, conn, userID, msg)
	default:
		h.sendError(conn, "unknown message type")
	}
}

func (h *MessagingWebsocketHandler) textMessageAction(ctx context.Context, conn ClientConn, userID string, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		log.Printf("json unmarshal error: %v", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false, Payload: map[string]interface{}{}}
	switch req.Action {
	case string(domain.SendMessage):
		m, err := h.deliveryUC.Send(ctx, req.ConversationID, userID, req.Content)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["message_id"] = m.ID
			resp.Payload["seq"] = m.Seq
			resp.Payload["state"] = string(m.State)
		}

	case string(domain.SetTyping):
		if err := h.typingUC.SetTyping(ctx, req.ConversationID, userID, req.IsTyping); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.MarkRead):
		if err := h.deliveryUC.MarkRead(ctx, req.MessageID, userID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	case string(domain.MarkAllRead):
		count, err := h.deliveryUC.MarkAllRead(ctx, req.ConversationID, userID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["count"] = count
		}

	case string(domain.MarkDelivered):
		count, err := h.deliveryUC.MarkAllUndelivered(ctx, userID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			resp.Payload["count"] = count
		}

	case string(domain.GetUnread):
		unread, err := h.messageUC.UnreadByConversation(ctx, userID)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
			for _, u := range unread {
				resp.Payload[u.ConversationID] = u.UnreadCount
			}
		}

	case string(domain.CallSignalAction):
		if req.Signal == nil {
			resp.Error = errprocess.ErrInvalidArgument.Error()
			break
		}
		// relay is best-effort: authorization violations are logged and
		// dropped inside, never surfaced
		h.callRelay.Relay(ctx, userID, *req.Signal)
		resp.Success = true

	default:
		h.sendError(conn, "unknown action")
		return
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err ",
			zap.String("UserID", userID),
			zap.String("Action", req.Action),
			zap.String("err", resp.Error))
	}
	h.sendResponse(conn, resp)
}

// sendResponse write JSON to the client
func (h *MessagingWebsocketHandler) sendResponse(conn ClientConn, resp domain.WSResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		if !errors.Is(err, websocket.ErrCloseSent) {
			logger.Log.Errorf("write message error:", err)
		}
	}
}

func (h *MessagingWebsocketHandler) sendError(conn ClientConn, errorMsg string) {
	h.sendResponse(conn, domain.WSResponse{
		Action:  "error",
		Success: false,
		Payload: map[string]interface{}{
			"error": errorMsg,
		},
	})
}
