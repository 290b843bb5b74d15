package app

import (
	"errors"

	"civic_message_service/internal/directory"
	"civic_message_service/internal/messaging/repository"
	errprocess "civic_message_service/pkg/err"
	"civic_message_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
)

// MessagingRestHandler synchronous fallback for clients without a live
// connection. Every operation goes through the same use cases as the
// websocket path, so both produce identical persisted state.
type MessagingRestHandler struct {
	conversationUC *ConversationUseCase
	messageUC      *MessageUseCase
	deliveryUC     *DeliveryUseCase
	typingUC       *TypingUseCase
	presence       repository.PresenceRepository
	users          directory.UserDirectory
}

// NewMessagingRestHandler create MessagingRestHandler
func NewMessagingRestHandler(
	conversationUC *ConversationUseCase,
	messageUC *MessageUseCase,
	deliveryUC *DeliveryUseCase,
	typingUC *TypingUseCase,
	presence repository.PresenceRepository,
	users directory.UserDirectory,
) *MessagingRestHandler {
	return &MessagingRestHandler{
		conversationUC: conversationUC,
		messageUC:      messageUC,
		deliveryUC:     deliveryUC,
		typingUC:       typingUC,
		presence:       presence,
		users:          users,
	}
}

func principal(c *fiber.Ctx) string {
	userID, _ := c.Locals(middlewares.PrincipalID).(string)
	return userID
}

// fail map the error taxonomy onto HTTP status codes
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errprocess.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, errprocess.ErrNotAuthorized):
		status = fiber.StatusForbidden
	case errors.Is(err, errprocess.ErrNotFound):
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// ListConversations GET /conversations
func (h *MessagingRestHandler) ListConversations(c *fiber.Ctx) error {
	convs, err := h.conversationUC.ListForUser(c.Context(), principal(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": convs})
}

type startConversationRequest struct {
	PeerID         string `json:"peer_id"`
	InitialMessage string `json:"initial_message"`
}

// StartConversation POST /conversations, start-or-get, with an optional
// initial message delivered in the same call
func (h *MessagingRestHandler) StartConversation(c *fiber.Ctx) error {
	var req startConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errprocess.InvalidArgument("malformed request body"))
	}
	userID := principal(c)

	conv, err := h.conversationUC.StartOrGet(c.Context(), userID, req.PeerID)
	if err != nil {
		return fail(c, err)
	}

	resp := fiber.Map{"conversation": conv}
	if req.InitialMessage != "" {
		msg, err := h.deliveryUC.Send(c.Context(), conv.ID, userID, req.InitialMessage)
		if err != nil {
			return fail(c, err)
		}
		resp["message"] = msg
	}
	return c.JSON(resp)
}

// GetConversation GET /conversations/:id
func (h *MessagingRestHandler) GetConversation(c *fiber.Ctx) error {
	conv, err := h.conversationUC.Get(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"conversation": conv})
}

// HideConversation POST /conversations/:id/hide
func (h *MessagingRestHandler) HideConversation(c *fiber.Ctx) error {
	if err := h.conversationUC.Hide(c.Context(), c.Params("id"), principal(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// DeleteConversation DELETE /conversations/:id, soft delete for the
// requester only
func (h *MessagingRestHandler) DeleteConversation(c *fiber.Ctx) error {
	if err := h.conversationUC.SoftDelete(c.Context(), c.Params("id"), principal(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage POST /conversations/:id/messages
func (h *MessagingRestHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errprocess.InvalidArgument("malformed request body"))
	}
	msg, err := h.deliveryUC.Send(c.Context(), c.Params("id"), principal(c), req.Content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

// PageMessages GET /conversations/:id/messages?page=&page_size=, newest first
func (h *MessagingRestHandler) PageMessages(c *fiber.Ctx) error {
	msgs, err := h.messageUC.Page(c.Context(), c.Params("id"), principal(c),
		c.QueryInt("page", 0), c.QueryInt("page_size", 0))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// MarkRead POST /messages/:id/read
func (h *MessagingRestHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.deliveryUC.MarkRead(c.Context(), c.Params("id"), principal(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// MarkAllRead POST /conversations/:id/read-all
func (h *MessagingRestHandler) MarkAllRead(c *fiber.Ctx) error {
	count, err := h.deliveryUC.MarkAllRead(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

// MarkAllDelivered POST /messages/delivered, bulk SENT -> DELIVERED for
// everything addressed to the caller
func (h *MessagingRestHandler) MarkAllDelivered(c *fiber.Ctx) error {
	count, err := h.deliveryUC.MarkAllUndelivered(c.Context(), principal(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage PATCH /messages/:id
func (h *MessagingRestHandler) EditMessage(c *fiber.Ctx) error {
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errprocess.InvalidArgument("malformed request body"))
	}
	if err := h.messageUC.Edit(c.Context(), c.Params("id"), req.Content, principal(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// DeleteMessage DELETE /messages/:id, sender-only soft delete
func (h *MessagingRestHandler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.messageUC.SoftDelete(c.Context(), c.Params("id"), principal(c)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// UnreadCounts GET /unread, per-conversation plus global total
func (h *MessagingRestHandler) UnreadCounts(c *fiber.Ctx) error {
	userID := principal(c)
	perConv, err := h.messageUC.UnreadByConversation(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	total, err := h.messageUC.TotalUnread(c.Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": perConv, "total": total})
}

// ConversationUnread GET /conversations/:id/unread
func (h *MessagingRestHandler) ConversationUnread(c *fiber.Ctx) error {
	count, err := h.messageUC.UnreadCount(c.Context(), c.Params("id"), principal(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}

type setTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// SetTyping POST /conversations/:id/typing
func (h *MessagingRestHandler) SetTyping(c *fiber.Ctx) error {
	var req setTypingRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, errprocess.InvalidArgument("malformed request body"))
	}
	if err := h.typingUC.SetTyping(c.Context(), c.Params("id"), principal(c), req.IsTyping); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// PeerTyping GET /conversations/:id/typing, whether the peer is typing
func (h *MessagingRestHandler) PeerTyping(c *fiber.Ctx) error {
	userID := principal(c)
	conv, err := h.conversationUC.Get(c.Context(), c.Params("id"), userID)
	if err != nil {
		return fail(c, err)
	}
	typing, err := h.typingUC.IsTyping(c.Context(), conv.ID, conv.PeerOf(userID))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"is_typing": typing})
}

// GetUser GET /users/:id, resolve a display identity from the directory
func (h *MessagingRestHandler) GetUser(c *fiber.Ctx) error {
	profile, err := h.users.FindByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"user": profile})
}

// UserPresence GET /users/:id/presence, online flag plus last-seen
func (h *MessagingRestHandler) UserPresence(c *fiber.Ctx) error {
	userID := c.Params("id")
	online, err := h.presence.IsOnline(c.Context(), userID)
	if err != nil {
		return fail(c, errprocess.Internal("presence lookup failed", err))
	}
	resp := fiber.Map{"user_id": userID, "online": online}
	if !online {
		lastSeen, err := h.presence.LastSeen(c.Context(), userID)
		if err == nil && !lastSeen.IsZero() {
			resp["last_seen"] = lastSeen.Unix()
		}
	}
	return c.JSON(resp)
}

// SearchUsers GET /users/search?name=&followed=, directory lookup for
// starting new conversations
func (h *MessagingRestHandler) SearchUsers(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return fail(c, errprocess.InvalidArgument("name query is required"))
	}
	profiles, err := h.users.SearchByName(c.Context(), name, 20)
	if err != nil {
		return fail(c, err)
	}

	if c.QueryBool("followed", false) {
		userID := principal(c)
		filtered := profiles[:0]
		for _, p := range profiles {
			followed, err := h.users.IsFollowedBy(c.Context(), p.UserID, userID)
			if err != nil {
				continue
			}
			if followed {
				filtered = append(filtered, p)
			}
		}
		profiles = filtered
	}
	return c.JSON(fiber.Map{"users": profiles})
}
