package router

import (
	"context"

	"civic_message_service/internal/messaging/app"
	"civic_message_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes register messaging routes
func RegisterRoutes(r *fiber.App, resolver middlewares.PrincipalResolver, ws *app.MessagingWebsocketHandler, rest *app.MessagingRestHandler) {
	r.Use(middlewares.AuthMiddleware(resolver))

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		ws.HandleConnection(context.Background(), c)
	}))

	// synchronous fallback for clients without a live connection
	r.Get("/conversations", rest.ListConversations)
	r.Post("/conversations", rest.StartConversation)
	r.Get("/conversations/:id", rest.GetConversation)
	r.Post("/conversations/:id/hide", rest.HideConversation)
	r.Delete("/conversations/:id", rest.DeleteConversation)

	r.Post("/conversations/:id/messages", rest.SendMessage)
	r.Get("/conversations/:id/messages", rest.PageMessages)
	r.Post("/conversations/:id/read-all", rest.MarkAllRead)
	r.Post("/conversations/:id/typing", rest.SetTyping)
	r.Get("/conversations/:id/typing", rest.PeerTyping)
	r.Get("/conversations/:id/unread", rest.ConversationUnread)

	r.Post("/messages/delivered", rest.MarkAllDelivered)
	r.Post("/messages/:id/read", rest.MarkRead)
	r.Patch("/messages/:id", rest.EditMessage)
	r.Delete("/messages/:id", rest.DeleteMessage)

	r.Get("/unread", rest.UnreadCounts)
	r.Get("/users/search", rest.SearchUsers)
	r.Get("/users/:id", rest.GetUser)
	r.Get("/users/:id/presence", rest.UserPresence)
}
