package domain

// Action websocket request action
type Action string

const (
	// SendMessage websocket action send_message
	SendMessage Action = "send_message"
	// SetTyping websocket action set_typing
	SetTyping Action = "set_typing"
	// MarkRead websocket action mark_read
	MarkRead Action = "mark_read"
	// MarkAllRead websocket action mark_all_read
	MarkAllRead Action = "mark_all_read"
	// MarkDelivered websocket action mark_delivered (all undelivered for me)
	MarkDelivered Action = "mark_delivered"
	// GetUnread websocket action get_unread
	GetUnread Action = "get_unread"
	// CallSignalAction websocket action call_signal
	CallSignalAction Action = "call_signal"
)

// server -> client event actions
const (
	// EventNewMessage pushed to the recipient on delivery
	EventNewMessage Action = "new_message"
	// EventReadReceipt pushed to the sender when the recipient reads
	EventReadReceipt Action = "read_receipt"
	// EventTypingStatus pushed to the peer while composing
	EventTypingStatus Action = "typing_status"
	// EventPresenceChanged pushed on connect/disconnect of any user
	EventPresenceChanged Action = "presence_changed"
	// EventCallSignal forwarded call signaling
	EventCallSignal Action = "call_signal_forwarded"
)

// WSRequest websocket Request
type WSRequest struct {
	Action         string      `json:"action"`
	ConversationID string      `json:"conversation_id"`
	MessageID      string      `json:"message_id"`
	Content        string      `json:"content"`
	IsTyping       bool        `json:"is_typing"`
	Signal         *CallSignal `json:"signal,omitempty"`
}

// WSResponse websocket Response, also the shape of pushed server events
type WSResponse struct {
	Action  string                 `json:"action"`
	Success bool                   `json:"success"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Error   string                 `json:"error,omitempty"`
}
