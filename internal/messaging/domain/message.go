package domain

import (
	"time"
)

// DeliveryState three ordered levels of a message's lifecycle
type DeliveryState string

const (
	// DeliverySent persisted, not yet confirmed delivered
	DeliverySent DeliveryState = "sent"
	// DeliveryDelivered recipient's client has received it
	DeliveryDelivered DeliveryState = "delivered"
	// DeliveryRead recipient has viewed it
	DeliveryRead DeliveryState = "read"
)

// Rank numeric order of the state, transitions only ever increase it
func (s DeliveryState) Rank() int {
	switch s {
	case DeliveryDelivered:
		return 1
	case DeliveryRead:
		return 2
	}
	return 0
}

// DefaultMaxMessageLength bound on the body when config does not override it
const DefaultMaxMessageLength = 2000

// Message belongs to exactly one conversation. Seq is the persisted ordering
// key; readers observe a sender's messages in Seq order, wall clock is for
// display only.
type Message struct {
	ID             string `gorm:"type:uuid;primaryKey" json:"id"`
	Seq            int64  `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	ConversationID string `gorm:"type:uuid;index;not null" json:"conversation_id"`
	SenderID       string `gorm:"size:64;index;not null" json:"sender_id"`
	Body           string `gorm:"type:text" json:"body"`

	State       DeliveryState `gorm:"size:16;default:'sent';index" json:"state"`
	CreatedAt   time.Time     `json:"created_at"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	ReadAt      *time.Time    `json:"read_at,omitempty"`

	Edited   bool       `json:"edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`
	Deleted  bool       `gorm:"index" json:"-"`
}

// ConversationUnread unread count of one conversation for one user
type ConversationUnread struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int64  `json:"unread_count"`
}

// PresenceEvent broadcast on connect/disconnect
type PresenceEvent struct {
	UserID   string `json:"user_id"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen"`
}

// MessageEvent lifecycle record emitted to the platform event stream,
// best-effort only
type MessageEvent struct {
	Kind           string `json:"kind"` // sent / delivered / read
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Timestamp      int64  `json:"timestamp"`
}
