package domain

import (
	"time"
)

// Conversation is the durable two-party thread. The unordered participant
// pair is stored canonically (UserLow < UserHigh) under a composite unique
// index, which is what enforces at-most-one conversation per pair across
// concurrent StartOrGet calls.
type Conversation struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	UserLow  string `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:1" json:"user_low"`
	UserHigh string `gorm:"size:64;not null;uniqueIndex:idx_conversation_pair,priority:2" json:"user_high"`

	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `gorm:"index" json:"last_message_at"`

	// per-participant visibility flags; the conversation record itself is
	// never hard-deleted
	HiddenForLow   bool `json:"-"`
	HiddenForHigh  bool `json:"-"`
	DeletedForLow  bool `json:"-"`
	DeletedForHigh bool `json:"-"`
}

// NormalizePair order two user ids canonically
func NormalizePair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}

// HasParticipant report whether the user belongs to the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// PeerOf the other participant
func (c *Conversation) PeerOf(userID string) string {
	if c.UserLow == userID {
		return c.UserHigh
	}
	return c.UserLow
}

// HiddenFor per-participant hidden flag
func (c *Conversation) HiddenFor(userID string) bool {
	if c.UserLow == userID {
		return c.HiddenForLow
	}
	return c.HiddenForHigh
}

// DeletedFor per-participant deleted flag
func (c *Conversation) DeletedFor(userID string) bool {
	if c.UserLow == userID {
		return c.DeletedForLow
	}
	return c.DeletedForHigh
}
