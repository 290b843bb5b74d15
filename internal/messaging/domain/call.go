package domain

import "encoding/json"

// CallEvent call signaling event type
type CallEvent string

const (
	// CallRequest caller asks to open a call
	CallRequest CallEvent = "request"
	// CallAccept receiver accepts
	CallAccept CallEvent = "accept"
	// CallReject receiver declines
	CallReject CallEvent = "reject"
	// CallCandidate ICE candidate exchange
	CallCandidate CallEvent = "candidate"
	// CallHangup either side ends the call
	CallHangup CallEvent = "hangup"
)

// CallSignal is relayed verbatim between the two conversation participants.
// It is never persisted; an unreachable counterpart simply misses it.
type CallSignal struct {
	Event          CallEvent       `json:"event"`
	ConversationID string          `json:"conversation_id"`
	CallerID       string          `json:"caller_id"`
	ReceiverID     string          `json:"receiver_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Counterpart the participant the signal should be forwarded to, given who
// submitted it. ok is false when the sender is neither party.
func (s *CallSignal) Counterpart(senderID string) (string, bool) {
	switch senderID {
	case s.CallerID:
		return s.ReceiverID, true
	case s.ReceiverID:
		return s.CallerID, true
	}
	return "", false
}
