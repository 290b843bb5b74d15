package app

import (
	"context"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	"civic_message_service/pkg/logger"

	"go.uber.org/zap"
)

// CallRelayUseCase stateless forwarder of call-setup/teardown signals
// between the two conversation participants. Signals are never stored and
// never queued: an unreachable counterpart simply misses the signal, the
// call-level timeout lives in the clients.
type CallRelayUseCase struct {
	convRepo repository.ConversationRepository
	registry *ConnectionRegistry
}

// NewCallRelayUseCase init call relay
func NewCallRelayUseCase(convRepo repository.ConversationRepository, registry *ConnectionRegistry) *CallRelayUseCase {
	return &CallRelayUseCase{convRepo: convRepo, registry: registry}
}

// Relay forward the signal verbatim to the counterpart's live connection.
// Authorization violations are logged and the signal dropped; relay is
// best-effort so nothing propagates back to the submitter.
func (uc *CallRelayUseCase) Relay(ctx context.Context, senderID string, sig domain.CallSignal) {
	counterpart, ok := sig.Counterpart(senderID)
	if !ok {
		logger.Log.Warn("call signal from non-party dropped",
			zap.String("sender_id", senderID),
			zap.String("conversation_id", sig.ConversationID),
			zap.String("event", string(sig.Event)))
		return
	}

	conv, err := uc.convRepo.FindByID(ctx, sig.ConversationID)
	if err != nil {
		logger.Log.Warn("call signal conversation lookup failed",
			zap.String("conversation_id", sig.ConversationID), zap.Error(err))
		return
	}
	if conv == nil || !conv.HasParticipant(sig.CallerID) || !conv.HasParticipant(sig.ReceiverID) {
		logger.Log.Warn("call signal parties do not match conversation, dropped",
			zap.String("sender_id", senderID),
			zap.String("conversation_id", sig.ConversationID))
		return
	}

	err = uc.registry.Push(counterpart, domain.WSResponse{
		Action:  string(domain.EventCallSignal),
		Success: true,
		Payload: map[string]interface{}{
			"event":           string(sig.Event),
			"conversation_id": sig.ConversationID,
			"caller_id":       sig.CallerID,
			"receiver_id":     sig.ReceiverID,
			"payload":         sig.Payload,
		},
	})
	if err != nil {
		// counterpart offline or racing to close: drop, calls are live-only
		logger.Log.Info("call signal dropped",
			zap.String("counterpart", counterpart),
			zap.String("event", string(sig.Event)),
			zap.Error(err))
	}
}
