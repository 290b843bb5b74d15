package app

import (
	"context"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	errprocess "civic_message_service/pkg/err"
	"civic_message_service/pkg/logger"

	"go.uber.org/zap"
)

// TypingUseCase ephemeral typing indicators: record with a TTL, broadcast to
// the peer. Transient UI only, never a correctness path.
type TypingUseCase struct {
	convRepo   repository.ConversationRepository
	typingRepo repository.TypingRepository
	registry   *ConnectionRegistry
}

// NewTypingUseCase init typing use case
func NewTypingUseCase(convRepo repository.ConversationRepository, typingRepo repository.TypingRepository, registry *ConnectionRegistry) *TypingUseCase {
	return &TypingUseCase{convRepo: convRepo, typingRepo: typingRepo, registry: registry}
}

// SetTyping record the state (the TTL clears a crashed client's ghost) and
// push a best-effort typing-status event to the peer.
func (uc *TypingUseCase) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return errprocess.NotFound("conversation not found")
	}
	if !conv.HasParticipant(userID) {
		return errprocess.NotAuthorized("not a participant of this conversation")
	}

	if err := uc.typingRepo.SetTyping(ctx, conversationID, userID, isTyping); err != nil {
		return err
	}

	err = uc.registry.Push(conv.PeerOf(userID), domain.WSResponse{
		Action:  string(domain.EventTypingStatus),
		Success: true,
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"user_id":         userID,
			"is_typing":       isTyping,
		},
	})
	if err != nil && err != ErrNotConnected {
		logger.Log.Debug("typing push failed", zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// IsTyping current indicator state
func (uc *TypingUseCase) IsTyping(ctx context.Context, conversationID, userID string) (bool, error) {
	return uc.typingRepo.IsTyping(ctx, conversationID, userID)
}
