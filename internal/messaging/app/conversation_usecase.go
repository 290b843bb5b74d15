package app

import (
	"context"
	"errors"
	"time"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	errprocess "civic_message_service/pkg/err"

	"github.com/google/uuid"
)

// startOrGetAttempts insert/lookup rounds before giving up; the duplicate-key
// retry converges on the second round when both participants race.
const startOrGetAttempts = 3

// ConversationUseCase owns conversation identity and per-participant
// visibility.
type ConversationUseCase struct {
	convRepo repository.ConversationRepository
}

// NewConversationUseCase init conversation use case
func NewConversationUseCase(convRepo repository.ConversationRepository) *ConversationUseCase {
	return &ConversationUseCase{convRepo: convRepo}
}

// StartOrGet idempotent start-or-get for the unordered pair. An existing
// conversation is restored (un-hidden, un-deleted) for the requester; a
// missing one is created under the pair unique index, retrying the lookup on
// a duplicate-key conflict rather than racing check-then-insert.
func (uc *ConversationUseCase) StartOrGet(ctx context.Context, requesterID, peerID string) (*domain.Conversation, error) {
	if requesterID == peerID {
		return nil, errprocess.InvalidArgument("cannot start a conversation with yourself")
	}
	if peerID == "" {
		return nil, errprocess.InvalidArgument("peer id is required")
	}

	low, high := domain.NormalizePair(requesterID, peerID)

	for attempt := 0; attempt < startOrGetAttempts; attempt++ {
		conv, err := uc.convRepo.FindByPair(ctx, low, high)
		if err != nil {
			return nil, errprocess.Internal("conversation lookup failed", err)
		}
		if conv != nil {
			if conv.HiddenFor(requesterID) || conv.DeletedFor(requesterID) {
				if err := uc.convRepo.Restore(ctx, conv, requesterID); err != nil {
					return nil, errprocess.Internal("conversation restore failed", err)
				}
			}
			return conv, nil
		}

		now := time.Now()
		conv = &domain.Conversation{
			ID:            uuid.New().String(),
			UserLow:       low,
			UserHigh:      high,
			CreatedAt:     now,
			LastMessageAt: now,
		}
		err = uc.convRepo.Create(ctx, conv)
		if err == nil {
			return conv, nil
		}
		if errors.Is(err, repository.ErrDuplicatePair) {
			// the other participant won the race, next round finds theirs
			continue
		}
		return nil, errprocess.Internal("conversation create failed", err)
	}

	return nil, errprocess.Internal("conversation create kept conflicting", repository.ErrDuplicatePair)
}

// Get the conversation, enforcing participant authorization and the
// requester's soft-delete visibility.
func (uc *ConversationUseCase) Get(ctx context.Context, id, requesterID string) (*domain.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, errprocess.Internal("conversation lookup failed", err)
	}
	if conv == nil {
		return nil, errprocess.NotFound("conversation not found")
	}
	if !conv.HasParticipant(requesterID) {
		return nil, errprocess.NotAuthorized("not a participant of this conversation")
	}
	if conv.DeletedFor(requesterID) {
		return nil, errprocess.NotFound("conversation not found")
	}
	return conv, nil
}

// ListForUser conversations visible to the user, newest activity first.
// Hidden ones are excluded here but reappear automatically on new activity.
func (uc *ConversationUseCase) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	convs, err := uc.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, errprocess.Internal("conversation list failed", err)
	}
	return convs, nil
}

// Hide soft-remove from the requester's UI without touching history
func (uc *ConversationUseCase) Hide(ctx context.Context, id, requesterID string) error {
	conv, err := uc.Get(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if err := uc.convRepo.SetHidden(ctx, conv, requesterID, true); err != nil {
		return errprocess.Internal("conversation hide failed", err)
	}
	return nil
}

// SoftDelete delete the conversation for the requester only; the peer's
// view of history is untouched.
func (uc *ConversationUseCase) SoftDelete(ctx context.Context, id, requesterID string) error {
	conv, err := uc.Get(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if err := uc.convRepo.SetDeleted(ctx, conv, requesterID); err != nil {
		return errprocess.Internal("conversation delete failed", err)
	}
	return nil
}
