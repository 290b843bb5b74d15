package app

import (
	"context"
	"encoding/json"
	"testing"

	"civic_message_service/internal/messaging/domain"
	"civic_message_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestCallRelayUseCase_Relay(t *testing.T) {
	ctx := context.Background()
	logger.SetNewNop()

	conv := &domain.Conversation{ID: "c1", UserLow: "alice", UserHigh: "bob"}
	sig := domain.CallSignal{
		Event:          domain.CallRequest,
		ConversationID: "c1",
		CallerID:       "alice",
		ReceiverID:     "bob",
		Payload:        json.RawMessage(`{"sdp":"offer"}`),
	}

	t.Run("forwards the signal to the counterpart", func(t *testing.T) {
		mockConv := new(MockConversationRepo)
		mockConv.On("FindByID", ctx, "c1").Return(conv, nil).Once()
		registry := NewConnectionRegistry()
		bobConn := &fakeConn{}
		registry.Add("bob", bobConn)

		uc := NewCallRelayUseCase(mockConv, registry)
		uc.Relay(ctx, "alice", sig)

		assert.Equal(t, 1, bobConn.writtenCount())
		resp := bobConn.lastWritten().(domain.WSResponse)
		assert.Equal(t, string(domain.EventCallSignal), resp.Action)
		assert.Equal(t, "request", resp.Payload["event"])
	})

	t.Run("receiver answers back to the caller", func(t *testing.T) {
		mockConv := new(MockConversationRepo)
		mockConv.On("FindByID", ctx, "c1").Return(conv, nil).Once()
		registry := NewConnectionRegistry()
		aliceConn := &fakeConn{}
		registry.Add("alice", aliceConn)

		accept := sig
		accept.Event = domain.CallAccept

		uc := NewCallRelayUseCase(mockConv, registry)
		uc.Relay(ctx, "bob", accept)

		assert.Equal(t, 1, aliceConn.writtenCount())
	})

	t.Run("drops a signal from a non-party", func(t *testing.T) {
		mockConv := new(MockConversationRepo)
		registry := NewConnectionRegistry()
		bobConn := &fakeConn{}
		registry.Add("bob", bobConn)

		uc := NewCallRelayUseCase(mockConv, registry)
		uc.Relay(ctx, "mallory", sig)

		assert.Equal(t, 0, bobConn.writtenCount())
		mockConv.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("drops when parties do not match the conversation", func(t *testing.T) {
		other := &domain.Conversation{ID: "c1", UserLow: "carol", UserHigh: "dave"}
		mockConv := new(MockConversationRepo)
		mockConv.On("FindByID", ctx, "c1").Return(other, nil).Once()
		registry := NewConnectionRegistry()
		bobConn := &fakeConn{}
		registry.Add("bob", bobConn)

		uc := NewCallRelayUseCase(mockConv, registry)
		uc.Relay(ctx, "alice", sig)

		assert.Equal(t, 0, bobConn.writtenCount())
	})

	t.Run("offline counterpart loses the signal silently", func(t *testing.T) {
		mockConv := new(MockConversationRepo)
		mockConv.On("FindByID", ctx, "c1").Return(conv, nil).Once()

		uc := NewCallRelayUseCase(mockConv, NewConnectionRegistry())
		uc.Relay(ctx, "alice", sig)
		// nothing to assert beyond not panicking, the signal is dropped
	})
}
