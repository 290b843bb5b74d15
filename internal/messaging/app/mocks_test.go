package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"civic_message_service/internal/messaging/domain"

	"github.com/stretchr/testify/mock"
)

// MockConversationRepo Mock ConversationRepository
type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	args := m.Called(ctx, conv)
	return args.Error(0)
}

func (m *MockConversationRepo) FindByPair(ctx context.Context, userLow, userHigh string) (*domain.Conversation, error) {
	args := m.Called(ctx, userLow, userHigh)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepo) Restore(ctx context.Context, conv *domain.Conversation, userID string) error {
	args := m.Called(ctx, conv, userID)
	return args.Error(0)
}

func (m *MockConversationRepo) SetHidden(ctx context.Context, conv *domain.Conversation, userID string, hidden bool) error {
	args := m.Called(ctx, conv, userID, hidden)
	return args.Error(0)
}

func (m *MockConversationRepo) SetDeleted(ctx context.Context, conv *domain.Conversation, userID string) error {
	args := m.Called(ctx, conv, userID)
	return args.Error(0)
}

// MockMessageRepo Mock MessageRepository
type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Insert(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) != nil {
		return args.Get(0).(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) Page(ctx context.Context, conversationID string, pageIndex, pageSize int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, pageIndex, pageSize)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) AdvanceDelivered(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) AdvanceRead(ctx context.Context, messageID, readerID string) (bool, error) {
	args := m.Called(ctx, messageID, readerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) MarkAllRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	args := m.Called(ctx, conversationID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) FindUndelivered(ctx context.Context, userID string) ([]domain.Message, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) MarkAllUndelivered(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) UpdateBody(ctx context.Context, messageID, body string, at time.Time) error {
	args := m.Called(ctx, messageID, body, at)
	return args.Error(0)
}

func (m *MockMessageRepo) SoftDelete(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MockMessageRepo) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) UnreadByConversation(ctx context.Context, userID string) ([]domain.ConversationUnread, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.ConversationUnread), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageRepo) TotalUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockPresenceRepo Mock PresenceRepository
type MockPresenceRepo struct {
	mock.Mock
}

func (m *MockPresenceRepo) SetOnline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceRepo) SetOffline(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceRepo) IsOnline(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPresenceRepo) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(time.Time), args.Error(1)
}

// MockTypingRepo Mock TypingRepository
type MockTypingRepo struct {
	mock.Mock
}

func (m *MockTypingRepo) SetTyping(ctx context.Context, conversationID, userID string, isTyping bool) error {
	args := m.Called(ctx, conversationID, userID, isTyping)
	return args.Error(0)
}

func (m *MockTypingRepo) IsTyping(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

// MockPushDispatcher Mock PushDispatcher
type MockPushDispatcher struct {
	mock.Mock
}

func (m *MockPushDispatcher) Notify(ctx context.Context, recipientID string, msg *domain.Message) error {
	args := m.Called(ctx, recipientID, msg)
	return args.Error(0)
}

// MockEventStream Mock EventStream
type MockEventStream struct {
	mock.Mock
}

func (m *MockEventStream) Emit(ctx context.Context, ev domain.MessageEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

var errWriteFailed = errors.New("write failed")

// fakeConn in-memory ClientConn recording everything written to it
type fakeConn struct {
	mu        sync.Mutex
	written   []interface{}
	failWrite bool
	closed    bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return errWriteFailed
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writtenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeConn) lastWritten() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.written) == 0 {
		return nil
	}
	return c.written[len(c.written)-1]
}
