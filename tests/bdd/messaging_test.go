package bdd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"civic_message_service/internal/messaging/app"
	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	"civic_message_service/pkg/logger"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	logger.SetNewNop()
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeMessagingScenario,
		Options: &godog.Options{
			Paths:  []string{"./featureFiles"},
			Format: "pretty",
			Output: os.Stdout,
		},
	}

	if suite.Run() != 0 {
		t.Fail()
	}
}

// memConversationRepo in-memory ConversationRepository
type memConversationRepo struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{convs: make(map[string]*domain.Conversation)}
}

func (r *memConversationRepo) Create(_ context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.UserLow == conv.UserLow && c.UserHigh == conv.UserHigh {
			return repository.ErrDuplicatePair
		}
	}
	cp := *conv
	r.convs[conv.ID] = &cp
	return nil
}

func (r *memConversationRepo) FindByPair(_ context.Context, userLow, userHigh string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.UserLow == userLow && c.UserHigh == userHigh {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memConversationRepo) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memConversationRepo) ListForUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(userID) && !c.DeletedFor(userID) && !c.HiddenFor(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *memConversationRepo) Restore(_ context.Context, conv *domain.Conversation, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[conv.ID]
	if !ok {
		return errors.New("conversation missing")
	}
	if c.UserLow == userID {
		c.HiddenForLow, c.DeletedForLow = false, false
	} else {
		c.HiddenForHigh, c.DeletedForHigh = false, false
	}
	return nil
}

func (r *memConversationRepo) SetHidden(_ context.Context, conv *domain.Conversation, userID string, hidden bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.convs[conv.ID]
	if c.UserLow == userID {
		c.HiddenForLow = hidden
	} else {
		c.HiddenForHigh = hidden
	}
	return nil
}

func (r *memConversationRepo) SetDeleted(_ context.Context, conv *domain.Conversation, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.convs[conv.ID]
	if c.UserLow == userID {
		c.DeletedForLow = true
	} else {
		c.DeletedForHigh = true
	}
	return nil
}

// memMessageRepo in-memory MessageRepository
type memMessageRepo struct {
	mu    sync.Mutex
	seq   int64
	msgs  []*domain.Message
	convs *memConversationRepo
}

func newMemMessageRepo(convs *memConversationRepo) *memMessageRepo {
	return &memMessageRepo{convs: convs}
}

func (r *memMessageRepo) Insert(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.Seq = r.seq
	cp := *msg
	r.msgs = append(r.msgs, &cp)

	r.convs.mu.Lock()
	if c, ok := r.convs.convs[msg.ConversationID]; ok {
		c.LastMessageAt = msg.CreatedAt
		c.HiddenForLow, c.HiddenForHigh = false, false
	}
	r.convs.mu.Unlock()
	return nil
}

func (r *memMessageRepo) find(id string) *domain.Message {
	for _, m := range r.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *memMessageRepo) FindByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(id)
	if m == nil {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) Page(_ context.Context, conversationID string, pageIndex, pageSize int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Message
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && !m.Deleted {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq > all[j].Seq })
	start := pageIndex * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *memMessageRepo) AdvanceDelivered(_ context.Context, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil || m.State != domain.DeliverySent {
		return false, nil
	}
	now := time.Now()
	m.State = domain.DeliveryDelivered
	m.DeliveredAt = &now
	return true, nil
}

func (r *memMessageRepo) AdvanceRead(_ context.Context, messageID, readerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil || m.SenderID == readerID || m.State == domain.DeliveryRead {
		return false, nil
	}
	now := time.Now()
	if m.DeliveredAt == nil {
		m.DeliveredAt = &now
	}
	m.State = domain.DeliveryRead
	m.ReadAt = &now
	return true, nil
}

func (r *memMessageRepo) MarkAllRead(_ context.Context, conversationID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	now := time.Now()
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.SenderID != readerID && m.State != domain.DeliveryRead && !m.Deleted {
			if m.DeliveredAt == nil {
				m.DeliveredAt = &now
			}
			m.State = domain.DeliveryRead
			m.ReadAt = &now
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) addressedTo(m *domain.Message, userID string) bool {
	conv, ok := r.convs.convs[m.ConversationID]
	return ok && conv.HasParticipant(userID) && m.SenderID != userID
}

func (r *memMessageRepo) FindUndelivered(_ context.Context, userID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs.mu.Lock()
	defer r.convs.mu.Unlock()
	var out []domain.Message
	for _, m := range r.msgs {
		if m.State == domain.DeliverySent && !m.Deleted && r.addressedTo(m, userID) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *memMessageRepo) MarkAllUndelivered(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs.mu.Lock()
	defer r.convs.mu.Unlock()
	var count int64
	now := time.Now()
	for _, m := range r.msgs {
		if m.State == domain.DeliverySent && !m.Deleted && r.addressedTo(m, userID) {
			m.State = domain.DeliveryDelivered
			m.DeliveredAt = &now
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) UpdateBody(_ context.Context, messageID, body string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return errors.New("message missing")
	}
	m.Body = body
	m.Edited = true
	m.EditedAt = &at
	return nil
}

func (r *memMessageRepo) SoftDelete(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.find(messageID)
	if m == nil {
		return errors.New("message missing")
	}
	m.Deleted = true
	return nil
}

func (r *memMessageRepo) UnreadCount(_ context.Context, conversationID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, m := range r.msgs {
		if m.ConversationID == conversationID && m.SenderID != userID && m.State != domain.DeliveryRead && !m.Deleted {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) UnreadByConversation(_ context.Context, userID string) ([]domain.ConversationUnread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs.mu.Lock()
	defer r.convs.mu.Unlock()
	grouped := make(map[string]int64)
	for _, m := range r.msgs {
		if m.State != domain.DeliveryRead && !m.Deleted && r.addressedTo(m, userID) {
			grouped[m.ConversationID]++
		}
	}
	var out []domain.ConversationUnread
	for id, count := range grouped {
		out = append(out, domain.ConversationUnread{ConversationID: id, UnreadCount: count})
	}
	return out, nil
}

func (r *memMessageRepo) TotalUnread(_ context.Context, userID string) (int64, error) {
	grouped, err := r.UnreadByConversation(context.Background(), userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, g := range grouped {
		total += g.UnreadCount
	}
	return total, nil
}

// memPresenceRepo in-memory PresenceRepository
type memPresenceRepo struct {
	mu       sync.Mutex
	online   map[string]bool
	lastSeen map[string]time.Time
}

func newMemPresenceRepo() *memPresenceRepo {
	return &memPresenceRepo{online: make(map[string]bool), lastSeen: make(map[string]time.Time)}
}

func (r *memPresenceRepo) SetOnline(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = true
	return nil
}

func (r *memPresenceRepo) SetOffline(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, userID)
	r.lastSeen[userID] = time.Now()
	return nil
}

func (r *memPresenceRepo) IsOnline(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID], nil
}

func (r *memPresenceRepo) LastSeen(_ context.Context, userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen[userID], nil
}

// memTypingRepo in-memory TypingRepository
type memTypingRepo struct {
	mu     sync.Mutex
	typing map[string]bool
}

func newMemTypingRepo() *memTypingRepo {
	return &memTypingRepo{typing: make(map[string]bool)}
}

func (r *memTypingRepo) SetTyping(_ context.Context, conversationID, userID string, isTyping bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing[conversationID+":"+userID] = isTyping
	return nil
}

func (r *memTypingRepo) IsTyping(_ context.Context, conversationID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.typing[conversationID+":"+userID], nil
}

// recordingConn ClientConn capturing pushed responses per user
type recordingConn struct {
	mu     sync.Mutex
	events []domain.WSResponse
}

func (c *recordingConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, ok := v.(domain.WSResponse)
	if !ok {
		return errors.New("unexpected payload type")
	}
	c.events = append(c.events, resp)
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) byAction(action string) []domain.WSResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.WSResponse
	for _, e := range c.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// messagingWorld per-scenario state
type messagingWorld struct {
	ctx context.Context

	convRepo     *memConversationRepo
	msgRepo      *memMessageRepo
	presenceRepo *memPresenceRepo
	registry     *app.ConnectionRegistry

	conversationUC *app.ConversationUseCase
	deliveryUC     *app.DeliveryUseCase
	typingUC       *app.TypingUseCase

	conns map[string]*recordingConn

	conversationID string
	lastMessageID  string
	lastSendErr    error
}

func newMessagingWorld() *messagingWorld {
	convRepo := newMemConversationRepo()
	msgRepo := newMemMessageRepo(convRepo)
	presenceRepo := newMemPresenceRepo()
	typingRepo := newMemTypingRepo()
	registry := app.NewConnectionRegistry()

	messageUC := app.NewMessageUseCase(convRepo, msgRepo, 0)
	return &messagingWorld{
		ctx:            context.Background(),
		convRepo:       convRepo,
		msgRepo:        msgRepo,
		presenceRepo:   presenceRepo,
		registry:       registry,
		conversationUC: app.NewConversationUseCase(convRepo),
		deliveryUC:     app.NewDeliveryUseCase(messageUC, convRepo, msgRepo, presenceRepo, registry, nil, nil),
		typingUC:       app.NewTypingUseCase(convRepo, typingRepo, registry),
		conns:          make(map[string]*recordingConn),
	}
}

func (w *messagingWorld) aConversationExistsBetween(a, b string) error {
	conv, err := w.conversationUC.StartOrGet(w.ctx, a, b)
	if err != nil {
		return err
	}
	w.conversationID = conv.ID
	return nil
}

func (w *messagingWorld) userIsConnected(user string) error {
	conn := &recordingConn{}
	w.conns[user] = conn
	w.registry.Add(user, conn)
	return w.presenceRepo.SetOnline(w.ctx, user)
}

func (w *messagingWorld) userIsOffline(user string) error {
	delete(w.conns, user)
	return w.presenceRepo.SetOffline(w.ctx, user)
}

func (w *messagingWorld) userConnects(user string) error {
	if err := w.userIsConnected(user); err != nil {
		return err
	}
	_, err := w.deliveryUC.FlushOnConnect(w.ctx, user)
	return err
}

func (w *messagingWorld) userSends(user, body string) error {
	msg, err := w.deliveryUC.Send(w.ctx, w.conversationID, user, body)
	w.lastSendErr = err
	if err != nil {
		return nil
	}
	w.lastMessageID = msg.ID
	return nil
}

func (w *messagingWorld) userReceivesNewMessage(user, body string) error {
	conn, ok := w.conns[user]
	if !ok {
		return fmt.Errorf("%s has no connection", user)
	}
	for _, e := range conn.byAction(string(domain.EventNewMessage)) {
		if e.Payload["body"] == body {
			return nil
		}
	}
	return fmt.Errorf("%s never received %q", user, body)
}

func (w *messagingWorld) userReceivesQueuedMessages(user string, count int) error {
	conn, ok := w.conns[user]
	if !ok {
		return fmt.Errorf("%s has no connection", user)
	}
	got := len(conn.byAction(string(domain.EventNewMessage)))
	if got != count {
		return fmt.Errorf("expected %d queued messages, got %d", count, got)
	}
	return nil
}

func (w *messagingWorld) theMessageStateIs(state string) error {
	if w.lastMessageID == "" {
		return errors.New("no message was sent")
	}
	msg, err := w.msgRepo.FindByID(w.ctx, w.lastMessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message missing")
	}
	if string(msg.State) != state {
		return fmt.Errorf("expected state %q, got %q", state, msg.State)
	}
	return nil
}

func (w *messagingWorld) userReadsTheLastMessage(user string) error {
	return w.deliveryUC.MarkRead(w.ctx, w.lastMessageID, user)
}

func (w *messagingWorld) userReceivesAReadReceipt(user string) error {
	conn, ok := w.conns[user]
	if !ok {
		return fmt.Errorf("%s has no connection", user)
	}
	if len(conn.byAction(string(domain.EventReadReceipt))) == 0 {
		return fmt.Errorf("%s never received a read receipt", user)
	}
	return nil
}

func (w *messagingWorld) theSendIsRejected() error {
	if w.lastSendErr == nil {
		return errors.New("send unexpectedly succeeded")
	}
	return nil
}

func (w *messagingWorld) userStartsTyping(user string) error {
	return w.typingUC.SetTyping(w.ctx, w.conversationID, user, true)
}

func (w *messagingWorld) userSeesATypingIndicator(user string) error {
	conn, ok := w.conns[user]
	if !ok {
		return fmt.Errorf("%s has no connection", user)
	}
	for _, e := range conn.byAction(string(domain.EventTypingStatus)) {
		if e.Payload["is_typing"] == true {
			return nil
		}
	}
	return fmt.Errorf("%s never saw a typing indicator", user)
}

// InitializeMessagingScenario register step definitions
func InitializeMessagingScenario(ctx *godog.ScenarioContext) {
	w := newMessagingWorld()
	ctx.Before(func(c context.Context, _ *godog.Scenario) (context.Context, error) {
		*w = *newMessagingWorld()
		return c, nil
	})

	ctx.Step(`^a conversation exists between "([^"]*)" and "([^"]*)"$`, w.aConversationExistsBetween)
	ctx.Step(`^"([^"]*)" is connected$`, w.userIsConnected)
	ctx.Step(`^"([^"]*)" is offline$`, w.userIsOffline)
	ctx.Step(`^"([^"]*)" connects$`, w.userConnects)
	ctx.Step(`^"([^"]*)" sends "([^"]*)"$`, w.userSends)
	ctx.Step(`^"([^"]*)" receives a new message "([^"]*)"$`, w.userReceivesNewMessage)
	ctx.Step(`^"([^"]*)" receives (\d+) queued messages$`, w.userReceivesQueuedMessages)
	ctx.Step(`^the message state is "([^"]*)"$`, w.theMessageStateIs)
	ctx.Step(`^"([^"]*)" reads the last message$`, w.userReadsTheLastMessage)
	ctx.Step(`^"([^"]*)" receives a read receipt$`, w.userReceivesAReadReceipt)
	ctx.Step(`^the send is rejected$`, w.theSendIsRejected)
	ctx.Step(`^"([^"]*)" starts typing$`, w.userStartsTyping)
	ctx.Step(`^"([^"]*)" sees a typing indicator$`, w.userSeesATypingIndicator)
}
