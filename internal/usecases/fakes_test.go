package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"replygate/internal/entities"
	"replygate/internal/interfaces"
)

type fakeConversations struct {
	mu       sync.Mutex
	convs    map[string]*entities.Conversation
	messages []entities.Message
	intents  map[string]entities.Intent
	err      error
	clock    time.Time
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{
		convs:   map[string]*entities.Conversation{},
		intents: map[string]entities.Intent{},
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeConversations) FindOrCreate(_ context.Context, businessID, contactID string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := businessID + "/" + contactID
	if c, ok := f.convs[key]; ok {
		return c, nil
	}
	c := &entities.Conversation{ID: uuid.NewString(), BusinessID: businessID, ContactID: contactID, CreatedAt: f.clock}
	f.convs[key] = c
	return c, nil
}

func (f *fakeConversations) FindByContact(_ context.Context, businessID, contactID string) (*entities.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.convs[businessID+"/"+contactID]; ok {
		return c, nil
	}
	return nil, entities.ErrNotFound
}

func (f *fakeConversations) SaveMessage(_ context.Context, msg *entities.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	f.clock = f.clock.Add(time.Second)
	msg.CreatedAt = f.clock
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeConversations) SaveIntent(_ context.Context, intent *entities.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.intents[intent.MessageID]; ok {
		return fmt.Errorf("intent %s: %w", intent.MessageID, entities.ErrAlreadyExists)
	}
	intent.ID = uuid.NewString()
	f.intents[intent.MessageID] = *intent
	return nil
}

func (f *fakeConversations) RecentMessages(_ context.Context, conversationID string, limit int) ([]entities.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].ConversationID == conversationID {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

func (f *fakeConversations) messagesByRole(role string) []entities.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Message
	for _, m := range f.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type fakeRules struct {
	mu      sync.Mutex
	rules   map[string]*entities.WorkflowRule
	inserts int
	findErr error
}

func newFakeRules() *fakeRules {
	return &fakeRules{rules: map[string]*entities.WorkflowRule{}}
}

func (f *fakeRules) FindRule(_ context.Context, businessID, intentName string) (*entities.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if r, ok := f.rules[businessID+"/"+intentName]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, fmt.Errorf("workflow rule: %w", entities.ErrNotFound)
}

func (f *fakeRules) EnsureRule(_ context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rule.BusinessID + "/" + rule.IntentName
	if r, ok := f.rules[key]; ok {
		cp := *r
		return &cp, false, nil
	}
	stored := *rule
	stored.ID = uuid.NewString()
	f.rules[key] = &stored
	f.inserts++
	cp := stored
	return &cp, true, nil
}

func (f *fakeRules) UpsertRule(_ context.Context, rule *entities.WorkflowRule) (*entities.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rule.BusinessID + "/" + rule.IntentName
	if r, ok := f.rules[key]; ok {
		r.RequiresApproval = rule.RequiresApproval
		r.MinConfidence = rule.MinConfidence
		cp := *r
		return &cp, nil
	}
	stored := *rule
	stored.ID = uuid.NewString()
	f.rules[key] = &stored
	cp := stored
	return &cp, nil
}

func (f *fakeRules) ListRules(_ context.Context, businessID string) ([]entities.WorkflowRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.WorkflowRule
	for _, r := range f.rules {
		if r.BusinessID == businessID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IntentName < out[j].IntentName })
	return out, nil
}

func (f *fakeRules) count(businessID string) int {
	rules, _ := f.ListRules(context.Background(), businessID)
	return len(rules)
}

type fakeApprovals struct {
	mu     sync.Mutex
	items  map[string]*entities.Approval
	order  []string
	logs   *fakeActionLogs
	getErr error
	clock  time.Time

	dispatched map[string]bool
}

func newFakeApprovals(logs *fakeActionLogs) *fakeApprovals {
	return &fakeApprovals{
		items:      map[string]*entities.Approval{},
		logs:       logs,
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		dispatched: map[string]bool{},
	}
}

func (f *fakeApprovals) Create(_ context.Context, a *entities.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.clock = f.clock.Add(time.Second)
	a.CreatedAt = f.clock
	cp := *a
	f.items[a.ID] = &cp
	f.order = append(f.order, a.ID)
	return nil
}

func (f *fakeApprovals) GetByID(_ context.Context, id string) (*entities.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("approval %s: %w", id, entities.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeApprovals) ListPending(_ context.Context, businessID string) ([]entities.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.Approval{}
	for i := len(f.order) - 1; i >= 0; i-- {
		a := f.items[f.order[i]]
		if a.BusinessID == businessID && a.Status == entities.ApprovalPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeApprovals) Resolve(_ context.Context, id string, status entities.ApprovalStatus, reviewerID string) (*entities.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	if a.Status != entities.ApprovalPending {
		return nil, entities.ErrAlreadyResolved
	}
	now := time.Now()
	a.Status = status
	a.ReviewedBy = &reviewerID
	a.ReviewedAt = &now
	cp := *a
	return &cp, nil
}

func (f *fakeApprovals) ClaimDispatch(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.Status != entities.ApprovalApproved || f.dispatched[id] {
		return false, nil
	}
	f.dispatched[id] = true
	return true, nil
}

func (f *fakeApprovals) ListApprovedUnexecuted(ctx context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	var approved []string
	for _, id := range f.order {
		if f.items[id].Status == entities.ApprovalApproved && !f.dispatched[id] {
			approved = append(approved, id)
		}
	}
	f.mu.Unlock()

	var out []string
	for _, id := range approved {
		if done, _ := f.logs.ExistsForApproval(ctx, id); !done && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

// put stores an approval as-is, for tests that need a specific state.
func (f *fakeApprovals) put(a entities.Approval) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[a.ID] = &a
	f.order = append(f.order, a.ID)
}

type fakeActionLogs struct {
	mu        sync.Mutex
	logs      []entities.ActionLog
	createErr error
	// failFirst fails that many Create calls before succeeding.
	failFirst int
	creates   int
}

func (f *fakeActionLogs) Create(_ context.Context, l *entities.ActionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if f.creates <= f.failFirst {
		return errors.New("connection reset")
	}
	l.ID = uuid.NewString()
	l.CreatedAt = time.Now()
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeActionLogs) ExistsForApproval(_ context.Context, approvalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.ApprovalID != nil && *l.ApprovalID == approvalID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeActionLogs) all() []entities.ActionLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entities.ActionLog(nil), f.logs...)
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []entities.OutboundMessage
	err  error
}

func (f *fakeMessenger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMessenger) SendMessage(_ context.Context, msg entities.OutboundMessage) (entities.DeliveryReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return entities.DeliveryReceipt{}, f.err
	}
	return entities.DeliveryReceipt{Channel: msg.Channel, Mock: true}, nil
}

type fakeBusinesses struct {
	mu    sync.Mutex
	items map[string]*entities.Business
	err   error
}

func newFakeBusinesses(bs ...entities.Business) *fakeBusinesses {
	f := &fakeBusinesses{items: map[string]*entities.Business{}}
	for i := range bs {
		b := bs[i]
		f.items[b.ID] = &b
	}
	return f
}

func (f *fakeBusinesses) GetByID(_ context.Context, id string) (*entities.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("business %s: %w", id, entities.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBusinesses) Create(_ context.Context, b *entities.Business) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.CreatedAt = time.Now()
	cp := *b
	f.items[b.ID] = &cp
	return nil
}

func (f *fakeBusinesses) EnsureExists(_ context.Context, b *entities.Business) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[b.ID]; ok {
		return false, nil
	}
	cp := *b
	f.items[b.ID] = &cp
	return true, nil
}

func (f *fakeBusinesses) UpdateProfile(_ context.Context, id string, upd entities.BusinessProfileUpdate) (*entities.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.items[id]
	if !ok {
		return nil, entities.ErrNotFound
	}
	if upd.Name != nil {
		b.Name = *upd.Name
	}
	if upd.KnowledgeBase != nil {
		b.KnowledgeBase = *upd.KnowledgeBase
	}
	if upd.AIInstructions != nil {
		b.AIInstructions = *upd.AIInstructions
	}
	if upd.Timezone != nil {
		b.Timezone = *upd.Timezone
	}
	cp := *b
	return &cp, nil
}

type stubProvider struct {
	out      string
	err      error
	mu       sync.Mutex
	messages []interfaces.ChatMessage
}

func (s *stubProvider) Name() string { return "stub/test" }

func (s *stubProvider) Complete(_ context.Context, messages []interfaces.ChatMessage) (string, error) {
	s.mu.Lock()
	s.messages = messages
	s.mu.Unlock()
	return s.out, s.err
}

// testEnv wires the pipeline over in-memory stores.
type testEnv struct {
	businesses    *fakeBusinesses
	conversations *fakeConversations
	rules         *fakeRules
	approvals     *fakeApprovals
	logs          *fakeActionLogs
	messenger     *fakeMessenger
	workflow      *ApprovalWorkflow
	executor      *ActionExecutor
	pipeline      *MessagePipeline
}

const testBusinessID = "biz-1"

func newTestEnv(provider interfaces.CompletionProvider) *testEnv {
	log := zerolog.Nop()
	env := &testEnv{
		businesses:    newFakeBusinesses(entities.Business{ID: testBusinessID, Name: "Sunrise Apartments", KnowledgeBase: "2BR apartments from $1200/month."}),
		conversations: newFakeConversations(),
		rules:         newFakeRules(),
		logs:          &fakeActionLogs{},
		messenger:     &fakeMessenger{},
	}
	env.approvals = newFakeApprovals(env.logs)
	env.workflow = NewApprovalWorkflow(env.rules, env.approvals, log)
	env.executor = newTestExecutor(env.messenger, env.approvals, env.logs, env.conversations)
	env.pipeline = NewMessagePipeline(
		env.businesses,
		NewConversationService(env.conversations),
		NewIntentClassifier(provider, log),
		NewPolicyEngine(env.rules),
		env.workflow,
		env.executor,
		PipelineOptions{DefaultBusinessID: testBusinessID, HistoryLimit: 5},
		log,
	)
	return env
}

// newTestExecutor retries log writes without waiting.
func newTestExecutor(m *fakeMessenger, approvals *fakeApprovals, logs *fakeActionLogs, convs *fakeConversations) *ActionExecutor {
	e := NewActionExecutor(m, approvals, logs, convs, zerolog.Nop())
	e.logBackoff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return e
}
