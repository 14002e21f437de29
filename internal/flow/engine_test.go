package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/slack"
	"github.com/violetwave/leadpipe/internal/store"
)

// mockGenAI returns canned classifications and replies.
type mockGenAI struct {
	intent      models.Intent
	intentErr   error
	reply       string
	replyErr    error
	lastHistory []models.Turn
}

func (m *mockGenAI) ClassifyIntent(ctx context.Context, text string) (models.Intent, error) {
	return m.intent, m.intentErr
}

func (m *mockGenAI) GenerateReply(ctx context.Context, history []models.Turn) (string, error) {
	m.lastHistory = history
	return m.reply, m.replyErr
}

func (m *mockGenAI) ScoreLead(ctx context.Context, lead models.Lead) (models.LeadScore, error) {
	return models.LeadScore{}, errors.New("not used in engine tests")
}

type sentMessage struct {
	To   string
	Body string
}

// mockSender records outbound messages.
type mockSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (m *mockSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sentMessage{To: to, Body: body})
	return "mock-sid", nil
}

func (m *mockSender) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// mockNotifier records hot-lead alerts.
type mockNotifier struct {
	calls  []string
	result slack.DeliveryResult
}

func (m *mockNotifier) NotifyHotLead(ctx context.Context, phone, snippet string) slack.DeliveryResult {
	m.calls = append(m.calls, phone)
	return m.result
}

func newTestEngine(t *testing.T, ai *mockGenAI, opts ...Option) (*Engine, *store.InMemoryStore, *mockSender, *mockNotifier) {
	t.Helper()
	st := store.NewInMemoryStore()
	sender := &mockSender{}
	notifier := &mockNotifier{result: slack.DeliveryResult{Status: slack.StatusDelivered}}
	all := append([]Option{
		WithStore(st),
		WithGenAI(ai),
		WithSender(sender),
		WithNotifier(notifier),
	}, opts...)
	eng, err := NewEngine(all...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng, st, sender, notifier
}

func seedLead(t *testing.T, st *store.InMemoryStore, phone string) {
	t.Helper()
	_, err := st.AddLeads(context.Background(), []models.Lead{{Name: "Clínica Sonrisa", Phone: phone, Status: models.LeadStatusNew}})
	if err != nil {
		t.Fatalf("failed to seed lead: %v", err)
	}
}

func leadStatus(t *testing.T, st *store.InMemoryStore, phone string) models.LeadStatus {
	t.Helper()
	leads, err := st.FindNewLeads(context.Background())
	if err != nil {
		t.Fatalf("failed to list leads: %v", err)
	}
	// FindNewLeads only returns New; fall through to a direct probe via the
	// suffix-match update path when the lead moved on.
	for _, l := range leads {
		if l.Phone == phone {
			return l.Status
		}
	}
	return ""
}

func TestHandleMessageFirstContactReadinessDowngraded(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentReadyToBook, reply: "¿Qué sistema usan hoy para agendar turnos?"}
	eng, _, sender, notifier := newTestEngine(t, ai)

	outcome, err := eng.HandleMessage(context.Background(), "whatsapp:+5215512345678", "Dale, me interesa")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if outcome != models.OutcomeReplied {
		t.Fatalf("expected %s on first contact, got %s", models.OutcomeReplied, outcome)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("no alert expected on downgraded hand-off, got %d", len(notifier.calls))
	}
	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one outbound message, got %d", len(msgs))
	}
	if strings.Contains(msgs[0].Body, DefaultBookingLink) {
		t.Errorf("booking link must not be sent before qualification: %q", msgs[0].Body)
	}
	if msgs[0].Body != ai.reply {
		t.Errorf("expected generated reply, got %q", msgs[0].Body)
	}
}

func TestHandleMessageHandoffAfterQualification(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentInterested, reply: "¿Cuántos pacientes pierden por mes?"}
	eng, st, sender, notifier := newTestEngine(t, ai)
	seedLead(t, st, "+5215512345678")

	ctx := context.Background()
	from := "whatsapp:+5215512345678"

	// Two qualification exchanges build up four turns.
	for _, msg := range []string{"Hola, vi su mensaje", "Perdemos muchos turnos por no contestar"} {
		if _, err := eng.HandleMessage(ctx, from, msg); err != nil {
			t.Fatalf("qualification exchange failed: %v", err)
		}
	}

	ai.intent = models.IntentReadyToBook
	outcome, err := eng.HandleMessage(ctx, from, "Si, dale")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if outcome != models.OutcomeHandoffCompleted {
		t.Fatalf("expected %s, got %s", models.OutcomeHandoffCompleted, outcome)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != "+5215512345678" {
		t.Errorf("expected one alert for +5215512345678, got %v", notifier.calls)
	}
	msgs := sender.messages()
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Body, DefaultBookingLink) {
		t.Errorf("hand-off message missing booking link: %q", last.Body)
	}
	if leadStatus(t, st, "+5215512345678") == models.LeadStatusNew {
		t.Error("lead should no longer be New after hand-off")
	}
	turns, err := st.GetConversation(ctx, from)
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if got := turns[len(turns)-1]; got.Role != models.RoleAssistant || !strings.Contains(got.Content, DefaultBookingLink) {
		t.Errorf("hand-off reply not recorded as last turn: %+v", got)
	}
}

func TestHandleMessageHandoffAtExactThreshold(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentInterested, reply: "ok"}
	eng, _, _, notifier := newTestEngine(t, ai)

	ctx := context.Background()
	from := "whatsapp:+5215512345678"

	// One exchange leaves exactly two prior turns.
	if _, err := eng.HandleMessage(ctx, from, "Hola"); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	ai.intent = models.IntentReadyToBook
	outcome, err := eng.HandleMessage(ctx, from, "Quiero el link")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if outcome != models.OutcomeHandoffCompleted {
		t.Fatalf("expected hand-off at threshold, got %s", outcome)
	}
	if len(notifier.calls) != 1 {
		t.Errorf("expected one alert, got %d", len(notifier.calls))
	}
}

func TestHandleMessageNotInterestedStopsSilently(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentNotInterested}
	eng, st, sender, notifier := newTestEngine(t, ai)
	seedLead(t, st, "+5215512345678")

	outcome, err := eng.HandleMessage(context.Background(), "whatsapp:+5215512345678", "No me interesa, gracias")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if outcome != models.OutcomeStopped {
		t.Fatalf("expected %s, got %s", models.OutcomeStopped, outcome)
	}
	if len(sender.messages()) != 0 {
		t.Errorf("no reply expected after opt-out, got %v", sender.messages())
	}
	if len(notifier.calls) != 0 {
		t.Errorf("no alert expected after opt-out, got %d", len(notifier.calls))
	}
	if leadStatus(t, st, "+5215512345678") == models.LeadStatusNew {
		t.Error("lead should be marked not interested")
	}
}

func TestHandleMessageAlertFailureDoesNotAbortHandoff(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentInterested, reply: "ok"}
	eng, _, sender, notifier := newTestEngine(t, ai)
	notifier.result = slack.DeliveryResult{Status: slack.StatusFailed, Err: errors.New("webhook down")}

	ctx := context.Background()
	from := "whatsapp:+5215512345678"
	if _, err := eng.HandleMessage(ctx, from, "Hola"); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}

	ai.intent = models.IntentReadyToBook
	outcome, err := eng.HandleMessage(ctx, from, "Dale")
	if err != nil {
		t.Fatalf("hand-off must survive alert failure: %v", err)
	}
	if outcome != models.OutcomeHandoffCompleted {
		t.Fatalf("expected %s, got %s", models.OutcomeHandoffCompleted, outcome)
	}
	last := sender.messages()[len(sender.messages())-1]
	if !strings.Contains(last.Body, DefaultBookingLink) {
		t.Errorf("booking link still expected: %q", last.Body)
	}
}

func TestHandleMessageGeneratedReplyRecordedInHistory(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentQuestion, reply: "Funciona con WhatsApp Business, sí."}
	eng, st, _, _ := newTestEngine(t, ai)

	ctx := context.Background()
	from := "whatsapp:+5215512345678"
	outcome, err := eng.HandleMessage(ctx, from, "¿Funciona con WhatsApp?")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if outcome != models.OutcomeReplied {
		t.Fatalf("expected %s, got %s", models.OutcomeReplied, outcome)
	}
	turns, err := st.GetConversation(ctx, from)
	if err != nil {
		t.Fatalf("failed to load conversation: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Errorf("unexpected turn order: %+v", turns)
	}
	// The generator sees the history including the current user message.
	if len(ai.lastHistory) != 1 || ai.lastHistory[0].Content != "¿Funciona con WhatsApp?" {
		t.Errorf("generator got wrong history: %+v", ai.lastHistory)
	}
}

func TestHandleMessageClassifierErrorPropagates(t *testing.T) {
	ai := &mockGenAI{intentErr: errors.New("api unavailable")}
	eng, _, sender, _ := newTestEngine(t, ai)

	_, err := eng.HandleMessage(context.Background(), "whatsapp:+5215512345678", "Hola")
	if err == nil {
		t.Fatal("expected error when classification fails")
	}
	if len(sender.messages()) != 0 {
		t.Errorf("nothing should be sent when classification fails")
	}
}

func TestHandleMessageRejectsEmptyInput(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentInterested, reply: "ok"}
	eng, _, _, _ := newTestEngine(t, ai)

	if _, err := eng.HandleMessage(context.Background(), "", "hola"); err == nil {
		t.Error("expected error for empty sender")
	}
	if _, err := eng.HandleMessage(context.Background(), "whatsapp:+52", ""); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestHandleMessageConcurrentSameContactSerialized(t *testing.T) {
	ai := &mockGenAI{intent: models.IntentInterested, reply: "ok"}
	eng, st, _, _ := newTestEngine(t, ai)

	ctx := context.Background()
	from := "whatsapp:+5215512345678"
	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.HandleMessage(ctx, from, "mensaje"); err != nil {
				t.Errorf("HandleMessage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := st.CountTurns(ctx, from)
	if err != nil {
		t.Fatalf("failed to count turns: %v", err)
	}
	if count != n*2 {
		t.Errorf("expected %d turns, got %d", n*2, count)
	}
}

func TestNewEngineRequiresDependencies(t *testing.T) {
	if _, err := NewEngine(); err == nil {
		t.Error("expected error without store")
	}
	st := store.NewInMemoryStore()
	if _, err := NewEngine(WithStore(st)); err == nil {
		t.Error("expected error without GenAI client")
	}
	if _, err := NewEngine(WithStore(st), WithGenAI(&mockGenAI{})); err == nil {
		t.Error("expected error without sender")
	}
}
