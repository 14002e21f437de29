// Package flow implements the conversation engine that drives lead
// qualification over inbound messages.
//
// Each inbound message is classified, run through a guard that prevents
// premature hand-off, and dispatched to exactly one of three outcomes:
// booking hand-off, conversation stop, or a generated reply.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/violetwave/leadpipe/internal/genai"
	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/slack"
	"github.com/violetwave/leadpipe/internal/store"
)

const (
	// DefaultMinTurnsForHandoff is the minimum number of prior conversation
	// turns before a booking hand-off is allowed. Below it, READY_TO_BOOK is
	// downgraded so the agent keeps qualifying.
	DefaultMinTurnsForHandoff = 2

	// DefaultBookingLink is the scheduling link sent on hand-off when none is
	// configured.
	DefaultBookingLink = "https://calendly.com/ramiro-baudo-violetwaveai/30min"
)

// HotLeadNotifier delivers best-effort alerts when a lead is ready to book.
type HotLeadNotifier interface {
	NotifyHotLead(ctx context.Context, phone, snippet string) slack.DeliveryResult
}

// MessageSender sends one outbound message and returns the backend's delivery
// id.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// Opts holds configuration options for the conversation engine.
type Opts struct {
	Store              store.Store
	GenAI              genai.ClientInterface
	Sender             MessageSender
	Notifier           HotLeadNotifier
	BookingLink        string
	MinTurnsForHandoff int
}

// Option defines a configuration option for the conversation engine.
type Option func(*Opts)

// WithStore sets the lead directory and conversation store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGenAI sets the GenAI client used for classification and replies.
func WithGenAI(c genai.ClientInterface) Option {
	return func(o *Opts) { o.GenAI = c }
}

// WithSender sets the outbound message sender.
func WithSender(s MessageSender) Option {
	return func(o *Opts) { o.Sender = s }
}

// WithNotifier sets the hot-lead notifier.
func WithNotifier(n HotLeadNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithBookingLink sets the scheduling link sent on hand-off.
func WithBookingLink(link string) Option {
	return func(o *Opts) { o.BookingLink = link }
}

// WithMinTurnsForHandoff sets the minimum prior turn count required before a
// hand-off is allowed. Values below zero are ignored.
func WithMinTurnsForHandoff(n int) Option {
	return func(o *Opts) {
		if n >= 0 {
			o.MinTurnsForHandoff = n
		}
	}
}

// Engine processes inbound contact messages end to end.
type Engine struct {
	store       store.Store
	genAI       genai.ClientInterface
	sender      MessageSender
	notifier    HotLeadNotifier
	bookingLink string
	minTurns    int

	// contactLocks serializes processing per contact so concurrent messages
	// from the same sender see a consistent turn count.
	mu           sync.Mutex
	contactLocks map[string]*sync.Mutex
}

// NewEngine creates a conversation engine. Store, GenAI client, and sender are
// required; the notifier is optional.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := Opts{
		BookingLink:        DefaultBookingLink,
		MinTurnsForHandoff: DefaultMinTurnsForHandoff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.GenAI == nil {
		return nil, fmt.Errorf("GenAI client is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("message sender is required")
	}
	return &Engine{
		store:        cfg.Store,
		genAI:        cfg.GenAI,
		sender:       cfg.Sender,
		notifier:     cfg.Notifier,
		bookingLink:  cfg.BookingLink,
		minTurns:     cfg.MinTurnsForHandoff,
		contactLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockContact returns the mutex guarding one contact's conversation.
func (e *Engine) lockContact(contactID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.contactLocks[contactID]
	if !ok {
		l = &sync.Mutex{}
		e.contactLocks[contactID] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the resulting
// outcome. The sender id keeps its channel prefix (e.g. "whatsapp:+52155...");
// directory updates use the bare phone number.
func (e *Engine) HandleMessage(ctx context.Context, from, body string) (models.Outcome, error) {
	if from == "" || body == "" {
		return "", fmt.Errorf("Engine.HandleMessage: sender and body must not be empty")
	}

	lock := e.lockContact(from)
	lock.Lock()
	defer lock.Unlock()

	slog.Info("Engine.HandleMessage: inbound message", "from", from, "body", body)

	// Count prior turns before recording the new message; the guard below
	// keys off conversation depth excluding the current message.
	priorTurns, err := e.store.CountTurns(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to count conversation turns: %w", err)
	}
	if err := e.store.AppendTurn(ctx, from, models.Turn{Role: models.RoleUser, Content: body}); err != nil {
		return "", fmt.Errorf("failed to record inbound turn: %w", err)
	}

	intent, err := e.genAI.ClassifyIntent(ctx, body)
	if err != nil {
		return "", fmt.Errorf("failed to classify intent: %w", err)
	}
	slog.Info("Engine.HandleMessage: classified", "from", from, "intent", intent, "priorTurns", priorTurns)

	// Guard: a contact claiming readiness on the very first exchange has not
	// been qualified yet. Keep the conversation going instead of closing.
	if intent == models.IntentReadyToBook && priorTurns < e.minTurns {
		slog.Info("Engine.HandleMessage: too early to close, downgrading to INTERESTED", "from", from, "priorTurns", priorTurns, "minTurns", e.minTurns)
		intent = models.IntentInterested
	}

	switch intent {
	case models.IntentReadyToBook:
		return e.handleHandoff(ctx, from, body)
	case models.IntentNotInterested:
		return e.handleStop(ctx, from)
	default:
		return e.handleReply(ctx, from)
	}
}

// handleHandoff marks the lead hot, alerts the team, and sends the booking
// link. Side effects run in that order; only directory and delivery failures
// abort.
func (e *Engine) handleHandoff(ctx context.Context, from, body string) (models.Outcome, error) {
	phone := models.ContactPhone(from)
	slog.Info("Engine.handleHandoff: booking hand-off", "phone", phone)

	matched, err := e.store.UpdateLeadStatusByPhone(ctx, phone, models.LeadStatusHot)
	if err != nil {
		return "", fmt.Errorf("failed to update lead status: %w", err)
	}
	if !matched {
		slog.Warn("Engine.handleHandoff: no directory entry matched", "phone", phone)
	}

	if e.notifier != nil {
		res := e.notifier.NotifyHotLead(ctx, phone, body)
		if res.Delivered() {
			slog.Info("Engine.handleHandoff: hot-lead alert delivered", "phone", phone)
		} else {
			slog.Error("Engine.handleHandoff: hot-lead alert not delivered", "phone", phone, "status", res.Status, "error", res.Err)
		}
	}

	reply := fmt.Sprintf("¡Genial! 🚀 Vamos a solucionarlo.\n\nAgenda tu demo de 10 min aquí:\n👉 %s", e.bookingLink)
	if _, err := e.sender.SendMessage(ctx, from, reply); err != nil {
		return "", fmt.Errorf("failed to send booking link: %w", err)
	}
	if err := e.store.AppendTurn(ctx, from, models.Turn{Role: models.RoleAssistant, Content: reply}); err != nil {
		return "", fmt.Errorf("failed to record hand-off turn: %w", err)
	}
	return models.OutcomeHandoffCompleted, nil
}

// handleStop marks the lead as not interested. No reply is sent.
func (e *Engine) handleStop(ctx context.Context, from string) (models.Outcome, error) {
	phone := models.ContactPhone(from)
	slog.Info("Engine.handleStop: contact opted out", "phone", phone)

	matched, err := e.store.UpdateLeadStatusByPhone(ctx, phone, models.LeadStatusNotInterested)
	if err != nil {
		return "", fmt.Errorf("failed to update lead status: %w", err)
	}
	if !matched {
		slog.Warn("Engine.handleStop: no directory entry matched", "phone", phone)
	}
	return models.OutcomeStopped, nil
}

// handleReply generates a qualification reply from the full conversation and
// sends it back to the contact.
func (e *Engine) handleReply(ctx context.Context, from string) (models.Outcome, error) {
	history, err := e.store.GetConversation(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to load conversation: %w", err)
	}

	reply, err := e.genAI.GenerateReply(ctx, history)
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}

	if err := e.store.AppendTurn(ctx, from, models.Turn{Role: models.RoleAssistant, Content: reply}); err != nil {
		return "", fmt.Errorf("failed to record reply turn: %w", err)
	}
	if _, err := e.sender.SendMessage(ctx, from, reply); err != nil {
		return "", fmt.Errorf("failed to send reply: %w", err)
	}
	return models.OutcomeReplied, nil
}
