package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio REST API. Inbound messages
// arrive through the HTTP webhook, not through this service, so its Inbound
// channel never emits.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	inbound chan models.InboundMessage
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a new TwilioService wrapping the given sender.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{
		client:  client,
		inbound: make(chan models.InboundMessage, DefaultChannelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone
// number. It removes all non-numeric characters and validates the result has at
// least MinPhoneDigits digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}

	if recipient != canonical {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio (no live connection).
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop marks the service stopped and closes the inbound channel.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.inbound)
	return nil
}

// SendMessage sends a message via Twilio and returns the message SID.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return "", ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return "", err
	}

	sid, err := s.client.SendMessage(ctx, canonicalTo, body)
	if err != nil {
		return "", err
	}
	slog.Debug("TwilioService message sent", "to", canonicalTo, "sid", sid)
	return sid, nil
}

// Inbound returns the channel for incoming messages (unused for Twilio).
func (s *TwilioService) Inbound() <-chan models.InboundMessage {
	return s.inbound
}
