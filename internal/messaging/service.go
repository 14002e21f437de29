// Package messaging provides pluggable message delivery for LeadPipe.
//
// It abstracts over the Twilio REST backend and the direct Whatsmeow backend.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/violetwave/leadpipe/internal/models"
)

// Constants for messaging service configuration.
const (
	// DefaultChannelBufferSize defines the buffer size for inbound message channels.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the timeout for non-blocking channel operations.
	DefaultChannelTimeout = 1 * time.Second
	// MinPhoneDigits is the minimum number of digits a canonical recipient must have.
	MinPhoneDigits = 6
)

// ErrServiceStopped indicates a send was attempted after the service stopped.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex matches everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`\D`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient and returns the backend's
	// delivery id. The id is opaque and used only for logging.
	SendMessage(ctx context.Context, to string, body string) (string, error)

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Inbound returns a channel of incoming contact messages. Backends without
	// a live connection (Twilio webhook delivery) never emit on it.
	Inbound() <-chan models.InboundMessage
}
