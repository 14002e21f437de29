package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/violetwave/leadpipe/internal/twiliowhatsapp"
)

func TestTwilioService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	service := NewTwilioService(twiliowhatsapp.NewMockClient())

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+54 911 2233-4455", "5491122334455", false},
		{"5491122334455", "5491122334455", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true}, // too short
	}
	for _, c := range cases {
		got, err := service.ValidateAndCanonicalizeRecipient(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ValidateAndCanonicalizeRecipient(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTwilioService_SendMessageReturnsDeliveryID(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	service := NewTwilioService(mock)

	sid, err := service.SendMessage(context.Background(), "+54 911 2233-4455", "Hola")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if sid == "" {
		t.Error("expected a non-empty delivery id")
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "5491122334455" {
		t.Errorf("expected canonicalized recipient, got %q", mock.SentMessages[0].To)
	}
}

func TestTwilioService_SendMessagePropagatesFailure(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.Err = errors.New("twilio down")
	service := NewTwilioService(mock)

	if _, err := service.SendMessage(context.Background(), "5491122334455", "Hola"); err == nil {
		t.Error("expected send failure to propagate")
	}
}

func TestTwilioService_SendAfterStop(t *testing.T) {
	service := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := service.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, err := service.SendMessage(context.Background(), "5491122334455", "Hola"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
	// Stop is idempotent.
	if err := service.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}
