// Package models defines the core data structures for LeadPipe.
//
// It includes types for leads, conversation turns, classified intents, and the
// JSON response envelope shared across modules.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// LeadStatus represents the lifecycle status of a lead in the directory.
type LeadStatus string

const (
	// LeadStatusNew indicates a freshly added lead that has not been contacted.
	LeadStatusNew LeadStatus = "New"
	// LeadStatusContacted indicates the outreach job sent a first-contact message.
	LeadStatusContacted LeadStatus = "Contacted"
	// LeadStatusHot indicates the lead accepted a call and received the booking link.
	LeadStatusHot LeadStatus = "Lead Caliente"
	// LeadStatusNotInterested indicates the lead explicitly rejected the offer.
	LeadStatusNotInterested LeadStatus = "No interesado"
	// LeadStatusDisqualified indicates the scoring pass ruled the lead out.
	LeadStatusDisqualified LeadStatus = "Disqualified"
)

// IsValidLeadStatus checks if the given lead status is supported.
func IsValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusHot, LeadStatusNotInterested, LeadStatusDisqualified:
		return true
	default:
		return false
	}
}

// Lead represents a prospective contact tracked through the status lifecycle.
// Phone keeps the raw formatting from the source; identity is the digits-only form.
type Lead struct {
	ID        int64      `json:"id,omitempty"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone"`
	Status    LeadStatus `json:"status"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitempty"`
}

// Intent is the classified purpose of an inbound message. It is computed per
// message and never persisted.
type Intent string

const (
	// IntentReadyToBook indicates the contact accepted the call proposal or asked how to proceed.
	IntentReadyToBook Intent = "READY_TO_BOOK"
	// IntentNotInterested indicates a clear rejection.
	IntentNotInterested Intent = "NOT_INTERESTED"
	// IntentInterested indicates stated problems or open-ended interest.
	IntentInterested Intent = "INTERESTED"
	// IntentQuestion indicates a narrow technical question.
	IntentQuestion Intent = "QUESTION"
)

// ErrUnknownIntent is returned by ParseIntent for labels outside the closed set.
var ErrUnknownIntent = errors.New("unknown intent label")

// intentLabelCleaner strips quoting and punctuation a generative backend may wrap
// around the bare label.
var intentLabelCleaner = strings.NewReplacer("'", "", "\"", "", ".", "", "`", "")

// ParseIntent parses a raw classifier label into an Intent. Stray quotes,
// backticks, periods, and surrounding whitespace are stripped before comparison.
func ParseIntent(raw string) (Intent, error) {
	label := strings.ToUpper(strings.TrimSpace(intentLabelCleaner.Replace(raw)))
	switch Intent(label) {
	case IntentReadyToBook, IntentNotInterested, IntentInterested, IntentQuestion:
		return Intent(label), nil
	default:
		return "", ErrUnknownIntent
	}
}

// TurnRole identifies the speaker of a conversation turn.
type TurnRole string

const (
	// RoleUser marks a turn authored by the contact.
	RoleUser TurnRole = "user"
	// RoleAssistant marks a turn authored by the bot.
	RoleAssistant TurnRole = "assistant"
)

// Turn is one message in a conversation, tagged with the speaker role.
// Turns are append-only; they are never mutated or deleted.
type Turn struct {
	Role    TurnRole `json:"role"`
	Content string   `json:"content"`
}

// Outcome is the terminal result of handling one inbound message.
type Outcome string

const (
	// OutcomeHandoffCompleted indicates the booking link was sent and the lead marked hot.
	OutcomeHandoffCompleted Outcome = "handoff_completed"
	// OutcomeStopped indicates the contact opted out; no reply was sent.
	OutcomeStopped Outcome = "stopped"
	// OutcomeReplied indicates a contextual reply was generated and sent.
	OutcomeReplied Outcome = "replied"
)

// AddLeadsReport summarizes a bulk insert into the lead directory.
type AddLeadsReport struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

// ScrapeReport summarizes a lead-search run.
type ScrapeReport struct {
	Found      int    `json:"found"`
	AddedNew   int    `json:"added_new"`
	Duplicates int    `json:"duplicates"`
	City       string `json:"city,omitempty"`
	Niche      string `json:"niche,omitempty"`
}

// OutreachReport summarizes one outreach job run.
type OutreachReport struct {
	Processed    int `json:"processed"`
	Contacted    int `json:"contacted"`
	Disqualified int `json:"disqualified"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// LeadScore is the scoring result for one lead produced by the qualification pass.
type LeadScore struct {
	Score            int    `json:"score"`
	Reason           string `json:"reason"`
	IsQualified      bool   `json:"is_qualified"`
	SuggestedMessage string `json:"suggested_message"`
}

// Error variables shared across modules.
var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
	ErrMissingPhone   = errors.New("lead has no phone number")
	ErrLeadNotFound   = errors.New("lead not found")
)

// nonDigits matches everything that is not an ASCII digit.
var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone reduces a phone string to its digits-only form. The directory
// compares normalized forms so that manual entry, scraped data, and caller IDs
// with different formatting resolve to the same lead.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// ContactPhone strips the channel prefix from a webhook contact identifier,
// e.g. "whatsapp:+5491122334455" becomes "+5491122334455".
func ContactPhone(contactID string) string {
	return strings.TrimPrefix(contactID, "whatsapp:")
}

// InboundMessage represents an incoming message from a contact, either via the
// webhook endpoint or a live messaging backend.
type InboundMessage struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{response: APIResponse{}}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithResult(result).Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusOK).WithMessage(message).WithResult(result).Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().WithStatus(APIStatusError).WithMessage(message).Build()
}
