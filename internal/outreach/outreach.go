// Package outreach implements the first-contact job: it scores every New lead
// in the directory and sends an opener to the qualified ones.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/violetwave/leadpipe/internal/genai"
	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/store"
)

// ErrRunInProgress indicates a run was requested while another is active.
var ErrRunInProgress = errors.New("outreach run already in progress")

// MessageSender sends one outbound message and returns the backend's delivery
// id.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) (string, error)
}

// Opts holds configuration options for the outreach job.
type Opts struct {
	Store  store.Store
	GenAI  genai.ClientInterface
	Sender MessageSender
}

// Option defines a configuration option for the outreach job.
type Option func(*Opts)

// WithStore sets the lead directory.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGenAI sets the GenAI client used for lead scoring.
func WithGenAI(c genai.ClientInterface) Option {
	return func(o *Opts) { o.GenAI = c }
}

// WithSender sets the outbound message sender.
func WithSender(s MessageSender) Option {
	return func(o *Opts) { o.Sender = s }
}

// Job scores New leads and contacts the qualified ones. Safe to trigger from
// both the scheduler and the API; concurrent runs are rejected.
type Job struct {
	store  store.Store
	genAI  genai.ClientInterface
	sender MessageSender
	runMu  sync.Mutex
}

// NewJob creates an outreach job. All dependencies are required.
func NewJob(opts ...Option) (*Job, error) {
	var cfg Opts
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
	return &Job{store: cfg.Store, genAI: cfg.GenAI, sender: cfg.Sender}, nil
}

// Run processes every New lead once. A lead whose send fails keeps its New
// status and is retried on the next run; per-lead failures never abort the
// batch.
func (j *Job) Run(ctx context.Context) (models.OutreachReport, error) {
	var report models.OutreachReport

	if !j.runMu.TryLock() {
		slog.Warn("Outreach.Run: skipped, previous run still active")
		return report, ErrRunInProgress
	}
	defer j.runMu.Unlock()

	slog.Info("Outreach.Run: starting")

	leads, err := j.store.FindNewLeads(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load new leads: %w", err)
	}
	if len(leads) == 0 {
		slog.Info("Outreach.Run: no new leads to process")
		return report, nil
	}
	slog.Info("Outreach.Run: found new leads", "count", len(leads))

	for _, lead := range leads {
		report.Processed++
		j.processLead(ctx, lead, &report)
	}

	slog.Info("Outreach.Run: finished",
		"processed", report.Processed,
		"contacted", report.Contacted,
		"disqualified", report.Disqualified,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

func (j *Job) processLead(ctx context.Context, lead models.Lead, report *models.OutreachReport) {
	score, err := j.genAI.ScoreLead(ctx, lead)
	if err != nil {
		slog.Error("Outreach.processLead: scoring failed", "lead", lead.Name, "error", err)
		j.disqualify(ctx, lead, "Error en análisis", report)
		return
	}

	if !score.IsQualified {
		slog.Info("Outreach.processLead: lead not qualified", "lead", lead.Name, "reason", score.Reason)
		j.disqualify(ctx, lead, score.Reason, report)
		return
	}

	if lead.Phone == "" {
		slog.Warn("Outreach.processLead: qualified lead has no phone, skipping", "lead", lead.Name)
		report.Skipped++
		return
	}

	slog.Info("Outreach.processLead: lead qualified, sending opener",
		"lead", lead.Name, "score", score.Score)

	sid, err := j.sender.SendMessage(ctx, lead.Phone, score.SuggestedMessage)
	if err != nil {
		slog.Error("Outreach.processLead: send failed, lead stays New", "lead", lead.Name, "error", err)
		report.Failed++
		return
	}
	slog.Info("Outreach.processLead: opener sent", "lead", lead.Name, "deliveryID", sid)

	if err := j.store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusContacted); err != nil {
		slog.Error("Outreach.processLead: failed to mark lead contacted", "lead", lead.Name, "error", err)
		report.Failed++
		return
	}
	report.Contacted++
}

func (j *Job) disqualify(ctx context.Context, lead models.Lead, reason string, report *models.OutreachReport) {
	if err := j.store.UpdateLeadStatus(ctx, lead.ID, models.LeadStatusDisqualified); err != nil {
		slog.Error("Outreach.disqualify: failed to update status", "lead", lead.Name, "error", err)
		report.Failed++
		return
	}
	slog.Info("Outreach.disqualify: lead ruled out", "lead", lead.Name, "reason", reason)
	report.Disqualified++
}
