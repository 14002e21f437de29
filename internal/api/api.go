// Package api provides HTTP handlers and the main API server logic for the
// lead qualification service.
//
// It exposes the inbound WhatsApp webhook, a manual outreach trigger, the lead
// search endpoint, and a health probe. The API integrates with the
// conversation engine, the outreach job, the scraper, and the messaging
// service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/violetwave/leadpipe/internal/messaging"
	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/scraper"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// conversationHandler processes one inbound contact message.
type conversationHandler interface {
	HandleMessage(ctx context.Context, from, body string) (models.Outcome, error)
}

// outreachRunner triggers one outreach pass over the lead directory.
type outreachRunner interface {
	Run(ctx context.Context) (models.OutreachReport, error)
}

// leadSearcher runs a place search and saves the results.
type leadSearcher interface {
	SearchAndSave(ctx context.Context, params scraper.SearchParams) (models.ScrapeReport, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	Engine     conversationHandler
	Outreach   outreachRunner
	Scraper    leadSearcher
	MsgService messaging.Service
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithEngine sets the conversation engine.
func WithEngine(e conversationHandler) Option {
	return func(o *Opts) { o.Engine = e }
}

// WithOutreach sets the outreach job.
func WithOutreach(j outreachRunner) Option {
	return func(o *Opts) { o.Outreach = j }
}

// WithScraper sets the lead searcher.
func WithScraper(s leadSearcher) Option {
	return func(o *Opts) { o.Scraper = s }
}

// WithMessagingService sets the messaging service whose inbound channel is
// consumed for live-connection backends.
func WithMessagingService(m messaging.Service) Option {
	return func(o *Opts) { o.MsgService = m }
}

// Server hosts the HTTP API and the inbound message consumer.
type Server struct {
	addr       string
	engine     conversationHandler
	outreach   outreachRunner
	scraper    leadSearcher
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer creates the API server. The engine is required; outreach, scraper,
// and messaging service are optional and their endpoints report unavailable
// when absent.
func NewServer(opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("conversation engine is required")
	}
	return &Server{
		addr:       cfg.Addr,
		engine:     cfg.Engine,
		outreach:   cfg.Outreach,
		scraper:    cfg.Scraper,
		msgService: cfg.MsgService,
	}, nil
}

// routes builds the request multiplexer.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/whatsapp", s.webhookHandler)
	mux.HandleFunc("/outreach/run", s.outreachHandler)
	mux.HandleFunc("/leads/search", s.leadSearchHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Start runs the HTTP server and, when a messaging service is configured,
// consumes its inbound channel. Blocks until the listener stops.
func (s *Server) Start(ctx context.Context) error {
	if s.msgService != nil {
		go s.consumeInbound(ctx)
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Server.Start: API listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// consumeInbound routes live-connection messages (whatsmeow backend) through
// the conversation engine. Twilio delivers through the webhook instead and its
// channel never emits.
func (s *Server) consumeInbound(ctx context.Context) {
	ch := s.msgService.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			outcome, err := s.engine.HandleMessage(ctx, msg.From, msg.Body)
			if err != nil {
				slog.Error("Server.consumeInbound: failed to handle message", "from", msg.From, "error", err)
				continue
			}
			slog.Info("Server.consumeInbound: message handled", "from", msg.From, "outcome", outcome)
		}
	}
}
