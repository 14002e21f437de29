// Package api provides HTTP handlers for the lead qualification endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/outreach"
	"github.com/violetwave/leadpipe/internal/scraper"
)

// webhookResponse is the body returned to the messaging provider after an
// inbound message is processed.
type webhookResponse struct {
	Status models.Outcome `json:"status"`
}

// webhookHandler receives inbound WhatsApp messages as form posts (Twilio
// webhook format: From, Body) and runs them through the conversation engine.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form payload"))
		return
	}
	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" || body == "" {
		slog.Warn("Server.webhookHandler: missing form fields", "from", from)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: From, Body"))
		return
	}

	outcome, err := s.engine.HandleMessage(r.Context(), from, body)
	if err != nil {
		slog.Error("Server.webhookHandler: failed to handle message", "from", from, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.webhookHandler: message handled", "from", from, "outcome", outcome)
	writeJSONResponse(w, http.StatusOK, webhookResponse{Status: outcome})
}

// outreachHandler triggers one synchronous outreach run and returns its report.
func (s *Server) outreachHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.outreachHandler: processing outreach trigger", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.outreach == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Outreach job not configured"))
		return
	}

	report, err := s.outreach.Run(r.Context())
	if err != nil {
		if errors.Is(err, outreach.ErrRunInProgress) {
			slog.Warn("Server.outreachHandler: run already in progress")
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("Server.outreachHandler: run failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Outreach run failed"))
		return
	}

	slog.Info("Server.outreachHandler: run finished", "processed", report.Processed, "contacted", report.Contacted)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Outreach run completed", report))
}

// leadSearchHandler runs a place search via the scraper and saves the results
// into the lead directory.
func (s *Server) leadSearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.leadSearchHandler: processing search request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.scraper == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Lead search not configured"))
		return
	}

	var req struct {
		scraper.SearchParams
		// Legacy clients sent a per-request sheet target; leads now always
		// land in the service's own directory.
		SpreadsheetID string `json:"spreadsheet_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.leadSearchHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.SpreadsheetID != "" {
		slog.Warn("Server.leadSearchHandler: rejected unsupported spreadsheet target", "spreadsheet_id", req.SpreadsheetID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("spreadsheet_id is not supported: leads are saved to the service's lead directory"))
		return
	}
	params := req.SearchParams
	if params.City == "" || params.Niche == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: city, niche"))
		return
	}

	report, err := s.scraper.SearchAndSave(r.Context(), params)
	if err != nil {
		var userErr *scraper.UserError
		if errors.As(err, &userErr) {
			slog.Warn("Server.leadSearchHandler: rejected search", "reason", userErr.Message)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(userErr.Message))
			return
		}
		slog.Error("Server.leadSearchHandler: search failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Lead search failed"))
		return
	}

	slog.Info("Server.leadSearchHandler: search finished", "found", report.Found, "added", report.AddedNew)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Lead search completed", report))
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}
