// Package scraper finds prospect businesses through the Apify Google Places
// actor and saves the ones with a phone number into the lead directory.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/violetwave/leadpipe/internal/models"
	"github.com/violetwave/leadpipe/internal/store"
)

const (
	// DefaultAPIBaseURL is the Apify API root.
	DefaultAPIBaseURL = "https://api.apify.com"

	// placesActor is the actor id in URL form ("/" replaced with "~").
	placesActor = "compass~crawler-google-places"

	// minTokenLen is the shortest token accepted before attempting a run.
	minTokenLen = 10

	// DefaultRunTimeout bounds one synchronous actor run. Place crawls are
	// slow; the run-sync endpoint holds the connection open until done.
	DefaultRunTimeout = 5 * time.Minute
)

// UserError is a request problem the caller can fix (e.g. a missing token).
// It is reported back to the user verbatim instead of being logged as a fault.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// SearchParams describes one lead search.
type SearchParams struct {
	City       string `json:"city"`
	Country    string `json:"country"`
	Niche      string `json:"niche"`
	Limit      int    `json:"limit"`
	ApifyToken string `json:"apify_token"`
}

// Opts holds configuration options for the scraper.
type Opts struct {
	Store      store.Store
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the scraper.
type Option func(*Opts)

// WithStore sets the lead directory leads are saved into.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithBaseURL overrides the Apify API root (for tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Scraper runs place searches and persists the results.
type Scraper struct {
	store      store.Store
	baseURL    string
	httpClient *http.Client
}

// NewScraper creates a scraper. The store is required.
func NewScraper(opts ...Option) (*Scraper, error) {
	cfg := Opts{BaseURL: DefaultAPIBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRunTimeout}
	}
	return &Scraper{store: cfg.Store, baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

// actorInput is the Google Places actor run input.
type actorInput struct {
	SearchStringsArray        []string `json:"searchStringsArray"`
	MaxCrawledPlacesPerSearch int      `json:"maxCrawledPlacesPerSearch"`
	Language                  string   `json:"language"`
	OnlyDirectPlaces          bool     `json:"onlyDirectPlaces"`
}

// placeItem is the subset of an actor dataset item the scraper uses.
type placeItem struct {
	Title            string `json:"title"`
	Phone            string `json:"phone"`
	PhoneUnformatted string `json:"phoneUnformatted"`
	Website          string `json:"website"`
	GoogleMapsURL    string `json:"googleMapsUrl"`
}

// SearchAndSave runs one place search and saves every result with a phone
// number as a New lead. Token problems come back as *UserError.
func (s *Scraper) SearchAndSave(ctx context.Context, params SearchParams) (models.ScrapeReport, error) {
	var report models.ScrapeReport

	if len(params.ApifyToken) < minTokenLen {
		slog.Warn("Scraper.SearchAndSave: rejected search without a valid token")
		return report, &UserError{Message: "⚠️ Error: Debes ingresar TU Token de Apify para poder buscar leads. No se ha realizado ninguna búsqueda."}
	}

	query := fmt.Sprintf("%s en %s, %s", params.Niche, params.City, params.Country)
	slog.Info("Scraper.SearchAndSave: searching", "query", query, "limit", params.Limit)

	items, err := s.runPlacesActor(ctx, params.ApifyToken, actorInput{
		SearchStringsArray:        []string{query},
		MaxCrawledPlacesPerSearch: params.Limit,
		Language:                  "es",
		OnlyDirectPlaces:          false,
	})
	if err != nil {
		return report, err
	}

	var leads []models.Lead
	for _, item := range items {
		phone := item.PhoneUnformatted
		if phone == "" {
			phone = item.Phone
		}
		if phone == "" {
			continue
		}
		leads = append(leads, models.Lead{
			Name:   item.Title,
			Phone:  phone,
			Status: models.LeadStatusNew,
			Notes:  fmt.Sprintf("Nicho: %s | Web: %s | Maps: %s", params.Niche, item.Website, item.GoogleMapsURL),
		})
	}
	slog.Info("Scraper.SearchAndSave: raw results", "found", len(leads), "crawled", len(items))

	added, err := s.store.AddLeads(ctx, leads)
	if err != nil {
		return report, fmt.Errorf("failed to save scraped leads: %w", err)
	}

	report = models.ScrapeReport{
		Found:      len(leads),
		AddedNew:   added.Added,
		Duplicates: added.Duplicates,
		City:       params.City,
		Niche:      params.Niche,
	}
	slog.Info("Scraper.SearchAndSave: done", "found", report.Found, "added", report.AddedNew, "duplicates", report.Duplicates)
	return report, nil
}

// runPlacesActor calls the run-sync endpoint, which blocks until the actor
// finishes and returns its default dataset items.
func (s *Scraper) runPlacesActor(ctx context.Context, token string, input actorInput) ([]placeItem, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		s.baseURL, placesActor, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor run failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &UserError{Message: "El Token de Apify ingresado no es válido o ha expirado."}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("actor run returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var items []placeItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to decode dataset items: %w", err)
	}
	return items, nil
}
