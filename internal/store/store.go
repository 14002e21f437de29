// Package store provides storage backends for LeadPipe.
//
// It persists the lead directory and per-contact conversation history, with
// SQLite and PostgreSQL implementations plus an in-memory store for tests.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/violetwave/leadpipe/internal/models"
)

// DefaultPhoneSuffixLen is the number of trailing digits compared when matching
// phone numbers across differently formatted sources.
const DefaultPhoneSuffixLen = 8

// Store defines the persistence operations shared by all backends.
type Store interface {
	// FindNewLeads returns all leads whose status is exactly New.
	FindNewLeads(ctx context.Context) ([]models.Lead, error)

	// AddLeads inserts leads whose normalized phone is not already present,
	// checking both the store and earlier entries of the same batch.
	AddLeads(ctx context.Context, leads []models.Lead) (models.AddLeadsReport, error)

	// UpdateLeadStatus updates a lead's status by row id.
	UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error

	// UpdateLeadStatusByPhone updates the first lead whose phone matches the
	// given one on trailing digits. Returns whether a match was found.
	UpdateLeadStatusByPhone(ctx context.Context, phone string, status models.LeadStatus) (bool, error)

	// GetConversation returns the ordered turn history for a contact.
	GetConversation(ctx context.Context, contactID string) ([]models.Turn, error)

	// AppendTurn appends one turn to a contact's history.
	AppendTurn(ctx context.Context, contactID string, turn models.Turn) error

	// CountTurns returns the number of turns recorded for a contact.
	CountTurns(ctx context.Context, contactID string) (int, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN            string
	PhoneSuffixLen int
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the backend DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the backend DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPhoneSuffixLen overrides the trailing-digit window used for phone matching.
func WithPhoneSuffixLen(n int) Option {
	return func(o *Opts) { o.PhoneSuffixLen = n }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite" for anything else (assumed to be a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// phoneSuffixMatch reports whether the stored phone matches the target on its
// last suffixLen digits. Both arguments must already be normalized. Matching is
// deliberately fuzzy: a stored number without country code still matches an
// inbound caller ID that carries one.
func phoneSuffixMatch(target, stored string, suffixLen int) bool {
	if stored == "" || target == "" {
		return false
	}
	suffix := stored
	if len(stored) > suffixLen {
		suffix = stored[len(stored)-suffixLen:]
	}
	return strings.HasSuffix(target, suffix)
}

// InMemoryStore is a non-durable Store used in tests.
type InMemoryStore struct {
	mu             sync.Mutex
	leads          []models.Lead
	conversations  map[string][]models.Turn
	nextID         int64
	phoneSuffixLen int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := Opts{PhoneSuffixLen: DefaultPhoneSuffixLen}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &InMemoryStore{
		conversations:  make(map[string][]models.Turn),
		nextID:         1,
		phoneSuffixLen: cfg.PhoneSuffixLen,
	}
}

func (s *InMemoryStore) FindNewLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, l := range s.leads {
		if l.Status == models.LeadStatusNew {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddLeads(ctx context.Context, leads []models.Lead) (models.AddLeadsReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]bool)
	for _, l := range s.leads {
		if n := models.NormalizePhone(l.Phone); n != "" {
			existing[n] = true
		}
	}
	var report models.AddLeadsReport
	now := time.Now()
	for _, l := range leads {
		normalized := models.NormalizePhone(l.Phone)
		if normalized != "" && existing[normalized] {
			report.Duplicates++
			continue
		}
		l.ID = s.nextID
		s.nextID++
		if l.Status == "" {
			l.Status = models.LeadStatusNew
		}
		l.CreatedAt = now
		l.UpdatedAt = now
		s.leads = append(s.leads, l)
		if normalized != "" {
			existing[normalized] = true
		}
		report.Added++
	}
	return report, nil
}

func (s *InMemoryStore) UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leads {
		if s.leads[i].ID == id {
			s.leads[i].Status = status
			s.leads[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return models.ErrLeadNotFound
}

func (s *InMemoryStore) UpdateLeadStatusByPhone(ctx context.Context, phone string, status models.LeadStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := models.NormalizePhone(phone)
	for i := range s.leads {
		if phoneSuffixMatch(target, models.NormalizePhone(s.leads[i].Phone), s.phoneSuffixLen) {
			s.leads[i].Status = status
			s.leads[i].UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, contactID string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.conversations[contactID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *InMemoryStore) AppendTurn(ctx context.Context, contactID string, turn models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[contactID] = append(s.conversations[contactID], turn)
	return nil
}

func (s *InMemoryStore) CountTurns(ctx context.Context, contactID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations[contactID]), nil
}

func (s *InMemoryStore) Close() error { return nil }
