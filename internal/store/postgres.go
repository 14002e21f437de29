// Package store provides storage backends for LeadPipe.
//
// This file implements the PostgreSQL-backed store for leads and conversation turns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/violetwave/leadpipe/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db             *sql.DB
	phoneSuffixLen int
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := Opts{PhoneSuffixLen: DefaultPhoneSuffixLen}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "", "phone_suffix_len", cfg.PhoneSuffixLen)

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db, phoneSuffixLen: cfg.PhoneSuffixLen}, nil
}

func (s *PostgresStore) FindNewLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, status, notes, created_at, updated_at FROM leads WHERE status = $1 ORDER BY id`,
		models.LeadStatusNew)
	if err != nil {
		slog.Error("PostgresStore FindNewLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query new leads: %w", err)
	}
	defer rows.Close()
	leads, err := scanLeads(rows)
	if err != nil {
		slog.Error("PostgresStore FindNewLeads scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore FindNewLeads succeeded", "count", len(leads))
	return leads, nil
}

func (s *PostgresStore) AddLeads(ctx context.Context, leads []models.Lead) (models.AddLeadsReport, error) {
	var report models.AddLeadsReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("PostgresStore AddLeads begin failed", "error", err)
		return report, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadNormalizedPhones(ctx, tx)
	if err != nil {
		slog.Error("PostgresStore AddLeads phone load failed", "error", err)
		return report, err
	}

	now := time.Now()
	for _, l := range leads {
		normalized := models.NormalizePhone(l.Phone)
		if normalized != "" && existing[normalized] {
			report.Duplicates++
			continue
		}
		status := l.Status
		if status == "" {
			status = models.LeadStatusNew
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO leads (name, phone, normalized_phone, status, notes, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.Name, l.Phone, normalized, status, l.Notes, now, now); err != nil {
			slog.Error("PostgresStore AddLeads insert failed", "error", err, "phone", l.Phone)
			return report, fmt.Errorf("failed to insert lead %s: %w", l.Name, err)
		}
		if normalized != "" {
			existing[normalized] = true
		}
		report.Added++
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore AddLeads commit failed", "error", err)
		return report, fmt.Errorf("failed to commit leads: %w", err)
	}
	slog.Debug("PostgresStore AddLeads succeeded", "added", report.Added, "duplicates", report.Duplicates)
	return report, nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateLeadStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrLeadNotFound
	}
	slog.Debug("PostgresStore UpdateLeadStatus succeeded", "id", id, "status", status)
	return nil
}

func (s *PostgresStore) UpdateLeadStatusByPhone(ctx context.Context, phone string, status models.LeadStatus) (bool, error) {
	id, found, err := matchLeadByPhone(ctx, s.db, phone, s.phoneSuffixLen)
	if err != nil {
		slog.Error("PostgresStore UpdateLeadStatusByPhone match failed", "error", err, "phone", phone)
		return false, err
	}
	if !found {
		slog.Warn("PostgresStore UpdateLeadStatusByPhone no match", "phone", phone)
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id); err != nil {
		slog.Error("PostgresStore UpdateLeadStatusByPhone update failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	slog.Debug("PostgresStore UpdateLeadStatusByPhone succeeded", "id", id, "status", status)
	return true, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, contactID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE contact_id = $1 ORDER BY id`, contactID)
	if err != nil {
		slog.Error("PostgresStore GetConversation query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", contactID, err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) AppendTurn(ctx context.Context, contactID string, turn models.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (contact_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		contactID, turn.Role, turn.Content, time.Now())
	if err != nil {
		slog.Error("PostgresStore AppendTurn failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to append turn for %s: %w", contactID, err)
	}
	slog.Debug("PostgresStore AppendTurn succeeded", "contactID", contactID, "role", turn.Role)
	return nil
}

func (s *PostgresStore) CountTurns(ctx context.Context, contactID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE contact_id = $1`, contactID).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountTurns failed", "error", err, "contactID", contactID)
		return 0, fmt.Errorf("failed to count turns for %s: %w", contactID, err)
	}
	return count, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
