// Package store provides storage backends for LeadPipe.
//
// This file implements the SQLite-backed store for leads and conversation turns.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/violetwave/leadpipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db             *sql.DB
	phoneSuffixLen int
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := Opts{PhoneSuffixLen: DefaultPhoneSuffixLen}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "phone_suffix_len", cfg.PhoneSuffixLen)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, phoneSuffixLen: cfg.PhoneSuffixLen}, nil
}

func (s *SQLiteStore) FindNewLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, status, notes, created_at, updated_at FROM leads WHERE status = ? ORDER BY id`,
		models.LeadStatusNew)
	if err != nil {
		slog.Error("SQLiteStore FindNewLeads query failed", "error", err)
		return nil, fmt.Errorf("failed to query new leads: %w", err)
	}
	defer rows.Close()
	leads, err := scanLeads(rows)
	if err != nil {
		slog.Error("SQLiteStore FindNewLeads scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore FindNewLeads succeeded", "count", len(leads))
	return leads, nil
}

func (s *SQLiteStore) AddLeads(ctx context.Context, leads []models.Lead) (models.AddLeadsReport, error) {
	var report models.AddLeadsReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("SQLiteStore AddLeads begin failed", "error", err)
		return report, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := loadNormalizedPhones(ctx, tx)
	if err != nil {
		slog.Error("SQLiteStore AddLeads phone load failed", "error", err)
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
			`INSERT INTO leads (name, phone, normalized_phone, status, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.Name, l.Phone, normalized, status, l.Notes, now, now); err != nil {
			slog.Error("SQLiteStore AddLeads insert failed", "error", err, "phone", l.Phone)
			return report, fmt.Errorf("failed to insert lead %s: %w", l.Name, err)
		}
		if normalized != "" {
			existing[normalized] = true
		}
		report.Added++
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore AddLeads commit failed", "error", err)
		return report, fmt.Errorf("failed to commit leads: %w", err)
	}
	slog.Debug("SQLiteStore AddLeads succeeded", "added", report.Added, "duplicates", report.Duplicates)
	return report, nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id int64, status models.LeadStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateLeadStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return models.ErrLeadNotFound
	}
	slog.Debug("SQLiteStore UpdateLeadStatus succeeded", "id", id, "status", status)
	return nil
}

func (s *SQLiteStore) UpdateLeadStatusByPhone(ctx context.Context, phone string, status models.LeadStatus) (bool, error) {
	id, found, err := matchLeadByPhone(ctx, s.db, phone, s.phoneSuffixLen)
	if err != nil {
		slog.Error("SQLiteStore UpdateLeadStatusByPhone match failed", "error", err, "phone", phone)
		return false, err
	}
	if !found {
		slog.Warn("SQLiteStore UpdateLeadStatusByPhone no match", "phone", phone)
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id); err != nil {
		slog.Error("SQLiteStore UpdateLeadStatusByPhone update failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to update lead %d: %w", id, err)
	}
	slog.Debug("SQLiteStore UpdateLeadStatusByPhone succeeded", "id", id, "status", status)
	return true, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, contactID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM conversation_turns WHERE contact_id = ? ORDER BY id`, contactID)
	if err != nil {
		slog.Error("SQLiteStore GetConversation query failed", "error", err, "contactID", contactID)
		return nil, fmt.Errorf("failed to query conversation for %s: %w", contactID, err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, contactID string, turn models.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (contact_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		contactID, turn.Role, turn.Content, time.Now())
	if err != nil {
		slog.Error("SQLiteStore AppendTurn failed", "error", err, "contactID", contactID)
		return fmt.Errorf("failed to append turn for %s: %w", contactID, err)
	}
	slog.Debug("SQLiteStore AppendTurn succeeded", "contactID", contactID, "role", turn.Role)
	return nil
}

func (s *SQLiteStore) CountTurns(ctx context.Context, contactID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_turns WHERE contact_id = ?`, contactID).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountTurns failed", "error", err, "contactID", contactID)
		return 0, fmt.Errorf("failed to count turns for %s: %w", contactID, err)
	}
	return count, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
