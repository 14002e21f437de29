package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/violetwave/leadpipe/internal/models"
)

// querier abstracts *sql.DB and *sql.Tx for the shared scan helpers.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// scanLeads scans lead rows produced by the standard lead column list.
func scanLeads(rows *sql.Rows) ([]models.Lead, error) {
	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Status, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

// scanTurns scans conversation turn rows (role, content).
func scanTurns(rows *sql.Rows) ([]models.Turn, error) {
	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	return turns, nil
}

// loadNormalizedPhones returns the set of normalized phones already stored.
func loadNormalizedPhones(ctx context.Context, q querier) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT normalized_phone FROM leads`)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing phones: %w", err)
	}
	defer rows.Close()

	phones := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan phone row: %w", err)
		}
		if p != "" {
			phones[p] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate phone rows: %w", err)
	}
	return phones, nil
}

// matchLeadByPhone finds the first lead whose stored phone matches the target
// on trailing digits. Matching happens in Go over the phone column, mirroring
// how inconsistent formats from caller ID, manual entry, and scraped data are
// reconciled.
func matchLeadByPhone(ctx context.Context, q querier, phone string, suffixLen int) (int64, bool, error) {
	target := models.NormalizePhone(phone)
	rows, err := q.QueryContext(ctx, `SELECT id, normalized_phone FROM leads ORDER BY id`)
	if err != nil {
		return 0, false, fmt.Errorf("failed to query lead phones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var stored string
		if err := rows.Scan(&id, &stored); err != nil {
			return 0, false, fmt.Errorf("failed to scan lead phone row: %w", err)
		}
		if phoneSuffixMatch(target, stored, suffixLen) {
			return id, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("failed to iterate lead phone rows: %w", err)
	}
	return 0, false, nil
}
