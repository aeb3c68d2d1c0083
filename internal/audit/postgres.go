package audit

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the postgres driver.
	_ "github.com/lib/pq"
)

// PostgresStore persists audit events in the scan_events table. Inserts are
// idempotent on the event id so a replayed kafka record cannot duplicate a
// row.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO scan_events (
			id, timestamp, action, result, error_code,
			country, entry_kind, uvci_hash, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Action),
		event.Result,
		event.ErrorCode,
		event.Country,
		event.EntryKind,
		event.UVCIHash,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, timestamp, action, result, error_code,
			   country, entry_kind, uvci_hash, request_id
		FROM scan_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event  Event
			action string
		)
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&action,
			&event.Result,
			&event.ErrorCode,
			&event.Country,
			&event.EntryKind,
			&event.UVCIHash,
			&event.RequestID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		event.Action = Action(action)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan events: %w", err)
	}
	return events, nil
}
