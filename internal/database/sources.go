package database

import (
	"database/sql"
	"fmt"

	"serialarr/pkg/models"
)

// GetSourceRecord retrieves the persisted state for a provider key
func (db *DB) GetSourceRecord(key string) (*models.SourceRecord, error) {
	query := `SELECT key, enabled, config FROM sources WHERE key = ?`

	var rec models.SourceRecord
	err := db.conn.QueryRow(query, key).Scan(&rec.Key, &rec.Enabled, &rec.Config)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("source %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get source record: %w", err)
	}

	return &rec, nil
}

// UpsertSourceRecord inserts or updates the persisted state for a provider key
func (db *DB) UpsertSourceRecord(rec *models.SourceRecord) error {
	query := `
	INSERT INTO sources (key, enabled, config) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET enabled = excluded.enabled, config = excluded.config
	`

	_, err := db.conn.Exec(query, rec.Key, rec.Enabled, rec.Config)
	if err != nil {
		return fmt.Errorf("failed to upsert source record: %w", err)
	}

	return nil
}

// ListSourceRecords retrieves all persisted provider states
func (db *DB) ListSourceRecords() ([]*models.SourceRecord, error) {
	rows, err := db.conn.Query(`SELECT key, enabled, config FROM sources ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source records: %w", err)
	}
	defer rows.Close()

	var records []*models.SourceRecord
	for rows.Next() {
		var rec models.SourceRecord
		if err := rows.Scan(&rec.Key, &rec.Enabled, &rec.Config); err != nil {
			return nil, fmt.Errorf("failed to scan source record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
