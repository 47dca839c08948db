package database

import (
	"fmt"
	"log/slog"
	"time"

	"serialarr/pkg/models"
)

// AppendHistory writes one immutable download attempt record
func (db *DB) AppendHistory(h *models.DownloadHistory) error {
	query := `
	INSERT INTO download_history (episode_id, work_id, status, detail, created_at)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query, h.EpisodeID, h.WorkID, h.Status, h.Detail, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append download history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	h.ID = id
	return nil
}

// ListHistoryByWork retrieves a work's download history, newest first
func (db *DB) ListHistoryByWork(workID int64) ([]*models.DownloadHistory, error) {
	query := `
	SELECT id, episode_id, work_id, status, detail, created_at
	FROM download_history
	WHERE work_id = ?
	ORDER BY created_at DESC, id DESC
	`

	rows, err := db.conn.Query(query, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list download history: %w", err)
	}
	defer rows.Close()

	var history []*models.DownloadHistory
	for rows.Next() {
		var h models.DownloadHistory
		if err := rows.Scan(&h.ID, &h.EpisodeID, &h.WorkID, &h.Status, &h.Detail, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download history: %w", err)
		}
		history = append(history, &h)
	}

	return history, rows.Err()
}

// DeleteOldHistory removes download history rows older than the given retention
func (db *DB) DeleteOldHistory(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)

	result, err := db.conn.Exec(`DELETE FROM download_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete old history: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		slog.Info("Deleted old download history", "count", rowsAffected, "cutoff", cutoff)
	}

	return nil
}
