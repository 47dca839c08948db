package database

import (
	"fmt"

	"serialarr/pkg/models"
)

// CreateNotificationTarget creates a new notification target record
func (db *DB) CreateNotificationTarget(target *models.NotificationTarget) error {
	query := `
	INSERT INTO notification_targets (kind, target, enabled, events, attach_file)
	VALUES (?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		target.Kind, target.Target, target.Enabled, target.Events, target.AttachFile,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification target: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	target.ID = id
	return nil
}

// ListEnabledNotificationTargets retrieves all enabled notification targets
func (db *DB) ListEnabledNotificationTargets() ([]*models.NotificationTarget, error) {
	query := `
	SELECT id, kind, target, enabled, events, attach_file
	FROM notification_targets
	WHERE enabled = TRUE
	ORDER BY id ASC
	`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification targets: %w", err)
	}
	defer rows.Close()

	var targets []*models.NotificationTarget
	for rows.Next() {
		var t models.NotificationTarget
		if err := rows.Scan(&t.ID, &t.Kind, &t.Target, &t.Enabled, &t.Events, &t.AttachFile); err != nil {
			return nil, fmt.Errorf("failed to scan notification target: %w", err)
		}
		targets = append(targets, &t)
	}

	return targets, rows.Err()
}
