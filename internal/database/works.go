package database

import (
	"database/sql"
	"fmt"
	"time"

	"serialarr/pkg/models"
)

const workColumns = `id, source_url, title, author, description, cover_url, tags,
	   rating, language, publication_status, status, monitored,
	   notify_new_episodes, profile_id, provider_key, last_checked,
	   last_updated, created_at`

func scanWork(row interface{ Scan(...any) error }) (*models.Work, error) {
	var work models.Work
	err := row.Scan(
		&work.ID, &work.SourceURL, &work.Title, &work.Author, &work.Description,
		&work.CoverURL, &work.Tags, &work.Rating, &work.Language,
		&work.PublicationStatus, &work.Status, &work.Monitored,
		&work.NotifyNewEpisodes, &work.ProfileID, &work.ProviderKey,
		&work.LastChecked, &work.LastUpdated, &work.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &work, nil
}

// CreateWork creates a new work record
func (db *DB) CreateWork(work *models.Work) error {
	query := `
	INSERT INTO works (
		source_url, title, author, description, cover_url, tags, rating,
		language, publication_status, status, monitored, notify_new_episodes,
		profile_id, provider_key, last_checked, last_updated, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		work.SourceURL, work.Title, work.Author, work.Description,
		work.CoverURL, work.Tags, work.Rating, work.Language,
		work.PublicationStatus, work.Status, work.Monitored,
		work.NotifyNewEpisodes, work.ProfileID, work.ProviderKey,
		work.LastChecked, work.LastUpdated, work.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create work: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	work.ID = id
	return nil
}

// GetWork retrieves a work by ID
func (db *DB) GetWork(id int64) (*models.Work, error) {
	query := `SELECT ` + workColumns + ` FROM works WHERE id = ?`

	work, err := scanWork(db.conn.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("work %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get work: %w", err)
	}

	return work, nil
}

// GetWorkByURL retrieves a work by its canonical source URL
func (db *DB) GetWorkByURL(url string) (*models.Work, error) {
	query := `SELECT ` + workColumns + ` FROM works WHERE source_url = ?`

	work, err := scanWork(db.conn.QueryRow(query, url))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("work %q: %w", url, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get work by url: %w", err)
	}

	return work, nil
}

// UpdateWork updates an existing work record
func (db *DB) UpdateWork(work *models.Work) error {
	query := `
	UPDATE works SET
		title = ?, author = ?, description = ?, cover_url = ?, tags = ?,
		rating = ?, language = ?, publication_status = ?, status = ?,
		monitored = ?, notify_new_episodes = ?, profile_id = ?,
		provider_key = ?, last_checked = ?, last_updated = ?
	WHERE id = ?
	`

	_, err := db.conn.Exec(query,
		work.Title, work.Author, work.Description, work.CoverURL, work.Tags,
		work.Rating, work.Language, work.PublicationStatus, work.Status,
		work.Monitored, work.NotifyNewEpisodes, work.ProfileID,
		work.ProviderKey, work.LastChecked, work.LastUpdated, work.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update work: %w", err)
	}

	return nil
}

// ListMonitoredWorkIDs returns the IDs of all monitored works
func (db *DB) ListMonitoredWorkIDs() ([]int64, error) {
	rows, err := db.conn.Query(`SELECT id FROM works WHERE monitored = TRUE ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitored works: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan work id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListWorksMissingDescription returns works whose description is empty
func (db *DB) ListWorksMissingDescription() ([]*models.Work, error) {
	query := `SELECT ` + workColumns + ` FROM works WHERE description = '' ORDER BY id ASC`

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list works missing metadata: %w", err)
	}
	defer rows.Close()

	var works []*models.Work
	for rows.Next() {
		work, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work: %w", err)
		}
		works = append(works, work)
	}

	return works, rows.Err()
}

// ListWorkSummaries returns all works joined with their episode progress
func (db *DB) ListWorkSummaries() ([]*models.WorkSummary, error) {
	query := `
	SELECT w.id, w.title, w.author, w.monitored,
		   COUNT(e.id) AS total,
		   COALESCE(SUM(CASE WHEN e.status = ? THEN 1 ELSE 0 END), 0) AS downloaded
	FROM works w
	LEFT JOIN episodes e ON e.work_id = w.id
	GROUP BY w.id
	ORDER BY w.id ASC
	`

	rows, err := db.conn.Query(query, models.StatusDownloaded)
	if err != nil {
		return nil, fmt.Errorf("failed to list work summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*models.WorkSummary
	for rows.Next() {
		var s models.WorkSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Author, &s.Monitored, &s.Total, &s.Downloaded); err != nil {
			return nil, fmt.Errorf("failed to scan work summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	return summaries, rows.Err()
}

// DeleteWork removes a work, its episodes and its download history
func (db *DB) DeleteWork(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM download_history WHERE work_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete download history: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM episodes WHERE work_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete episodes: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM works WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete work: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("work %d: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// TouchWorkChecked sets last_checked, and last_updated when updated is true
func (db *DB) TouchWorkChecked(id int64, updated bool, now time.Time) error {
	var err error
	if updated {
		_, err = db.conn.Exec(`UPDATE works SET last_checked = ?, last_updated = ? WHERE id = ?`, now, now, id)
	} else {
		_, err = db.conn.Exec(`UPDATE works SET last_checked = ? WHERE id = ?`, now, id)
	}
	if err != nil {
		return fmt.Errorf("failed to touch work timestamps: %w", err)
	}
	return nil
}
