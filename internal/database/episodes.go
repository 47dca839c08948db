package database

import (
	"database/sql"
	"fmt"
	"time"

	"serialarr/pkg/models"
)

const episodeColumns = `id, work_id, title, source_url, sequence, volume_number,
	   volume_title, tags, status, local_path, published_at, claimed_at,
	   created_at, updated_at`

func scanEpisode(row interface{ Scan(...any) error }) (*models.Episode, error) {
	var ep models.Episode
	err := row.Scan(
		&ep.ID, &ep.WorkID, &ep.Title, &ep.SourceURL, &ep.Sequence,
		&ep.VolumeNumber, &ep.VolumeTitle, &ep.Tags, &ep.Status,
		&ep.LocalPath, &ep.PublishedAt, &ep.ClaimedAt,
		&ep.CreatedAt, &ep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// CreateEpisode creates a new episode record
func (db *DB) CreateEpisode(ep *models.Episode) error {
	query := `
	INSERT INTO episodes (
		work_id, title, source_url, sequence, volume_number, volume_title,
		tags, status, local_path, published_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.conn.Exec(query,
		ep.WorkID, ep.Title, ep.SourceURL, ep.Sequence, ep.VolumeNumber,
		ep.VolumeTitle, ep.Tags, ep.Status, ep.LocalPath, ep.PublishedAt,
		ep.CreatedAt, ep.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	ep.ID = id
	return nil
}

// GetEpisode retrieves an episode by ID
func (db *DB) GetEpisode(id int64) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = ?`

	ep, err := scanEpisode(db.conn.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("episode %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	return ep, nil
}

// ListEpisodesByWork retrieves all episodes of a work ordered by sequence
func (db *DB) ListEpisodesByWork(workID int64) ([]*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE work_id = ? ORDER BY sequence ASC, id ASC`

	rows, err := db.conn.Query(query, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	return episodes, rows.Err()
}

// LatestEpisode returns the episode of a work with the highest sequence index,
// or nil when the work has no episodes
func (db *DB) LatestEpisode(workID int64) (*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE work_id = ? ORDER BY sequence DESC, id DESC LIMIT 1`

	ep, err := scanEpisode(db.conn.QueryRow(query, workID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest episode: %w", err)
	}

	return ep, nil
}

// DatedEpisodes returns a work's episodes with a publish timestamp, ordered by time
func (db *DB) DatedEpisodes(workID int64) ([]*models.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE work_id = ? AND published_at IS NOT NULL ORDER BY published_at ASC, id ASC`

	rows, err := db.conn.Query(query, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dated episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*models.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		episodes = append(episodes, ep)
	}

	return episodes, rows.Err()
}

// UpdateEpisodeListing persists listing-derived fields reconciled by the diff
// algorithm. Status and local path are never touched here.
func (db *DB) UpdateEpisodeListing(ep *models.Episode) error {
	query := `
	UPDATE episodes SET
		sequence = ?, volume_number = ?, volume_title = ?, tags = ?,
		published_at = ?, updated_at = ?
	WHERE id = ?
	`

	_, err := db.conn.Exec(query,
		ep.Sequence, ep.VolumeNumber, ep.VolumeTitle, ep.Tags,
		ep.PublishedAt, time.Now(), ep.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update episode listing fields: %w", err)
	}

	return nil
}

// MarkEpisodeDownloaded transitions an episode to downloaded, records its
// local path and releases its claim
func (db *DB) MarkEpisodeDownloaded(id int64, localPath string) error {
	query := `
	UPDATE episodes SET status = ?, local_path = ?, claimed_at = NULL, updated_at = ?
	WHERE id = ?
	`

	_, err := db.conn.Exec(query, models.StatusDownloaded, localPath, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark episode downloaded: %w", err)
	}

	return nil
}

// MarkEpisodeFailed transitions an episode to failed and releases its claim
func (db *DB) MarkEpisodeFailed(id int64) error {
	query := `
	UPDATE episodes SET status = ?, claimed_at = NULL, updated_at = ?
	WHERE id = ?
	`

	_, err := db.conn.Exec(query, models.StatusFailed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark episode failed: %w", err)
	}

	return nil
}

// RetryFailed transitions all failed episodes of a work back to pending and
// returns the number of episodes affected
func (db *DB) RetryFailed(workID int64) (int64, error) {
	query := `
	UPDATE episodes SET status = ?, claimed_at = NULL, updated_at = ?
	WHERE work_id = ? AND status = ?
	`

	result, err := db.conn.Exec(query, models.StatusPending, time.Now(), workID, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to retry failed episodes: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// CountUnfinished counts a work's episodes still pending or failed
func (db *DB) CountUnfinished(workID int64) (int, error) {
	query := `SELECT COUNT(*) FROM episodes WHERE work_id = ? AND status IN (?, ?)`

	var count int
	err := db.conn.QueryRow(query, workID, models.StatusPending, models.StatusFailed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unfinished episodes: %w", err)
	}

	return count, nil
}

// ClaimNextPending selects and claims the next pending episode under the
// fairness policy: the work with the fewest pending episodes first, its
// oldest pending episode within it. When the fairness query yields nothing
// it falls back to the globally oldest pending episode. The claim itself is
// an atomic compare-and-swap on claimed_at, so two concurrent drains can
// never claim the same episode. Claims older than staleBefore are treated
// as abandoned and may be re-claimed.
//
// Returns nil when no claimable episode exists.
func (db *DB) ClaimNextPending(staleBefore time.Time) (*models.Episode, error) {
	fairness := `
	SELECT e.id
	FROM episodes e
	JOIN (
		SELECT work_id, COUNT(*) AS pending_count
		FROM episodes
		WHERE status = ? AND (claimed_at IS NULL OR claimed_at < ?)
		GROUP BY work_id
		ORDER BY pending_count ASC, work_id ASC
		LIMIT 1
	) w ON e.work_id = w.work_id
	WHERE e.status = ? AND (e.claimed_at IS NULL OR e.claimed_at < ?)
	ORDER BY e.id ASC
	LIMIT 1
	`

	fallback := `
	SELECT id FROM episodes
	WHERE status = ? AND (claimed_at IS NULL OR claimed_at < ?)
	ORDER BY id ASC
	LIMIT 1
	`

	// A lost CAS race means another drain took the candidate; pick again.
	for attempt := 0; attempt < 5; attempt++ {
		var id int64
		err := db.conn.QueryRow(fairness,
			models.StatusPending, staleBefore,
			models.StatusPending, staleBefore,
		).Scan(&id)
		if err == sql.ErrNoRows {
			err = db.conn.QueryRow(fallback, models.StatusPending, staleBefore).Scan(&id)
		}
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select pending episode: %w", err)
		}

		result, err := db.conn.Exec(
			`UPDATE episodes SET claimed_at = ? WHERE id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)`,
			time.Now(), id, models.StatusPending, staleBefore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to claim episode: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}

		return db.GetEpisode(id)
	}

	return nil, nil
}

// ReclaimStaleClaims clears episode claims left behind by an interrupted
// drain so the episodes become eligible again
func (db *DB) ReclaimStaleClaims() (int64, error) {
	result, err := db.conn.Exec(
		`UPDATE episodes SET claimed_at = NULL WHERE claimed_at IS NOT NULL AND status = ?`,
		models.StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale claims: %w", err)
	}

	return result.RowsAffected()
}
