// Package models defines the data structures used throughout the application
package models

import (
	"strings"
	"time"
)

// EpisodeStatus represents the download status of an episode
type EpisodeStatus string

const (
	StatusPending    EpisodeStatus = "pending"
	StatusDownloaded EpisodeStatus = "downloaded"
	StatusFailed     EpisodeStatus = "failed"
)

// WorkStatus labels describe the tracking state of a work
const (
	WorkStatusMonitoring = "Monitoring"
)

// Work represents a monitored serialized title
type Work struct {
	ID                int64      `json:"id" db:"id"`
	SourceURL         string     `json:"source_url" db:"source_url"`
	Title             string     `json:"title" db:"title"`
	Author            string     `json:"author" db:"author"`
	Description       string     `json:"description" db:"description"`
	CoverURL          string     `json:"cover_url" db:"cover_url"`
	Tags              string     `json:"tags" db:"tags"`
	Rating            string     `json:"rating" db:"rating"`
	Language          string     `json:"language" db:"language"`
	PublicationStatus string     `json:"publication_status" db:"publication_status"`
	Status            string     `json:"status" db:"status"`
	Monitored         bool       `json:"monitored" db:"monitored"`
	NotifyNewEpisodes bool       `json:"notify_new_episodes" db:"notify_new_episodes"`
	ProfileID         int64      `json:"profile_id" db:"profile_id"`
	ProviderKey       string     `json:"provider_key" db:"provider_key"`
	LastChecked       *time.Time `json:"last_checked" db:"last_checked"`
	LastUpdated       *time.Time `json:"last_updated" db:"last_updated"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// Episode represents one installment of a work
type Episode struct {
	ID           int64         `json:"id" db:"id"`
	WorkID       int64         `json:"work_id" db:"work_id"`
	Title        string        `json:"title" db:"title"`
	SourceURL    string        `json:"source_url" db:"source_url"`
	Sequence     int           `json:"sequence" db:"sequence"`
	VolumeNumber int           `json:"volume_number" db:"volume_number"`
	VolumeTitle  string        `json:"volume_title" db:"volume_title"`
	Tags         string        `json:"tags" db:"tags"`
	Status       EpisodeStatus `json:"status" db:"status"`
	LocalPath    string        `json:"local_path" db:"local_path"`
	PublishedAt  *time.Time    `json:"published_at" db:"published_at"`
	ClaimedAt    *time.Time    `json:"claimed_at" db:"claimed_at"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// DownloadHistory is an append-only record of one download attempt outcome
type DownloadHistory struct {
	ID        int64     `json:"id" db:"id"`
	EpisodeID int64     `json:"episode_id" db:"episode_id"`
	WorkID    int64     `json:"work_id" db:"work_id"`
	Status    string    `json:"status" db:"status"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NotificationTarget is one configured delivery channel
type NotificationTarget struct {
	ID         int64  `json:"id" db:"id"`
	Kind       string `json:"kind" db:"kind"` // "email" or "webhook"
	Target     string `json:"target" db:"target"`
	Enabled    bool   `json:"enabled" db:"enabled"`
	Events     string `json:"events" db:"events"` // comma-separated event kinds
	AttachFile bool   `json:"attach_file" db:"attach_file"`
}

// SubscribedTo reports whether the target's event set contains the given kind
func (t *NotificationTarget) SubscribedTo(event string) bool {
	if t.Events == "" {
		return false
	}
	for _, e := range strings.Split(t.Events, ",") {
		if strings.TrimSpace(e) == event {
			return true
		}
	}
	return false
}

// SourceRecord is the persisted enable/config state for a provider key
type SourceRecord struct {
	Key     string `json:"key" db:"key"`
	Enabled bool   `json:"enabled" db:"enabled"`
	Config  string `json:"config" db:"config"` // opaque JSON blob
}

// WorkSummary is a work row joined with its episode progress counts
type WorkSummary struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Downloaded int    `json:"downloaded"`
	Total      int    `json:"total"`
	Monitored  bool   `json:"monitored"`
}
