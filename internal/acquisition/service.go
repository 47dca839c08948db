// Package acquisition tracks monitored works: it adds them, diffs provider
// listings against stored episodes, enqueues new installments and backfills
// metadata.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"serialarr/internal/database"
	"serialarr/internal/library"
	"serialarr/internal/notify"
	"serialarr/internal/source"
	"serialarr/pkg/models"
)

// Notifier dispatches work events to the configured channels
type Notifier interface {
	Dispatch(ctx context.Context, work *models.Work, payload notify.Payload) error
}

// Service implements work tracking and the update sweep
type Service struct {
	db         *database.DB
	sources    *source.Registry
	notifier   Notifier
	resolver   *library.PathResolver
	legacyPath string
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates an acquisition service
func NewService(db *database.DB, sources *source.Registry, notifier Notifier, resolver *library.PathResolver, legacyPath string) *Service {
	return &Service{
		db:         db,
		sources:    sources,
		notifier:   notifier,
		resolver:   resolver,
		legacyPath: legacyPath,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// AddWork registers a work for monitoring. The provider is resolved by
// explicit key when given, otherwise by URL ownership. Metadata is fetched
// immediately and the initial listing is enqueued in full. Adding a URL that
// is already tracked refreshes the existing work instead: metadata is
// re-fetched and the listing diff re-run, so a re-add picks up episodes
// published since the last sweep.
func (s *Service) AddWork(ctx context.Context, url string, profileID int64, providerKey string) (*models.Work, error) {
	existing, err := s.db.GetWorkByURL(url)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		var src source.Source
		if providerKey != "" {
			src, err = s.providerForURL(url, providerKey)
		} else {
			src, err = s.providerForWork(existing)
		}
		if err != nil {
			return nil, err
		}

		added, err := s.refresh(ctx, existing, src)
		if err != nil {
			return existing, err
		}
		s.logger.Info("Work already tracked, refreshed", "work_id", existing.ID,
			"title", existing.Title, "new_episodes", added)
		return existing, nil
	}

	src, err := s.providerForURL(url, providerKey)
	if err != nil {
		return nil, err
	}

	meta, err := src.Metadata(ctx, url)
	if err != nil {
		return nil, &ProviderFetchError{Op: "metadata", URL: url, Err: err}
	}

	now := s.now()
	work := &models.Work{
		SourceURL:         url,
		Title:             meta.Title,
		Author:            meta.Author,
		Description:       meta.Description,
		CoverURL:          meta.CoverURL,
		Tags:              strings.Join(meta.Tags, ","),
		Rating:            meta.Rating,
		Language:          meta.Language,
		PublicationStatus: meta.PublicationStatus,
		Status:            models.WorkStatusMonitoring,
		Monitored:         true,
		NotifyNewEpisodes: true,
		ProfileID:         profileID,
		ProviderKey:       src.Key(),
		CreatedAt:         now,
	}
	if err := s.db.CreateWork(work); err != nil {
		return nil, err
	}

	added, err := s.syncEpisodes(ctx, work, src)
	if err != nil {
		return work, err
	}
	if err := s.db.TouchWorkChecked(work.ID, added > 0, s.now()); err != nil {
		return work, err
	}

	s.logger.Info("Added work", "work_id", work.ID, "title", work.Title,
		"provider", src.Key(), "episodes", added)
	return work, nil
}

// CheckWorkUpdates refreshes one work's metadata, diffs its provider listing
// against stored episodes, enqueues anything new and notifies subscribers.
// Returns the number of newly enqueued episodes.
func (s *Service) CheckWorkUpdates(ctx context.Context, workID int64) (int, error) {
	work, err := s.db.GetWork(workID)
	if err != nil {
		return 0, err
	}

	src, err := s.providerForWork(work)
	if err != nil {
		return 0, err
	}

	added, err := s.refresh(ctx, work, src)
	if err != nil {
		return 0, err
	}

	if added > 0 {
		s.logger.Info("Found new episodes", "work_id", work.ID, "title", work.Title, "count", added)
		if err := s.notifier.Dispatch(ctx, work, notify.Payload{
			Event:        notify.EventNewEpisodes,
			WorkTitle:    work.Title,
			EpisodeCount: added,
		}); err != nil {
			s.logger.Error("Failed to dispatch new episode notification", "work_id", work.ID, "error", err)
		}
	}

	return added, nil
}

// refresh re-fetches a tracked work's metadata and re-runs the listing diff.
// last_checked is always stamped, last_updated only when new episodes
// arrived. A metadata failure is logged and does not block the diff.
func (s *Service) refresh(ctx context.Context, work *models.Work, src source.Source) (int, error) {
	if err := s.refreshMetadata(ctx, work, src); err != nil {
		s.logger.Warn("Metadata refresh failed", "work_id", work.ID, "error", err)
	}

	added, err := s.syncEpisodes(ctx, work, src)
	if err != nil {
		return 0, err
	}

	if err := s.db.TouchWorkChecked(work.ID, added > 0, s.now()); err != nil {
		return added, err
	}
	return added, nil
}

// refreshMetadata overwrites the work's descriptive fields with whatever the
// provider currently reports
func (s *Service) refreshMetadata(ctx context.Context, work *models.Work, src source.Source) error {
	meta, err := src.Metadata(ctx, work.SourceURL)
	if err != nil {
		return &ProviderFetchError{Op: "metadata", URL: work.SourceURL, Err: err}
	}
	if !applyMetadata(work, meta) {
		return nil
	}
	return s.db.UpdateWork(work)
}

// CheckAllMonitored sweeps every monitored work. A failing work is logged
// and skipped so one broken provider never stalls the sweep.
func (s *Service) CheckAllMonitored(ctx context.Context) error {
	ids, err := s.db.ListMonitoredWorkIDs()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.CheckWorkUpdates(ctx, id); err != nil {
			s.logger.Error("Update check failed", "work_id", id, "error", err)
		}
	}

	return nil
}

// FillMissingMetadata re-fetches metadata for works whose description is
// still empty and fills in any fields the provider now reports
func (s *Service) FillMissingMetadata(ctx context.Context) error {
	works, err := s.db.ListWorksMissingDescription()
	if err != nil {
		return err
	}

	for _, work := range works {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := s.providerForWork(work)
		if err != nil {
			s.logger.Warn("No provider for metadata backfill", "work_id", work.ID, "error", err)
			continue
		}

		meta, err := src.Metadata(ctx, work.SourceURL)
		if err != nil {
			s.logger.Error("Metadata backfill failed", "work_id", work.ID, "error", err)
			continue
		}

		if !applyMetadata(work, meta) {
			continue
		}
		if err := s.db.UpdateWork(work); err != nil {
			s.logger.Error("Failed to save backfilled metadata", "work_id", work.ID, "error", err)
			continue
		}
		s.logger.Info("Backfilled metadata", "work_id", work.ID, "title", work.Title)
	}

	return nil
}

// RetryFailed returns all failed episodes of a work to the pending queue
func (s *Service) RetryFailed(workID int64) (int64, error) {
	if _, err := s.db.GetWork(workID); err != nil {
		return 0, err
	}

	count, err := s.db.RetryFailed(workID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info("Requeued failed episodes", "work_id", workID, "count", count)
	}
	return count, nil
}

// DeleteWork removes a work and its records, optionally deleting downloaded
// content from the library and any files left in the legacy download layout
func (s *Service) DeleteWork(id int64, deleteContent bool) error {
	work, err := s.db.GetWork(id)
	if err != nil {
		return err
	}

	if err := s.db.DeleteWork(id); err != nil {
		return err
	}

	if !deleteContent {
		return nil
	}

	dir := s.resolver.WorkDir(work)
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("Failed to remove work directory", "work_id", id, "dir", dir, "error", err)
	}

	if s.legacyPath != "" {
		pattern := filepath.Join(s.legacyPath, fmt.Sprintf("%d_*", id))
		matches, err := filepath.Glob(pattern)
		if err != nil {
			s.logger.Error("Failed to scan legacy downloads", "work_id", id, "error", err)
			return nil
		}
		for _, match := range matches {
			if err := os.RemoveAll(match); err != nil {
				s.logger.Error("Failed to remove legacy download", "path", match, "error", err)
			}
		}
	}

	return nil
}

// PredictNextRelease estimates when the next episode will appear, based on
// the average gap between dated episodes. The estimate is phase aligned:
// intervals are added to the last publish date until the result lies in the
// future. Returns nil when fewer than two dated episodes exist.
func (s *Service) PredictNextRelease(workID int64) (*time.Time, error) {
	interval, last, err := s.cadence(workID)
	if err != nil || interval == 0 {
		return nil, err
	}

	now := s.now()
	next := last
	for !next.After(now) {
		next = next.Add(interval)
	}
	return &next, nil
}

// UpcomingReleases projects a work's next n release dates, phase aligned to
// its publish cadence. Returns nil when the work has no usable cadence.
func (s *Service) UpcomingReleases(workID int64, n int) ([]time.Time, error) {
	next, err := s.PredictNextRelease(workID)
	if err != nil || next == nil {
		return nil, err
	}

	interval, _, err := s.cadence(workID)
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, 0, n)
	at := *next
	for i := 0; i < n; i++ {
		dates = append(dates, at)
		at = at.Add(interval)
	}
	return dates, nil
}

// UpcomingRelease pairs a monitored work with its predicted next episode time
type UpcomingRelease struct {
	WorkID   int64
	Title    string
	Expected time.Time
}

// ReleaseCalendar predicts the next release for every monitored work and
// returns them soonest first. Works without a usable cadence are omitted.
func (s *Service) ReleaseCalendar() ([]UpcomingRelease, error) {
	ids, err := s.db.ListMonitoredWorkIDs()
	if err != nil {
		return nil, err
	}

	var upcoming []UpcomingRelease
	for _, id := range ids {
		next, err := s.PredictNextRelease(id)
		if err != nil {
			s.logger.Warn("Prediction failed", "work_id", id, "error", err)
			continue
		}
		if next == nil {
			continue
		}
		work, err := s.db.GetWork(id)
		if err != nil {
			return nil, err
		}
		upcoming = append(upcoming, UpcomingRelease{WorkID: id, Title: work.Title, Expected: *next})
	}

	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Expected.Before(upcoming[j].Expected) })
	return upcoming, nil
}

// cadence returns the work's average publish interval and its last publish
// time. A zero interval means no usable cadence.
func (s *Service) cadence(workID int64) (time.Duration, time.Time, error) {
	episodes, err := s.db.DatedEpisodes(workID)
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(episodes) < 2 {
		return 0, time.Time{}, nil
	}

	var total time.Duration
	for i := 1; i < len(episodes); i++ {
		total += episodes[i].PublishedAt.Sub(*episodes[i-1].PublishedAt)
	}
	interval := total / time.Duration(len(episodes)-1)
	if interval <= 0 {
		return 0, time.Time{}, nil
	}

	return interval, *episodes[len(episodes)-1].PublishedAt, nil
}

// Search queries one provider by key, or fans out across all enabled
// providers when no key is given. Provider failures are logged and skipped.
func (s *Service) Search(ctx context.Context, query, providerKey string) ([]source.SearchResult, error) {
	var providers []source.Source
	if providerKey != "" {
		src := s.sources.ByKey(providerKey)
		if src == nil {
			return nil, fmt.Errorf("provider %q: %w", providerKey, ErrProviderNotFound)
		}
		providers = []source.Source{src}
	} else {
		providers = s.sources.Enabled()
	}

	var results []source.SearchResult
	for _, src := range providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := src.Search(ctx, query)
		if errors.Is(err, source.ErrSearchUnsupported) {
			s.logger.Debug("Provider cannot search, skipping", "provider", src.Key())
			continue
		}
		if err != nil {
			s.logger.Error("Search failed", "provider", src.Key(), "error", err)
			continue
		}
		for _, r := range found {
			if r.ProviderKey == "" {
				r.ProviderKey = src.Key()
			}
			results = append(results, r)
		}
	}

	return results, nil
}

// syncEpisodes diffs the provider listing against stored episodes. New URLs
// are inserted as pending; known URLs only have their listing-derived fields
// reconciled, never status or local path. Sequence comes from the provider's
// own index when it supplies one, positional order otherwise.
func (s *Service) syncEpisodes(ctx context.Context, work *models.Work, src source.Source) (int, error) {
	var hint *source.ListingHint
	latest, err := s.db.LatestEpisode(work.ID)
	if err != nil {
		return 0, err
	}
	if latest != nil {
		hint = &source.ListingHint{
			URL:          latest.SourceURL,
			Title:        latest.Title,
			Sequence:     latest.Sequence,
			VolumeNumber: latest.VolumeNumber,
			VolumeTitle:  latest.VolumeTitle,
		}
	}

	items, err := src.Episodes(ctx, work.SourceURL, hint)
	if err != nil {
		return 0, &ProviderFetchError{Op: "listing", URL: work.SourceURL, Err: err}
	}

	existing, err := s.db.ListEpisodesByWork(work.ID)
	if err != nil {
		return 0, err
	}
	byURL := make(map[string]*models.Episode, len(existing))
	for _, ep := range existing {
		byURL[ep.SourceURL] = ep
	}

	added := 0
	for i, item := range items {
		seq := item.Index
		if seq <= 0 {
			seq = i + 1
		}
		tags := strings.Join(item.Tags, ",")

		ep, known := byURL[item.URL]
		if !known {
			now := s.now()
			ep = &models.Episode{
				WorkID:       work.ID,
				Title:        item.Title,
				SourceURL:    item.URL,
				Sequence:     seq,
				VolumeNumber: item.VolumeNumber,
				VolumeTitle:  item.VolumeTitle,
				Tags:         tags,
				Status:       models.StatusPending,
				PublishedAt:  item.PublishedAt,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.db.CreateEpisode(ep); err != nil {
				return added, err
			}
			added++
			continue
		}

		changed := false
		if ep.Sequence != seq {
			ep.Sequence = seq
			changed = true
		}
		if ep.PublishedAt == nil && item.PublishedAt != nil {
			ep.PublishedAt = item.PublishedAt
			changed = true
		}
		if item.VolumeNumber > 0 && item.VolumeNumber != ep.VolumeNumber {
			ep.VolumeNumber = item.VolumeNumber
			changed = true
		}
		if item.VolumeTitle != "" && item.VolumeTitle != ep.VolumeTitle {
			ep.VolumeTitle = item.VolumeTitle
			changed = true
		}
		if tags != "" && tags != ep.Tags {
			ep.Tags = tags
			changed = true
		}
		if changed {
			if err := s.db.UpdateEpisodeListing(ep); err != nil {
				return added, err
			}
		}
	}

	return added, nil
}

// providerForURL resolves a provider by explicit key, falling back to URL
// ownership
func (s *Service) providerForURL(url, providerKey string) (source.Source, error) {
	if providerKey != "" {
		if src := s.sources.ByKey(providerKey); src != nil {
			return src, nil
		}
		return nil, fmt.Errorf("provider %q: %w", providerKey, ErrProviderNotFound)
	}
	if src := s.sources.ForURL(url); src != nil {
		return src, nil
	}
	return nil, fmt.Errorf("url %q: %w", url, ErrProviderNotFound)
}

// providerForWork resolves a work's provider by its stored key first, then
// by URL ownership so works survive a renamed provider key
func (s *Service) providerForWork(work *models.Work) (source.Source, error) {
	if work.ProviderKey != "" {
		if src := s.sources.ByKey(work.ProviderKey); src != nil {
			return src, nil
		}
	}
	if src := s.sources.ForURL(work.SourceURL); src != nil {
		return src, nil
	}
	return nil, fmt.Errorf("work %d: %w", work.ID, ErrProviderNotFound)
}

// applyMetadata refreshes the work's descriptive fields from provider
// metadata and reports whether anything changed. Non-empty provider values
// win; an empty value never clears a stored field.
func applyMetadata(work *models.Work, meta *source.Metadata) bool {
	changed := false
	set := func(dst *string, val string) {
		if val != "" && val != *dst {
			*dst = val
			changed = true
		}
	}

	set(&work.Title, meta.Title)
	set(&work.Author, meta.Author)
	set(&work.Description, meta.Description)
	set(&work.CoverURL, meta.CoverURL)
	set(&work.Tags, strings.Join(meta.Tags, ","))
	set(&work.Rating, meta.Rating)
	set(&work.Language, meta.Language)
	set(&work.PublicationStatus, meta.PublicationStatus)

	return changed
}
