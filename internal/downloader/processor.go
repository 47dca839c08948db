// Package downloader drains the pending episode queue: it claims episodes
// under the fairness policy, fetches their content and records the outcome.
package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"serialarr/internal/database"
	"serialarr/internal/library"
	"serialarr/internal/notify"
	"serialarr/internal/source"
	"serialarr/pkg/models"
)

// staleClaimAge is how long a claim may sit before another drain may steal it
const staleClaimAge = 30 * time.Minute

// Processor drains the pending download queue
type Processor struct {
	db       *database.DB
	sources  *source.Registry
	resolver *library.PathResolver
	compiler Compiler
	notifier Notifier
	logger   *slog.Logger
}

// NewProcessor creates a download processor
func NewProcessor(db *database.DB, sources *source.Registry, resolver *library.PathResolver, compiler Compiler, notifier Notifier) *Processor {
	return &Processor{
		db:       db,
		sources:  sources,
		resolver: resolver,
		compiler: compiler,
		notifier: notifier,
		logger:   slog.Default(),
	}
}

// Drain claims and processes pending episodes until the queue is empty or
// the context is canceled. A failing episode is marked failed and the drain
// moves on; it never aborts the loop.
func (p *Processor) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ep, err := p.db.ClaimNextPending(time.Now().Add(-staleClaimAge))
		if err != nil {
			return fmt.Errorf("failed to claim next episode: %w", err)
		}
		if ep == nil {
			return nil
		}

		p.process(ctx, ep)
	}
}

func (p *Processor) process(ctx context.Context, ep *models.Episode) {
	work, err := p.db.GetWork(ep.WorkID)
	if err != nil {
		p.fail(ctx, nil, ep, fmt.Errorf("failed to load work %d: %w", ep.WorkID, err))
		return
	}

	src := p.providerFor(work, ep)
	if src == nil {
		p.fail(ctx, work, ep, fmt.Errorf("no provider for episode %q", ep.SourceURL))
		return
	}

	content, err := src.EpisodeContent(ctx, ep.SourceURL)
	if err != nil {
		p.fail(ctx, work, ep, fmt.Errorf("failed to fetch episode content: %w", err))
		return
	}

	path := p.resolver.EpisodePath(work, ep)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.fail(ctx, work, ep, fmt.Errorf("failed to create episode directory: %w", err))
		return
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		p.fail(ctx, work, ep, fmt.Errorf("failed to write episode file: %w", err))
		return
	}

	if err := p.db.MarkEpisodeDownloaded(ep.ID, path); err != nil {
		p.logger.Error("Failed to mark episode downloaded", "episode_id", ep.ID, "error", err)
		return
	}
	p.appendHistory(ep, "downloaded", path)
	p.logger.Info("Downloaded episode", "work_id", work.ID, "episode_id", ep.ID, "title", ep.Title)

	p.maybeComplete(ctx, work)
}

// maybeComplete runs the completion cascade: once a work has no pending or
// failed episodes left, it is compiled and subscribers are told the work is
// ready. A compile failure turns into a failure event instead.
func (p *Processor) maybeComplete(ctx context.Context, work *models.Work) {
	unfinished, err := p.db.CountUnfinished(work.ID)
	if err != nil {
		p.logger.Error("Failed to count unfinished episodes", "work_id", work.ID, "error", err)
		return
	}
	if unfinished > 0 {
		return
	}

	compiled, err := p.compiler.CompileFullWork(work.ID)
	if err != nil {
		p.logger.Error("Failed to compile completed work", "work_id", work.ID, "error", err)
		p.dispatch(ctx, work, notify.Payload{
			Event:     notify.EventFailure,
			WorkTitle: work.Title,
			Detail:    fmt.Sprintf("compile failed: %v", err),
		})
		return
	}

	p.logger.Info("Work complete", "work_id", work.ID, "title", work.Title, "compiled", compiled)
	p.dispatch(ctx, work, notify.Payload{
		Event:     notify.EventDownload,
		WorkTitle: work.Title,
		FilePath:  compiled,
	})
}

func (p *Processor) fail(ctx context.Context, work *models.Work, ep *models.Episode, cause error) {
	p.logger.Error("Episode download failed", "episode_id", ep.ID, "work_id", ep.WorkID, "error", cause)

	if err := p.db.MarkEpisodeFailed(ep.ID); err != nil {
		p.logger.Error("Failed to mark episode failed", "episode_id", ep.ID, "error", err)
	}
	p.appendHistory(ep, "failed", cause.Error())

	title := ""
	if work != nil {
		title = work.Title
	}
	p.dispatch(ctx, work, notify.Payload{
		Event:        notify.EventFailure,
		WorkTitle:    title,
		EpisodeTitle: ep.Title,
		Detail:       cause.Error(),
	})
}

func (p *Processor) appendHistory(ep *models.Episode, status, detail string) {
	h := &models.DownloadHistory{
		EpisodeID: ep.ID,
		WorkID:    ep.WorkID,
		Status:    status,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := p.db.AppendHistory(h); err != nil {
		p.logger.Error("Failed to append download history", "episode_id", ep.ID, "error", err)
	}
}

func (p *Processor) dispatch(ctx context.Context, work *models.Work, payload notify.Payload) {
	if err := p.notifier.Dispatch(ctx, work, payload); err != nil {
		p.logger.Error("Failed to dispatch notification", "event", payload.Event, "error", err)
	}
}

func (p *Processor) providerFor(work *models.Work, ep *models.Episode) source.Source {
	if work.ProviderKey != "" {
		if src := p.sources.ByKey(work.ProviderKey); src != nil {
			return src
		}
	}
	return p.sources.ForURL(ep.SourceURL)
}
