// Package compile assembles downloaded episode files into a single HTML
// bundle placed next to them in the library.
package compile

import (
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"serialarr/internal/database"
	"serialarr/internal/library"
	"serialarr/pkg/models"
)

// Builder compiles works into bundled output files
type Builder struct {
	db       *database.DB
	resolver *library.PathResolver
	logger   *slog.Logger
}

// NewBuilder creates a compile builder
func NewBuilder(db *database.DB, resolver *library.PathResolver) *Builder {
	return &Builder{db: db, resolver: resolver, logger: slog.Default()}
}

// CompileFullWork bundles every downloaded episode of a work into one file
// and returns its path
func (b *Builder) CompileFullWork(workID int64) (string, error) {
	return b.compile(workID, "Complete", func(*models.Episode) bool { return true })
}

// CompileVolume bundles the downloaded episodes of one volume
func (b *Builder) CompileVolume(workID int64, volume int) (string, error) {
	suffix := fmt.Sprintf("Volume %d", volume)
	return b.compile(workID, suffix, func(ep *models.Episode) bool {
		return ep.VolumeNumber == volume
	})
}

// CompileSelection bundles an explicit set of episodes, in sequence order
func (b *Builder) CompileSelection(workID int64, episodeIDs []int64) (string, error) {
	wanted := make(map[int64]bool, len(episodeIDs))
	for _, id := range episodeIDs {
		wanted[id] = true
	}
	return b.compile(workID, "Selection", func(ep *models.Episode) bool {
		return wanted[ep.ID]
	})
}

func (b *Builder) compile(workID int64, suffix string, include func(*models.Episode) bool) (string, error) {
	work, err := b.db.GetWork(workID)
	if err != nil {
		return "", err
	}

	episodes, err := b.db.ListEpisodesByWork(workID)
	if err != nil {
		return "", err
	}

	var selected []*models.Episode
	for _, ep := range episodes {
		if ep.Status == models.StatusDownloaded && ep.LocalPath != "" && include(ep) {
			selected = append(selected, ep)
		}
	}
	if len(selected) == 0 {
		return "", fmt.Errorf("work %d has no downloaded episodes to compile", workID)
	}

	var doc strings.Builder
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&doc, "<title>%s</title>\n</head>\n<body>\n", html.EscapeString(work.Title))
	fmt.Fprintf(&doc, "<h1>%s</h1>\n", html.EscapeString(work.Title))
	if work.Author != "" {
		fmt.Fprintf(&doc, "<p>by %s</p>\n", html.EscapeString(work.Author))
	}

	for _, ep := range selected {
		content, err := os.ReadFile(ep.LocalPath)
		if err != nil {
			return "", fmt.Errorf("failed to read episode %d content: %w", ep.ID, err)
		}
		doc.WriteString("<hr>\n")
		fmt.Fprintf(&doc, "<h2>%s</h2>\n", html.EscapeString(ep.Title))
		doc.Write(content)
		doc.WriteString("\n")
	}

	doc.WriteString("</body>\n</html>\n")

	path := b.resolver.CompiledPath(work, suffix)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(doc.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write compiled file: %w", err)
	}

	b.logger.Info("Compiled work", "work_id", workID, "episodes", len(selected), "path", path)
	return path, nil
}
