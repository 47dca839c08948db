package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"serialarr/internal/database"
	"serialarr/internal/fetch"
	"serialarr/pkg/models"
)

// RecordStore persists per-provider enabled state and configuration
type RecordStore interface {
	GetSourceRecord(key string) (*models.SourceRecord, error)
	UpsertSourceRecord(rec *models.SourceRecord) error
}

type entry struct {
	source  Source
	enabled bool
}

// Registry holds provider instances and dispatches works to them by URL
// ownership or explicit key. The provider list is guarded by a lock so a
// Reload never interleaves with an in-flight dispatch.
type Registry struct {
	mu       sync.RWMutex
	entries  []entry
	builders []Builder
	client   *fetch.Client
	logger   *slog.Logger
}

// NewRegistry creates a registry over a static builder table and the shared
// fetch client injected into every built provider
func NewRegistry(builders []Builder, client *fetch.Client) *Registry {
	return &Registry{
		builders: builders,
		client:   client,
		logger:   slog.Default(),
	}
}

// Register adds a provider instance, enabled by its own default
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{source: s, enabled: s.DefaultEnabled()})
}

// Clear removes all registered providers
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// ForURL returns the first registered provider that identifies the URL, or
// nil when no provider owns it
func (r *Registry) ForURL(url string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.source.Identify(url) {
			return e.source
		}
	}
	return nil
}

// ByKey returns the provider with the exact key, or nil
func (r *Registry) ByKey(key string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.source.Key() == key {
			return e.source
		}
	}
	return nil
}

// Enabled returns all providers currently enabled, for search fan-out
func (r *Registry) Enabled() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Source
	for _, e := range r.entries {
		if e.enabled {
			out = append(out, e.source)
		}
	}
	return out
}

// Reload rebuilds the provider list from the builder table. For keys not yet
// persisted it seeds a record from the provider's own default; for known keys
// it restores the persisted enabled flag and injects any stored configuration.
// A builder without a stable key is skipped and logged, never fatal. The new
// list is swapped in atomically under the registry lock.
func (r *Registry) Reload(ctx context.Context, store RecordStore) error {
	var rebuilt []entry

	for _, b := range r.builders {
		if b.Key == "" || b.New == nil {
			r.logger.Warn("Skipping provider without stable key")
			continue
		}

		src := b.New(r.client)
		if src.Key() != b.Key {
			r.logger.Warn("Skipping provider with mismatched key",
				"builder_key", b.Key, "source_key", src.Key())
			continue
		}

		rec, err := store.GetSourceRecord(b.Key)
		if err != nil {
			if !errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("failed to load source record for %q: %w", b.Key, err)
			}
			rec = &models.SourceRecord{Key: b.Key, Enabled: src.DefaultEnabled()}
			if err := store.UpsertSourceRecord(rec); err != nil {
				return fmt.Errorf("failed to seed source record for %q: %w", b.Key, err)
			}
		}

		if rec.Config != "" {
			var cfg map[string]string
			if err := json.Unmarshal([]byte(rec.Config), &cfg); err != nil {
				r.logger.Error("Failed to parse provider config", "key", b.Key, "error", err)
			} else if err := src.SetConfig(cfg); err != nil {
				r.logger.Error("Failed to apply provider config", "key", b.Key, "error", err)
			}
		}

		rebuilt = append(rebuilt, entry{source: src, enabled: rec.Enabled})

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.entries = rebuilt
	r.mu.Unlock()

	r.logger.Info("Reloaded providers", "count", len(rebuilt))
	return nil
}
