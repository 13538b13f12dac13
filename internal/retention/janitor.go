// Package retention prunes stale conversation history. Conversations that
// have not been updated within the configured window are archived to a
// durable location and then deleted from the hot store.
//
// The janitor runs as a background goroutine and respects context
// cancellation for graceful shutdown. Archive failures are fail-safe:
// a conversation is NOT deleted if archiving it fails.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sofia-labs/sofia/orchestrator/internal/store"
	"github.com/sofia-labs/sofia/orchestrator/pkg/models"
)

// DefaultSweepBatchSize is the max conversations handled per sweep.
const DefaultSweepBatchSize = 500

// Archiver writes expired conversations to a durable location before they
// are purged from the hot store.
type Archiver interface {
	Kind() string
	ArchiveConversations(ctx context.Context, convs []models.Conversation) (string, error)
}

// SweepStats tracks what happened in a single retention sweep.
type SweepStats struct {
	Archived int
	Purged   int
	Errors   []error
}

// Janitor periodically archives and purges conversations older than maxAge.
type Janitor struct {
	store    store.Store
	interval time.Duration
	maxAge   time.Duration
	archiver Archiver
}

// NewJanitor creates a retention janitor that sweeps on the given interval,
// expiring conversations not updated within maxAge.
func NewJanitor(s store.Store, interval, maxAge time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: s, interval: interval, maxAge: maxAge}
}

// RegisterArchiver sets the archive backend. Without one, expired
// conversations are purged without archiving.
func (j *Janitor) RegisterArchiver(a Archiver) {
	j.archiver = a
	log.Info().Str("kind", a.Kind()).Msg("Archive backend registered")
}

// Start runs the janitor until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	kind := "none"
	if j.archiver != nil {
		kind = j.archiver.Kind()
	}
	log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Str("archiver", kind).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one retention pass and returns what it did.
func (j *Janitor) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	start := time.Now()

	cutoff := time.Now().UTC().Add(-j.maxAge)
	expired, err := j.store.ListConversationsUpdatedBefore(ctx, cutoff, DefaultSweepBatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("Retention sweep: failed to list expired conversations")
		stats.Errors = append(stats.Errors, err)
		return stats
	}
	if len(expired) == 0 {
		return stats
	}

	if j.archiver != nil {
		uri, err := j.archiver.ArchiveConversations(ctx, expired)
		if err != nil {
			log.Warn().Err(err).
				Str("backend", j.archiver.Kind()).
				Int("count", len(expired)).
				Msg("Archive failed, skipping purge")
			stats.Errors = append(stats.Errors, err)
			return stats
		}
		stats.Archived = len(expired)
		log.Debug().Str("uri", uri).Int("count", len(expired)).Msg("Expired conversations archived")
	}

	for _, c := range expired {
		if err := j.store.DeleteConversation(ctx, c.ID); err != nil {
			log.Warn().Err(err).Str("conversation_id", c.ID).Msg("Failed to delete expired conversation")
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Purged++
	}

	log.Info().
		Int("archived", stats.Archived).
		Int("purged", stats.Purged).
		Dur("elapsed", time.Since(start)).
		Msg("Retention sweep complete")
	return stats
}
