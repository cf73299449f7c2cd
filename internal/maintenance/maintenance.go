// Package maintenance provides one-shot journal housekeeping tasks run from the command line.
package maintenance

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/config"
)

// Pruner deletes old journal events.
type Pruner interface {
	PruneEvents(before time.Time) (int64, error)
}

// Run executes the maintenance task selected by cfg, if any.
// It returns true when a task ran and the program should exit.
func Run(cfg *config.Config, store Pruner) bool {
	if cfg.Storage.PruneOlderThan <= 0 {
		return false
	}

	before := time.Now().Add(-cfg.Storage.PruneOlderThan)
	log.Info().
		Dur("older_than", cfg.Storage.PruneOlderThan).
		Time("before", before).
		Msg("Pruning journal events...")

	count, err := store.PruneEvents(before)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune journal")
		return true
	}

	log.Info().Int64("deleted", count).Msg("Prune finished")

	return true
}
