// Package scheduler runs the long-lived background loops that keep
// storage-provider discovery, peer id refresh, URL discovery, and
// bandwidth testing moving forward on their own schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fidlabs/piece-sentinel/internal/dealsource"
	"github.com/fidlabs/piece-sentinel/internal/repository"
)

const (
	providerDiscoveryInterval = 12 * time.Hour
	dmobQueryTimeout          = 20 * time.Minute
)

// ProviderDiscoveryLoop periodically pulls the distinct set of providers
// with active deals and registers any not already tracked.
type ProviderDiscoveryLoop struct {
	deals dealsource.Source
	repo  *repository.ProviderRepository
	log   zerolog.Logger
}

// NewProviderDiscoveryLoop builds a ProviderDiscoveryLoop.
func NewProviderDiscoveryLoop(deals dealsource.Source, repo *repository.ProviderRepository, log zerolog.Logger) *ProviderDiscoveryLoop {
	return &ProviderDiscoveryLoop{deals: deals, repo: repo, log: log.With().Str("loop", "provider_discovery").Logger()}
}

// Run blocks, registering newly seen providers every providerDiscoveryInterval
// until ctx is cancelled.
func (l *ProviderDiscoveryLoop) Run(ctx context.Context) {
	l.log.Info().Msg("starting provider discovery loop")

	for {
		if err := l.runOnce(ctx); err != nil {
			l.log.Error().Err(err).Msg("provider discovery cycle failed")
		}

		select {
		case <-time.After(providerDiscoveryInterval):
		case <-ctx.Done():
			l.log.Info().Msg("provider discovery loop stopped")
			return
		}
	}
}

func (l *ProviderDiscoveryLoop) runOnce(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, dmobQueryTimeout)
	defer cancel()

	providers, err := l.deals.DistinctProviders(queryCtx)
	if err != nil {
		return err
	}

	inserted, err := l.repo.InsertBatchIfNotExists(ctx, providers)
	if err != nil {
		return err
	}

	if inserted > 0 {
		l.log.Info().Int64("inserted", inserted).Msg("registered new providers")
	} else {
		l.log.Debug().Msg("no new providers to register")
	}
	return nil
}
