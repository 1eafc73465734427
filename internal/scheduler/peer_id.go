package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/internal/chainrpc"
	"github.com/fidlabs/piece-sentinel/internal/discovery"
	"github.com/fidlabs/piece-sentinel/internal/repository"
)

const (
	peerIDInterval       = 5 * time.Minute
	peerIDCatchupDelay   = 5 * time.Second
	peerIDBatchSize      = 100
	peerIDRateLimitDelay = 200 * time.Millisecond
	peerIDStaleDays      = 7
)

// PeerIDRefreshLoop keeps every tracked provider's libp2p peer id current,
// prioritizing providers that have never had one resolved over refreshing
// stale ones.
type PeerIDRefreshLoop struct {
	chain   *chainrpc.Client
	repo    *repository.ProviderRepository
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewPeerIDRefreshLoop builds a PeerIDRefreshLoop.
func NewPeerIDRefreshLoop(chain *chainrpc.Client, repo *repository.ProviderRepository, log zerolog.Logger) *PeerIDRefreshLoop {
	return &PeerIDRefreshLoop{
		chain:   chain,
		repo:    repo,
		limiter: rate.NewLimiter(rate.Every(peerIDRateLimitDelay), 1),
		log:     log.With().Str("loop", "peer_id_refresh").Logger(),
	}
}

// Run blocks, refreshing peer ids until ctx is cancelled. When a full batch
// of brand-new providers was processed, it loops again after a short
// catch-up delay instead of waiting out the full interval, to drain the
// backlog before spending time on already-known providers' stale entries.
func (l *PeerIDRefreshLoop) Run(ctx context.Context) {
	l.log.Info().Msg("starting peer id refresh loop")

	for {
		morePending, err := l.runOnce(ctx)
		if err != nil {
			l.log.Error().Err(err).Msg("peer id refresh cycle failed")
		}

		wait := peerIDInterval
		if morePending {
			wait = peerIDCatchupDelay
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			l.log.Info().Msg("peer id refresh loop stopped")
			return
		}
	}
}

func (l *PeerIDRefreshLoop) runOnce(ctx context.Context) (bool, error) {
	newProviders, err := l.repo.GetProvidersWithoutPeerID(ctx, peerIDBatchSize)
	if err != nil {
		return false, err
	}

	newCount := l.refreshBatch(ctx, newProviders)
	batchWasFull := len(newProviders) == peerIDBatchSize

	if batchWasFull {
		l.log.Debug().Msg("new-provider batch was full, skipping stale refresh this cycle")
		return true, nil
	}

	staleProviders, err := l.repo.GetProvidersWithStalePeerID(ctx, peerIDBatchSize, peerIDStaleDays)
	if err != nil {
		return false, err
	}
	staleCount := l.refreshBatch(ctx, staleProviders)

	if newCount > 0 || staleCount > 0 {
		l.log.Info().Int("new", newCount).Int("stale", staleCount).Msg("peer id refresh cycle completed")
	}
	return false, nil
}

func (l *PeerIDRefreshLoop) refreshBatch(ctx context.Context, providers []repository.StorageProvider) int {
	count := 0
	for _, sp := range providers {
		if ctx.Err() != nil {
			break
		}
		if err := l.limiter.Wait(ctx); err != nil {
			break
		}

		providerID, err := address.NewProviderID(sp.ProviderID)
		if err != nil {
			l.log.Warn().Err(err).Str("provider_id", sp.ProviderID).Msg("invalid provider id, skipping")
			continue
		}

		peerID, err := discovery.ResolvePeerID(ctx, l.chain, providerID.Address())
		if err != nil {
			l.log.Debug().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to resolve peer id")
			continue
		}

		if err := l.repo.UpdatePeerID(ctx, providerID, peerID); err != nil {
			l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to persist peer id")
			continue
		}
		count++
	}
	return count
}
