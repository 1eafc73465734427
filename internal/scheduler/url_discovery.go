package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/internal/analyzer"
	"github.com/fidlabs/piece-sentinel/internal/dealsource"
	"github.com/fidlabs/piece-sentinel/internal/discovery"
	"github.com/fidlabs/piece-sentinel/internal/repository"
)

const (
	urlDiscoverySleepInterval = time.Hour
	urlDiscoveryNextInterval  = 60 * time.Second
	urlDiscoveryBatchSize     = 100
)

// URLDiscoveryLoop runs a provider-only discovery trial plus one trial per
// client with an active deal against it, for every provider whose schedule
// says it's due.
type URLDiscoveryLoop struct {
	worker   *discovery.Worker
	deals    dealsource.Source
	provRepo *repository.ProviderRepository
	urlRepo  *repository.URLResultRepository
	log      zerolog.Logger
}

// NewURLDiscoveryLoop builds a URLDiscoveryLoop.
func NewURLDiscoveryLoop(worker *discovery.Worker, deals dealsource.Source, provRepo *repository.ProviderRepository, urlRepo *repository.URLResultRepository, log zerolog.Logger) *URLDiscoveryLoop {
	return &URLDiscoveryLoop{worker: worker, deals: deals, provRepo: provRepo, urlRepo: urlRepo, log: log.With().Str("loop", "url_discovery").Logger()}
}

// Run blocks, processing due providers until ctx is cancelled. It sleeps
// urlDiscoveryNextInterval after a cycle that did work, to pick up the next
// batch quickly, or urlDiscoverySleepInterval when nothing was due.
func (l *URLDiscoveryLoop) Run(ctx context.Context) {
	l.log.Info().Msg("starting url discovery loop")

	for {
		didWork, err := l.runOnce(ctx)
		if err != nil {
			l.log.Error().Err(err).Msg("url discovery cycle failed")
		}

		wait := urlDiscoverySleepInterval
		if didWork {
			wait = urlDiscoveryNextInterval
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			l.log.Info().Msg("url discovery loop stopped")
			return
		}
	}
}

func (l *URLDiscoveryLoop) runOnce(ctx context.Context) (bool, error) {
	providers, err := l.provRepo.GetDueForURLDiscovery(ctx, urlDiscoveryBatchSize)
	if err != nil {
		return false, err
	}
	if len(providers) == 0 {
		l.log.Debug().Msg("no providers due for url discovery")
		return false, nil
	}

	for _, sp := range providers {
		if ctx.Err() != nil {
			break
		}
		if err := l.processProvider(ctx, sp); err != nil {
			l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to process provider")
		}
	}
	return true, nil
}

func (l *URLDiscoveryLoop) processProvider(ctx context.Context, sp repository.StorageProvider) error {
	providerID, err := address.NewProviderID(sp.ProviderID)
	if err != nil {
		return err
	}

	if err := l.provRepo.SetURLDiscoveryPending(ctx, providerID); err != nil {
		return err
	}

	clients, err := l.deals.ClientsForProvider(ctx, providerID)
	if err != nil {
		l.log.Warn().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to list clients for provider")
		clients = nil
	}

	trials, providerOnly := l.runTrials(ctx, providerID, clients)

	rows := make([]repository.UrlResult, 0, len(trials))
	testedAt := time.Now()
	for _, t := range trials {
		var workingURL *string
		if t.result.WorkingURL != "" {
			u := t.result.WorkingURL
			workingURL = &u
		}
		var clientID *string
		if t.clientID != nil {
			id := t.clientID.String()
			clientID = &id
		}
		rows = append(rows, repository.UrlResult{
			ID:                    uuid.New(),
			ProviderID:            sp.ProviderID,
			ClientID:              clientID,
			ResultType:            t.result.Type,
			WorkingURL:            workingURL,
			RetrievabilityPercent: t.result.RetrievabilityPercent,
			ResultCode:            t.result.ResultCode,
			ErrorCode:             t.result.ErrorCode,
			TestedAt:              testedAt,
		})
	}

	if _, err := l.urlRepo.InsertBatch(ctx, rows); err != nil {
		l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to persist url results")
	}

	var lastWorkingURL *string
	isConsistent, isReliable := false, false
	var urlMetadata any
	if providerOnly != nil {
		if providerOnly.WorkingURL != "" {
			u := providerOnly.WorkingURL
			lastWorkingURL = &u
		}
		isConsistent = providerOnly.Analysis.IsConsistent
		isReliable = providerOnly.Analysis.IsReliable
		urlMetadata = &analyzer.URLMetadata{Analysis: providerOnly.Analysis}
	}

	return l.provRepo.UpdateAfterURLDiscovery(ctx, providerID, lastWorkingURL, isConsistent, isReliable, urlMetadata)
}

// trial pairs a completed discovery result with the client it was scoped
// to, or nil for the provider-only trial.
type trial struct {
	clientID *address.ClientID
	result   discovery.Result
}

// runTrials fans out one provider-only trial plus one trial per client,
// unbounded, mirroring the original's join_all over spawned tasks: a
// failing trial is dropped rather than aborting the whole batch. It
// returns every surviving trial plus the provider-only result on its own
// for schedule feedback.
func (l *URLDiscoveryLoop) runTrials(ctx context.Context, providerID address.ProviderID, clients []address.ClientID) ([]trial, *discovery.Result) {
	total := 1 + len(clients)
	slots := make([]*trial, total)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := l.worker.Discover(gctx, providerID, nil)
		if err != nil {
			return nil
		}
		slots[0] = &trial{clientID: nil, result: res}
		return nil
	})

	for i, clientID := range clients {
		i, clientID := i, clientID
		g.Go(func() error {
			res, err := l.worker.Discover(gctx, providerID, &clientID)
			if err != nil {
				return nil
			}
			slots[i+1] = &trial{clientID: &clientID, result: res}
			return nil
		})
	}

	_ = g.Wait()

	out := make([]trial, 0, total)
	var providerOnly *discovery.Result
	for i, t := range slots {
		if t == nil {
			continue
		}
		out = append(out, *t)
		if i == 0 {
			r := t.result
			providerOnly = &r
		}
	}
	return out, providerOnly
}
