package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/internal/bms"
	"github.com/fidlabs/piece-sentinel/internal/breaker"
	"github.com/fidlabs/piece-sentinel/internal/repository"
)

const (
	jobCreatorInterval      = time.Minute
	jobCreatorSleepInterval = time.Hour
	resultPollerInterval    = 30 * time.Second
	bandwidthBatchSize      = 50
	bmsJobTimeout           = 48 * time.Hour
)

// BandwidthLoop creates bandwidth measurement jobs for providers due for a
// test and polls the measurement service for completed results, running
// both as independent sub-loops.
type BandwidthLoop struct {
	client       *bms.Client
	breaker      *breaker.Breaker
	provRepo     *repository.ProviderRepository
	resultRepo   *repository.BmsResultRepository
	workerCount  int64
	testInterval int
	log          zerolog.Logger
}

// NewBandwidthLoop builds a BandwidthLoop. workerCount is how many workers
// each created job fans out to; testIntervalDays is how far out the next
// test is scheduled once a job has been created for a provider. br gates
// job creation so a struggling measurement service doesn't get hammered
// with a full batch every cycle.
func NewBandwidthLoop(client *bms.Client, br *breaker.Breaker, provRepo *repository.ProviderRepository, resultRepo *repository.BmsResultRepository, workerCount int64, testIntervalDays int, log zerolog.Logger) *BandwidthLoop {
	return &BandwidthLoop{
		client:       client,
		breaker:      br,
		provRepo:     provRepo,
		resultRepo:   resultRepo,
		workerCount:  workerCount,
		testInterval: testIntervalDays,
		log:          log.With().Str("loop", "bandwidth").Logger(),
	}
}

// Run blocks, running the job creator and result poller concurrently until
// ctx is cancelled.
func (l *BandwidthLoop) Run(ctx context.Context) {
	l.log.Info().Msg("starting bandwidth loop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.runJobCreator(gctx)
		return nil
	})
	g.Go(func() error {
		l.runResultPoller(gctx)
		return nil
	})
	_ = g.Wait()

	l.log.Info().Msg("bandwidth loop stopped")
}

func (l *BandwidthLoop) runJobCreator(ctx context.Context) {
	for {
		count, err := l.createJobs(ctx)
		wait := jobCreatorInterval
		switch {
		case err != nil:
			l.log.Error().Err(err).Msg("bms job creator cycle failed")
			wait = jobCreatorSleepInterval
		case count == 0:
			wait = jobCreatorSleepInterval
		default:
			l.log.Info().Int("created", count).Msg("bms job creation cycle completed")
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (l *BandwidthLoop) createJobs(ctx context.Context) (int, error) {
	providers, err := l.provRepo.GetDueForBmsTest(ctx, bandwidthBatchSize)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, sp := range providers {
		if !sp.LastWorkingURL.Valid {
			l.log.Warn().Str("provider_id", sp.ProviderID).Msg("provider has no last working url, skipping bms test")
			continue
		}

		providerID, err := address.NewProviderID(sp.ProviderID)
		if err != nil {
			l.log.Warn().Err(err).Str("provider_id", sp.ProviderID).Msg("invalid provider id, skipping")
			continue
		}

		if err := l.breaker.CheckAllowed(); err != nil {
			l.log.Debug().Err(err).Str("provider_id", sp.ProviderID).Msg("bms job creation rejected by circuit breaker")
			continue
		}

		entity := providerID.Address().String()
		job, err := l.client.CreateJob(ctx, sp.LastWorkingURL.String, l.workerCount, &entity)
		if err != nil {
			l.breaker.RecordFailure()
			l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to create bms job")
			continue
		}
		l.breaker.RecordSuccess()

		if _, err := l.resultRepo.InsertPending(ctx, providerID, job.ID, job.URL, job.RoutingKey, int32(l.workerCount)); err != nil {
			l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to insert pending bms result")
			continue
		}

		if err := l.provRepo.ScheduleNextBmsTest(ctx, providerID, l.testInterval); err != nil {
			l.log.Error().Err(err).Str("provider_id", sp.ProviderID).Msg("failed to schedule next bms test")
			continue
		}

		l.log.Info().Str("provider_id", sp.ProviderID).Str("job_id", job.ID.String()).Str("routing_key", job.RoutingKey).Msg("created bms job")
		created++
	}
	return created, nil
}

func (l *BandwidthLoop) runResultPoller(ctx context.Context) {
	for {
		if err := l.pollResults(ctx); err != nil {
			l.log.Error().Err(err).Msg("bms result poller cycle failed")
		}

		select {
		case <-time.After(resultPollerInterval):
		case <-ctx.Done():
			return
		}
	}
}

func (l *BandwidthLoop) pollResults(ctx context.Context) error {
	pending, err := l.resultRepo.GetPending(ctx)
	if err != nil {
		return err
	}

	for _, res := range pending {
		if time.Since(res.CreatedAt) >= bmsJobTimeout {
			l.handleTimeout(ctx, res)
			continue
		}
		l.pollSingle(ctx, res)
	}
	return nil
}

func (l *BandwidthLoop) handleTimeout(ctx context.Context, res repository.BmsBandwidthResult) {
	l.log.Warn().Str("job_id", res.BmsJobID.String()).Str("provider_id", res.ProviderID).Dur("age", time.Since(res.CreatedAt)).Msg("bms job timed out")

	if err := l.resultRepo.UpdateCompleted(ctx, res.BmsJobID, "Timeout", nil, nil, nil, nil); err != nil {
		l.log.Error().Err(err).Str("job_id", res.BmsJobID.String()).Msg("failed to mark bms job timed out")
	}
}

func (l *BandwidthLoop) pollSingle(ctx context.Context, res repository.BmsBandwidthResult) {
	job, err := l.client.GetJob(ctx, res.BmsJobID)
	if err != nil {
		l.log.Warn().Err(err).Str("job_id", res.BmsJobID.String()).Str("provider_id", res.ProviderID).Msg("failed to fetch bms job")
		return
	}

	if !bms.IsJobFinished(job.Status) {
		l.log.Debug().Str("job_id", res.BmsJobID.String()).Str("status", job.Status).Msg("bms job still in progress")
		return
	}

	l.log.Info().Str("job_id", job.ID.String()).Str("provider_id", res.ProviderID).Str("status", job.Status).Msg("bms job completed")

	pingAvgMs, headAvgMs, ttfbMs, downloadSpeedMbps := extractResults(job)
	if err := l.resultRepo.UpdateCompleted(ctx, res.BmsJobID, job.Status, pingAvgMs, headAvgMs, ttfbMs, downloadSpeedMbps); err != nil {
		l.log.Error().Err(err).Str("job_id", res.BmsJobID.String()).Msg("failed to persist completed bms result")
	}
}

// extractResults finds the last completed sub-job with worker data
// (typically the 100% fan-out) and pulls its measurements out, converting
// ping from seconds to milliseconds to match the other two latency fields.
func extractResults(job bms.BmsJobResponse) (pingAvgMs, headAvgMs, ttfbMs, downloadSpeedMbps *float64) {
	if job.SubJobs == nil {
		return nil, nil, nil, nil
	}

	subs := *job.SubJobs
	for i := len(subs) - 1; i >= 0; i-- {
		sub := subs[i]
		if sub.Status != "Completed" || sub.WorkerData == nil || len(*sub.WorkerData) == 0 {
			continue
		}

		data := (*sub.WorkerData)[0]
		if data.Ping != nil && data.Ping.Avg != nil {
			ms := *data.Ping.Avg * 1000
			pingAvgMs = &ms
		}
		if data.Head != nil {
			headAvgMs = data.Head.Avg
		}
		if data.Download != nil {
			ttfbMs = data.Download.TimeToFirstByteMs
			downloadSpeedMbps = data.Download.DownloadSpeed
		}
		return
	}
	return nil, nil, nil, nil
}
