package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

// BmsBandwidthResult is one recorded (or still-pending) bandwidth
// measurement job run against a provider's working URL.
type BmsBandwidthResult struct {
	ID                uuid.UUID             `db:"id"`
	ProviderID        string                `db:"provider_id"`
	BmsJobID          uuid.UUID             `db:"bms_job_id"`
	URLTested         string                `db:"url_tested"`
	RoutingKey        string                `db:"routing_key"`
	WorkerCount       int32                 `db:"worker_count"`
	Status            string                `db:"status"`
	PingAvgMs         decimal.NullDecimal   `db:"ping_avg_ms"`
	HeadAvgMs         decimal.NullDecimal   `db:"head_avg_ms"`
	TtfbMs            decimal.NullDecimal   `db:"ttfb_ms"`
	DownloadSpeedMbps decimal.NullDecimal   `db:"download_speed_mbps"`
	CreatedAt         time.Time             `db:"created_at"`
	CompletedAt       sql.NullTime          `db:"completed_at"`
}

// BmsResultRepository persists bandwidth measurement job runs.
type BmsResultRepository struct {
	db *sqlx.DB
}

// NewBmsResultRepository wraps db.
func NewBmsResultRepository(db *sqlx.DB) *BmsResultRepository {
	return &BmsResultRepository{db: db}
}

// InsertPending records a freshly created bandwidth job as pending.
func (r *BmsResultRepository) InsertPending(ctx context.Context, providerID address.ProviderID, jobID uuid.UUID, url, routingKey string, workerCount int32) (*BmsBandwidthResult, error) {
	var res BmsBandwidthResult
	err := r.db.GetContext(ctx, &res, `
		INSERT INTO bms_bandwidth_results (
			provider_id, bms_job_id, url_tested, routing_key, worker_count, status
		)
		VALUES ($1, $2, $3, $4, $5, 'Pending')
		RETURNING *
	`, providerID.String(), jobID, url, routingKey, workerCount)
	if err != nil {
		return nil, fmt.Errorf("repository: insert pending bms result: %w", err)
	}
	return &res, nil
}

// UpdateCompleted records a finished (or failed) job's measurements. It
// errors if jobID has no pending row to update.
func (r *BmsResultRepository) UpdateCompleted(ctx context.Context, jobID uuid.UUID, status string, pingAvgMs, headAvgMs, ttfbMs, downloadSpeedMbps *float64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bms_bandwidth_results
		SET status = $2,
		    ping_avg_ms = $3,
		    head_avg_ms = $4,
		    ttfb_ms = $5,
		    download_speed_mbps = $6,
		    completed_at = NOW()
		WHERE bms_job_id = $1 AND status = 'Pending'
	`, jobID, status, toDecimal(pingAvgMs), toDecimal(headAvgMs), toDecimal(ttfbMs), toDecimal(downloadSpeedMbps))
	if err != nil {
		return fmt.Errorf("repository: update completed bms result: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: update completed bms result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("repository: bms job not found: %s", jobID)
	}
	return nil
}

// GetPending returns every job still awaiting completion, oldest first.
func (r *BmsResultRepository) GetPending(ctx context.Context) ([]BmsBandwidthResult, error) {
	var results []BmsBandwidthResult
	err := r.db.SelectContext(ctx, &results, `
		SELECT * FROM bms_bandwidth_results
		WHERE status = 'Pending'
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("repository: get pending bms results: %w", err)
	}
	return results, nil
}

// GetLatestForProvider returns the most recent job run against providerID,
// pending or not.
func (r *BmsResultRepository) GetLatestForProvider(ctx context.Context, providerID address.ProviderID) (*BmsBandwidthResult, error) {
	return r.getOne(ctx, `
		SELECT * FROM bms_bandwidth_results
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, providerID.String())
}

// GetLatestCompletedForProvider returns the most recent non-pending job run
// against providerID.
func (r *BmsResultRepository) GetLatestCompletedForProvider(ctx context.Context, providerID address.ProviderID) (*BmsBandwidthResult, error) {
	return r.getOne(ctx, `
		SELECT * FROM bms_bandwidth_results
		WHERE provider_id = $1 AND status != 'Pending'
		ORDER BY completed_at DESC NULLS LAST
		LIMIT 1
	`, providerID.String())
}

func (r *BmsResultRepository) getOne(ctx context.Context, query string, args ...any) (*BmsBandwidthResult, error) {
	var res BmsBandwidthResult
	err := r.db.GetContext(ctx, &res, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get bms result: %w", err)
	}
	return &res, nil
}

// GetLatestCompletedForProviders batches GetLatestCompletedForProvider
// across many providers in one query via DISTINCT ON.
func (r *BmsResultRepository) GetLatestCompletedForProviders(ctx context.Context, providerIDs []address.ProviderID) ([]BmsBandwidthResult, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(providerIDs))
	for i, id := range providerIDs {
		ids[i] = id.String()
	}

	var results []BmsBandwidthResult
	err := r.db.SelectContext(ctx, &results, `
		SELECT DISTINCT ON (provider_id) *
		FROM bms_bandwidth_results
		WHERE provider_id = ANY($1) AND status != 'Pending'
		ORDER BY provider_id, completed_at DESC NULLS LAST
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("repository: get latest completed bms results for providers: %w", err)
	}
	return results, nil
}

// GetHistoryForProvider returns up to limit job runs for providerID, most
// recent first.
func (r *BmsResultRepository) GetHistoryForProvider(ctx context.Context, providerID address.ProviderID, limit int64) ([]BmsBandwidthResult, error) {
	var results []BmsBandwidthResult
	err := r.db.SelectContext(ctx, &results, `
		SELECT * FROM bms_bandwidth_results
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, providerID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get history for provider: %w", err)
	}
	return results, nil
}

// toDecimal converts an optional float64 measurement to a nullable decimal
// for a NUMERIC column, matching the original's f64-to-BigDecimal bridge.
func toDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*v), Valid: true}
}
