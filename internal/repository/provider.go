// Package repository persists and schedules storage-provider discovery and
// bandwidth-test state: which providers are due for a check, what their
// last known-good endpoint and peer id are, and the recorded URL/bandwidth
// results.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

// StorageProvider is one tracked provider's discovery and bandwidth-test
// schedule, along with the last known-good state from each.
type StorageProvider struct {
	ID                       string          `db:"id"`
	ProviderID               string          `db:"provider_id"`
	PeerID                   sql.NullString  `db:"peer_id"`
	PeerIDFetchedAt          sql.NullTime    `db:"peer_id_fetched_at"`
	NextURLDiscoveryAt       time.Time       `db:"next_url_discovery_at"`
	URLDiscoveryStatus       sql.NullString  `db:"url_discovery_status"`
	URLDiscoveryPendingSince sql.NullTime    `db:"url_discovery_pending_since"`
	LastWorkingURL           sql.NullString  `db:"last_working_url"`
	NextBmsTestAt            time.Time       `db:"next_bms_test_at"`
	BmsTestStatus            sql.NullString  `db:"bms_test_status"`
	BmsRoutingKey            sql.NullString  `db:"bms_routing_key"`
	LastBmsRegionDiscoveryAt sql.NullTime    `db:"last_bms_region_discovery_at"`
	IsConsistent             bool            `db:"is_consistent"`
	IsReliable               bool            `db:"is_reliable"`
	URLMetadata              sql.NullString  `db:"url_metadata"`
	CreatedAt                time.Time       `db:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at"`
}

// ProviderRepository tracks the discovery/bandwidth-test schedule for every
// known storage provider.
type ProviderRepository struct {
	db *sqlx.DB
}

// NewProviderRepository wraps db.
func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// InsertBatchIfNotExists registers providerIDs that aren't already tracked,
// returning how many rows were newly inserted.
func (r *ProviderRepository) InsertBatchIfNotExists(ctx context.Context, providerIDs []address.ProviderID) (int64, error) {
	if len(providerIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(providerIDs))
	for i, id := range providerIDs {
		ids[i] = id.String()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO storage_providers (provider_id)
		SELECT UNNEST($1::text[])
		ON CONFLICT DO NOTHING
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("repository: insert batch if not exists: %w", err)
	}
	return result.RowsAffected()
}

// GetByProviderID returns the tracked row for providerID, or nil if it
// isn't tracked yet.
func (r *ProviderRepository) GetByProviderID(ctx context.Context, providerID address.ProviderID) (*StorageProvider, error) {
	var sp StorageProvider
	err := r.db.GetContext(ctx, &sp, `
		SELECT * FROM storage_providers WHERE provider_id = $1
	`, providerID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get by provider id: %w", err)
	}
	return &sp, nil
}

// GetDueForURLDiscovery returns up to limit providers whose URL discovery
// is due, including providers whose 'pending' lease has expired — the
// crash-recovery path for a worker that died mid-run.
func (r *ProviderRepository) GetDueForURLDiscovery(ctx context.Context, limit int64) ([]StorageProvider, error) {
	var sps []StorageProvider
	err := r.db.SelectContext(ctx, &sps, `
		SELECT * FROM storage_providers
		WHERE (next_url_discovery_at <= NOW() AND url_discovery_status IS DISTINCT FROM 'pending')
		   OR (url_discovery_status = 'pending' AND (
			url_discovery_pending_since IS NULL
			OR url_discovery_pending_since < NOW() - INTERVAL '60 minutes'
		   ))
		ORDER BY next_url_discovery_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get due for url discovery: %w", err)
	}
	return sps, nil
}

// SetURLDiscoveryPending marks providerID as mid-run, starting its lease
// clock.
func (r *ProviderRepository) SetURLDiscoveryPending(ctx context.Context, providerID address.ProviderID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE storage_providers
		SET url_discovery_status = 'pending', url_discovery_pending_since = NOW()
		WHERE provider_id = $1
	`, providerID.String())
	if err != nil {
		return fmt.Errorf("repository: set url discovery pending: %w", err)
	}
	return nil
}

// UpdateAfterURLDiscovery records the outcome of a completed discovery run
// and reschedules the next one a day out, clearing the pending lease.
func (r *ProviderRepository) UpdateAfterURLDiscovery(ctx context.Context, providerID address.ProviderID, lastWorkingURL *string, isConsistent, isReliable bool, urlMetadata any) error {
	var metadataJSON []byte
	if urlMetadata != nil {
		var err error
		metadataJSON, err = json.Marshal(urlMetadata)
		if err != nil {
			return fmt.Errorf("repository: marshal url metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE storage_providers
		SET next_url_discovery_at = NOW() + INTERVAL '1 day',
		    url_discovery_status = NULL,
		    url_discovery_pending_since = NULL,
		    last_working_url = $2,
		    is_consistent = $3,
		    is_reliable = $4,
		    url_metadata = $5,
		    updated_at = NOW()
		WHERE provider_id = $1
	`, providerID.String(), lastWorkingURL, isConsistent, isReliable, nullableJSON(metadataJSON))
	if err != nil {
		return fmt.Errorf("repository: update after url discovery: %w", err)
	}
	return nil
}

// RescheduleURLDiscoveryDelayed pushes providerID's next discovery attempt
// delaySeconds into the future, without touching its pending lease.
func (r *ProviderRepository) RescheduleURLDiscoveryDelayed(ctx context.Context, providerID address.ProviderID, delaySeconds float64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE storage_providers
		SET next_url_discovery_at = NOW() + INTERVAL '1 second' * $2
		WHERE provider_id = $1
	`, providerID.String(), delaySeconds)
	if err != nil {
		return fmt.Errorf("repository: reschedule url discovery delayed: %w", err)
	}
	return nil
}

// GetDueForBmsTest returns up to limit providers with a known-good,
// consistent URL whose bandwidth test is due.
func (r *ProviderRepository) GetDueForBmsTest(ctx context.Context, limit int64) ([]StorageProvider, error) {
	var sps []StorageProvider
	err := r.db.SelectContext(ctx, &sps, `
		SELECT * FROM storage_providers
		WHERE last_working_url IS NOT NULL
		  AND is_consistent = true
		  AND next_bms_test_at <= NOW()
		ORDER BY next_bms_test_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get due for bms test: %w", err)
	}
	return sps, nil
}

// ScheduleNextBmsTest pushes providerID's next bandwidth test intervalDays
// out.
func (r *ProviderRepository) ScheduleNextBmsTest(ctx context.Context, providerID address.ProviderID, intervalDays int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE storage_providers
		SET next_bms_test_at = NOW() + ($2 || ' days')::INTERVAL
		WHERE provider_id = $1
	`, providerID.String(), intervalDays)
	if err != nil {
		return fmt.Errorf("repository: schedule next bms test: %w", err)
	}
	return nil
}

// ResetURLDiscoverySchedule forces providerID's next URL discovery to now,
// returning the updated row.
func (r *ProviderRepository) ResetURLDiscoverySchedule(ctx context.Context, providerID address.ProviderID) (*StorageProvider, error) {
	return r.resetAndReturn(ctx, providerID, `
		UPDATE storage_providers SET next_url_discovery_at = NOW()
		WHERE provider_id = $1
		RETURNING *
	`)
}

// ResetBmsTestSchedule forces providerID's next bandwidth test to now,
// returning the updated row.
func (r *ProviderRepository) ResetBmsTestSchedule(ctx context.Context, providerID address.ProviderID) (*StorageProvider, error) {
	return r.resetAndReturn(ctx, providerID, `
		UPDATE storage_providers SET next_bms_test_at = NOW()
		WHERE provider_id = $1
		RETURNING *
	`)
}

// ResetAllSchedules forces both of providerID's schedules to now, returning
// the updated row.
func (r *ProviderRepository) ResetAllSchedules(ctx context.Context, providerID address.ProviderID) (*StorageProvider, error) {
	return r.resetAndReturn(ctx, providerID, `
		UPDATE storage_providers
		SET next_url_discovery_at = NOW(), next_bms_test_at = NOW()
		WHERE provider_id = $1
		RETURNING *
	`)
}

func (r *ProviderRepository) resetAndReturn(ctx context.Context, providerID address.ProviderID, query string) (*StorageProvider, error) {
	var sp StorageProvider
	err := r.db.GetContext(ctx, &sp, query, providerID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: reset schedule: %w", err)
	}
	return &sp, nil
}

// GetProvidersWithoutPeerID returns up to limit providers that have never
// had a peer id resolved, oldest-registered first.
func (r *ProviderRepository) GetProvidersWithoutPeerID(ctx context.Context, limit int64) ([]StorageProvider, error) {
	var sps []StorageProvider
	err := r.db.SelectContext(ctx, &sps, `
		SELECT * FROM storage_providers
		WHERE peer_id IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get providers without peer id: %w", err)
	}
	return sps, nil
}

// GetProvidersWithStalePeerID returns up to limit providers whose peer id
// was last fetched more than staleDays ago.
func (r *ProviderRepository) GetProvidersWithStalePeerID(ctx context.Context, limit int64, staleDays int) ([]StorageProvider, error) {
	var sps []StorageProvider
	err := r.db.SelectContext(ctx, &sps, `
		SELECT * FROM storage_providers
		WHERE peer_id IS NOT NULL
		  AND peer_id_fetched_at < NOW() - INTERVAL '1 day' * $2
		ORDER BY peer_id_fetched_at ASC
		LIMIT $1
	`, limit, staleDays)
	if err != nil {
		return nil, fmt.Errorf("repository: get providers with stale peer id: %w", err)
	}
	return sps, nil
}

// UpdatePeerID records a freshly resolved peer id and immediately makes
// providerID due for URL discovery, since a changed peer id invalidates any
// previously discovered endpoint.
func (r *ProviderRepository) UpdatePeerID(ctx context.Context, providerID address.ProviderID, peerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE storage_providers
		SET peer_id = $2, peer_id_fetched_at = NOW(), next_url_discovery_at = NOW(), updated_at = NOW()
		WHERE provider_id = $1
	`, providerID.String(), peerID)
	if err != nil {
		return fmt.Errorf("repository: update peer id: %w", err)
	}
	return nil
}

// nullableJSON turns an empty/nil marshaled payload into a real SQL NULL
// rather than the JSON literal "null".
func nullableJSON(b []byte) any {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return b
}
