package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/fidlabs/piece-sentinel/internal/discovery"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

// UrlResult is one persisted discovery trial outcome.
type UrlResult struct {
	ID                    uuid.UUID             `db:"id"`
	ProviderID            string                `db:"provider_id"`
	ClientID              *string               `db:"client_id"`
	ResultType            discovery.DiscoveryType `db:"result_type"`
	WorkingURL            *string               `db:"working_url"`
	RetrievabilityPercent float64               `db:"retrievability_percent"`
	ResultCode            discovery.ResultCode  `db:"result_code"`
	ErrorCode             *discovery.ErrorCode  `db:"error_code"`
	TestedAt              time.Time             `db:"tested_at"`
}

// URLResultRepository persists completed discovery trial outcomes.
type URLResultRepository struct {
	db *sqlx.DB
}

// NewURLResultRepository wraps db.
func NewURLResultRepository(db *sqlx.DB) *URLResultRepository {
	return &URLResultRepository{db: db}
}

// InsertBatch writes every result in one round trip via UNNEST, returning
// how many rows were inserted. An empty slice is a no-op.
func (r *URLResultRepository) InsertBatch(ctx context.Context, results []UrlResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	ids := make([]string, len(results))
	providerIDs := make([]string, len(results))
	clientIDs := make([]sql.NullString, len(results))
	resultTypes := make([]string, len(results))
	workingURLs := make([]sql.NullString, len(results))
	retrievability := make([]float64, len(results))
	resultCodes := make([]string, len(results))
	errorCodes := make([]sql.NullString, len(results))
	testedAts := make([]time.Time, len(results))

	for i, res := range results {
		ids[i] = res.ID.String()
		providerIDs[i] = res.ProviderID
		if res.ClientID != nil {
			clientIDs[i] = sql.NullString{String: *res.ClientID, Valid: true}
		}
		resultTypes[i] = string(res.ResultType)
		if res.WorkingURL != nil {
			workingURLs[i] = sql.NullString{String: *res.WorkingURL, Valid: true}
		}
		retrievability[i] = res.RetrievabilityPercent
		resultCodes[i] = string(res.ResultCode)
		if res.ErrorCode != nil {
			errorCodes[i] = sql.NullString{String: string(*res.ErrorCode), Valid: true}
		}
		testedAts[i] = res.TestedAt
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO url_results (
			id, provider_id, client_id, result_type, working_url,
			retrievability_percent, result_code, error_code, tested_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::text[], $3::text[], $4::discovery_type[], $5::text[],
			$6::double precision[], $7::result_code[], $8::error_code[], $9::timestamptz[]
		)
	`, pq.Array(ids), pq.Array(providerIDs), pq.Array(clientIDs), pq.Array(resultTypes), pq.Array(workingURLs),
		pq.Array(retrievability), pq.Array(resultCodes), pq.Array(errorCodes), pq.Array(testedAts))
	if err != nil {
		return 0, fmt.Errorf("repository: insert url results batch: %w", err)
	}
	return result.RowsAffected()
}
