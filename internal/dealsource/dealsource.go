// Package dealsource provides the provider/client/piece population a
// discovery trial samples from: which providers and clients have active
// deals, and which pieces to test for a given provider.
package dealsource

import (
	"context"
	"fmt"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

// MaxSampleLimit caps how many pieces a single SamplePieces call may
// request, regardless of what the caller asks for.
const MaxSampleLimit = 100

// Piece is one sampled deal's piece identity and size.
type Piece struct {
	DealID    int32
	PieceCID  string
	PieceSize *int64
}

// Source is the population a discovery trial samples from.
type Source interface {
	// DistinctProviders returns every provider id with at least one deal.
	DistinctProviders(ctx context.Context) ([]address.ProviderID, error)
	// ClientsForProvider returns every client id with a deal against
	// providerID.
	ClientsForProvider(ctx context.Context, providerID address.ProviderID) ([]address.ClientID, error)
	// SamplePieces returns up to limit (capped at MaxSampleLimit) pieces
	// deal against providerID, optionally restricted to clientID,
	// sampled randomly so repeated calls exercise different pieces.
	SamplePieces(ctx context.Context, providerID address.ProviderID, clientID *address.ClientID, limit int) ([]Piece, error)
}

// PostgresSource is the sqlx-backed Source implementation, querying the
// unified_verified_deal table.
type PostgresSource struct {
	db *sqlx.DB
}

// NewPostgresSource wraps db as a Source.
func NewPostgresSource(db *sqlx.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

type providerRow struct {
	ProviderID *string `db:"providerId"`
}

// DistinctProviders returns every distinct non-null provider id across all
// deals.
func (s *PostgresSource) DistinctProviders(ctx context.Context) ([]address.ProviderID, error) {
	var rows []providerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT "providerId"
		FROM unified_verified_deal
		WHERE "providerId" IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("dealsource: distinct providers: %w", err)
	}

	out := make([]address.ProviderID, 0, len(rows))
	for _, row := range rows {
		if row.ProviderID == nil {
			continue
		}
		id, err := address.NewProviderID(*row.ProviderID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

type clientRow struct {
	ClientID *string `db:"clientId"`
}

// ClientsForProvider returns every distinct non-null client id with a deal
// against providerID.
func (s *PostgresSource) ClientsForProvider(ctx context.Context, providerID address.ProviderID) ([]address.ClientID, error) {
	var rows []clientRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT "clientId"
		FROM unified_verified_deal
		WHERE "providerId" = $1
		  AND "clientId" IS NOT NULL
	`, providerID.String())
	if err != nil {
		return nil, fmt.Errorf("dealsource: clients for provider: %w", err)
	}

	out := make([]address.ClientID, 0, len(rows))
	for _, row := range rows {
		if row.ClientID == nil {
			continue
		}
		id, err := address.NewClientID(*row.ClientID)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

type pieceRow struct {
	DealID    int32   `db:"dealId"`
	PieceCID  *string `db:"pieceCid"`
	PieceSize *string `db:"pieceSize"`
}

// SamplePieces returns up to limit randomly-ordered deals with a non-null
// piece cid, against providerID and (when non-nil) clientID.
func (s *PostgresSource) SamplePieces(ctx context.Context, providerID address.ProviderID, clientID *address.ClientID, limit int) ([]Piece, error) {
	if limit <= 0 || limit > MaxSampleLimit {
		limit = MaxSampleLimit
	}

	var rows []pieceRow
	var err error
	if clientID != nil {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT "dealId", "pieceCid", "pieceSize"
			FROM unified_verified_deal
			WHERE "providerId" = $1
			  AND "clientId" = $2
			  AND "pieceCid" IS NOT NULL
			ORDER BY random()
			LIMIT $3
		`, providerID.String(), clientID.String(), limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT "dealId", "pieceCid", "pieceSize"
			FROM unified_verified_deal
			WHERE "providerId" = $1
			  AND "pieceCid" IS NOT NULL
			ORDER BY random()
			LIMIT $2
		`, providerID.String(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("dealsource: sample pieces: %w", err)
	}

	out := make([]Piece, 0, len(rows))
	for _, row := range rows {
		if row.PieceCID == nil {
			continue
		}
		out = append(out, Piece{
			DealID:    row.DealID,
			PieceCID:  *row.PieceCID,
			PieceSize: parsePieceSize(row.PieceSize),
		})
	}
	return out, nil
}

// parsePieceSize converts the NUMERIC piece size column, round-tripped
// through its string representation since Postgres NUMERIC has no exact Go
// integer mapping, to an int64. A malformed or absent value yields nil
// rather than failing the whole sample.
func parsePieceSize(raw *string) *int64 {
	if raw == nil {
		return nil
	}
	var v int64
	if _, err := fmt.Sscanf(*raw, "%d", &v); err != nil {
		return nil
	}
	return &v
}
