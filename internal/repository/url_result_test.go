package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fidlabs/piece-sentinel/internal/discovery"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

func TestInsertBatchEmptyURLResults(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDB(mockDB, "postgres", sqlx.WithDBSystem("postgresql"))
	repo := NewURLResultRepository(db)

	n, err := repo.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestInsertBatchURLResults(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	db := sqlx.NewDB(mockDB, "postgres", sqlx.WithDBSystem("postgresql"))
	repo := NewURLResultRepository(db)

	workingURL := "https://example.com/piece/baga123"
	results := []UrlResult{
		{
			ID:                    uuid.New(),
			ProviderID:            "1000",
			ResultType:            discovery.DiscoveryTypeProvider,
			WorkingURL:            &workingURL,
			RetrievabilityPercent: 100,
			ResultCode:            discovery.ResultSuccess,
			TestedAt:              time.Now(),
		},
	}

	mock.ExpectExec(`INSERT INTO url_results`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.InsertBatch(context.Background(), results)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
