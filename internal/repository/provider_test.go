package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidlabs/piece-sentinel/internal/address"
	"github.com/fidlabs/piece-sentinel/sqlx"
)

func newMockProviderRepo(t *testing.T) (*ProviderRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := sqlx.NewDB(mockDB, "postgres", sqlx.WithDBSystem("postgresql"))
	return NewProviderRepository(db), mock
}

func providerRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "provider_id", "peer_id", "peer_id_fetched_at",
		"next_url_discovery_at", "url_discovery_status", "url_discovery_pending_since",
		"last_working_url", "next_bms_test_at", "bms_test_status", "bms_routing_key",
		"last_bms_region_discovery_at", "is_consistent", "is_reliable", "url_metadata",
		"created_at", "updated_at",
	}).AddRow(
		"11111111-1111-1111-1111-111111111111", "1000", nil, nil,
		now, nil, nil,
		nil, now, nil, nil,
		nil, false, false, nil,
		now, now,
	)
}

func TestInsertBatchIfNotExistsEmpty(t *testing.T) {
	repo, _ := newMockProviderRepo(t)
	n, err := repo.InsertBatchIfNotExists(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertBatchIfNotExists(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectExec(`INSERT INTO storage_providers`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	id1, err := address.NewProviderID("1000")
	require.NoError(t, err)
	id2, err := address.NewProviderID("1001")
	require.NoError(t, err)

	n, err := repo.InsertBatchIfNotExists(context.Background(), []address.ProviderID{id1, id2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGetByProviderIDNotFound(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery(`SELECT \* FROM storage_providers WHERE provider_id = \$1`).
		WithArgs("1000").
		WillReturnRows(sqlmock.NewRows(nil))

	providerID, _ := address.NewProviderID("1000")
	sp, err := repo.GetByProviderID(context.Background(), providerID)
	require.NoError(t, err)
	assert.Nil(t, sp)
}

func TestGetByProviderIDFound(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery(`SELECT \* FROM storage_providers WHERE provider_id = \$1`).
		WithArgs("1000").
		WillReturnRows(providerRows())

	providerID, _ := address.NewProviderID("1000")
	sp, err := repo.GetByProviderID(context.Background(), providerID)
	require.NoError(t, err)
	require.NotNil(t, sp)
	assert.Equal(t, "1000", sp.ProviderID)
}

func TestGetDueForURLDiscovery(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery(`SELECT \* FROM storage_providers`).
		WithArgs(int64(10)).
		WillReturnRows(providerRows())

	sps, err := repo.GetDueForURLDiscovery(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sps, 1)
}

func TestUpdatePeerID(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectExec(`UPDATE storage_providers`).
		WithArgs("1000", "12D3KooWTest").
		WillReturnResult(sqlmock.NewResult(0, 1))

	providerID, _ := address.NewProviderID("1000")
	err := repo.UpdatePeerID(context.Background(), providerID, "12D3KooWTest")
	require.NoError(t, err)
}

func TestResetAllSchedules(t *testing.T) {
	repo, mock := newMockProviderRepo(t)

	mock.ExpectQuery(`UPDATE storage_providers`).
		WithArgs("1000").
		WillReturnRows(providerRows())

	providerID, _ := address.NewProviderID("1000")
	sp, err := repo.ResetAllSchedules(context.Background(), providerID)
	require.NoError(t, err)
	require.NotNil(t, sp)
}
