package orgs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpushq/corpus/pkg/storage"
)

func newTestService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresService(db, storage.DefaultConfig(), nil), mock
}

func TestGetOrganization_Success(t *testing.T) {
	service, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"id", "name", "plan_tier", "created_at", "updated_at"}).
		AddRow("org-1", "Acme", "pro", time.Now(), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM organizations").
		WithArgs("org-1").
		WillReturnRows(rows)

	org, err := service.GetOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", org.ID)
	assert.Equal(t, PlanPro, org.PlanTier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrganization_NotFound(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM organizations").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "plan_tier", "created_at", "updated_at"}))

	_, err := service.GetOrganization(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrOrganizationNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsage_ReadsSnapshot(t *testing.T) {
	service, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}).
		AddRow("org-1", int64(2048), int64(12), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM org_usage").
		WithArgs("org-1").
		WillReturnRows(rows)

	usage, err := service.GetUsage(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), usage.StorageBytes)
	assert.Equal(t, int64(12), usage.ProcessedDocuments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsage_CachesSnapshot(t *testing.T) {
	service, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}).
		AddRow("org-1", int64(2048), int64(12), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM org_usage").
		WithArgs("org-1").
		WillReturnRows(rows)

	_, err := service.GetUsage(context.Background(), "org-1")
	require.NoError(t, err)

	// Second read must come from the cache: no further query expected
	usage, err := service.GetUsage(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2048), usage.StorageBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUsage_MissingSnapshotRecomputes(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("SELECT (.+) FROM org_usage").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}))

	recomputed := sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}).
		AddRow("org-1", int64(512), int64(3), time.Now())
	mock.ExpectQuery("INSERT INTO org_usage").
		WithArgs("org-1").
		WillReturnRows(recomputed)

	usage, err := service.GetUsage(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(512), usage.StorageBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeUsage_UpsertsAndReturnsSnapshot(t *testing.T) {
	service, mock := newTestService(t)

	rows := sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}).
		AddRow("org-1", int64(4096), int64(7), time.Now())
	mock.ExpectQuery("INSERT INTO org_usage").
		WithArgs("org-1").
		WillReturnRows(rows)

	usage, err := service.RecomputeUsage(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), usage.StorageBytes)
	assert.Equal(t, int64(7), usage.ProcessedDocuments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeUsage_Idempotent(t *testing.T) {
	service, mock := newTestService(t)

	for i := 0; i < 2; i++ {
		rows := sqlmock.NewRows([]string{"org_id", "storage_bytes", "processed_documents", "recomputed_at"}).
			AddRow("org-1", int64(4096), int64(7), time.Now())
		mock.ExpectQuery("INSERT INTO org_usage").
			WithArgs("org-1").
			WillReturnRows(rows)
	}

	first, err := service.RecomputeUsage(context.Background(), "org-1")
	require.NoError(t, err)
	second, err := service.RecomputeUsage(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Equal(t, first.StorageBytes, second.StorageBytes)
	assert.Equal(t, first.ProcessedDocuments, second.ProcessedDocuments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeUsage_Error(t *testing.T) {
	service, mock := newTestService(t)

	mock.ExpectQuery("INSERT INTO org_usage").
		WithArgs("org-1").
		WillReturnError(errors.New("database error"))

	_, err := service.RecomputeUsage(context.Background(), "org-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to recompute usage")
	assert.NoError(t, mock.ExpectationsWereMet())
}
