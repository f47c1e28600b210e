package datastores

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpushq/corpus/pkg/errdefs"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/orgs"
)

type fakeObjectStore struct {
	mu              sync.Mutex
	deletedPrefixes []string
	folders         []string
	objectCount     int
	deleteErr       error
	presignedURL    string
}

func (f *fakeObjectStore) DeleteFolder(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedPrefixes = append(f.deletedPrefixes, prefix)
	return f.objectCount, nil
}

func (f *fakeObjectStore) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	return f.folders, nil
}

func (f *fakeObjectStore) PresignPutObject(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	return f.presignedURL, nil
}

func (f *fakeObjectStore) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeObjectStore) deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletedPrefixes...)
}

type stubOrgService struct {
	mu           sync.Mutex
	recomputed   []string
	recomputeErr error
}

func (s *stubOrgService) GetOrganization(ctx context.Context, id string) (*orgs.Organization, error) {
	return &orgs.Organization{ID: id, PlanTier: orgs.PlanFree}, nil
}

func (s *stubOrgService) GetUsage(ctx context.Context, orgID string) (*orgs.Usage, error) {
	return &orgs.Usage{OrgID: orgID}, nil
}

func (s *stubOrgService) RecomputeUsage(ctx context.Context, orgID string) (*orgs.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recomputeErr != nil {
		return nil, s.recomputeErr
	}
	s.recomputed = append(s.recomputed, orgID)
	return &orgs.Usage{OrgID: orgID}, nil
}

type deletionFixture struct {
	svc     *Service
	mock    sqlmock.Sqlmock
	objects *fakeObjectStore
	orgSvc  *stubOrgService
	redis   *miniredis.Miniredis
}

func newDeletionFixture(t *testing.T) *deletionFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	objects := &fakeObjectStore{objectCount: 7}
	orgSvc := &stubOrgService{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	svc := NewService(db, nil, objects, orgSvc, lease.NewManager(client, 30*time.Second), logger, nil)
	return &deletionFixture{svc: svc, mock: mock, objects: objects, orgSvc: orgSvc, redis: mr}
}

var datastoreCols = []string{
	"id", "organization_id", "name", "description", "visibility", "status",
	"created_at", "updated_at",
}

func datastoreRow(id, orgID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(datastoreCols).AddRow(
		id, orgID, "support-docs", "", "private", "active", now, now,
	)
}

func expectRelationalDelete(mock sqlmock.Sqlmock, id string, datasourceRows int64) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM datasources WHERE datastore_id").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, datasourceRows))
	mock.ExpectExec("DELETE FROM datastores WHERE id").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestDeleteDatastore(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("store-1").
		WillReturnRows(datastoreRow("store-1", "org-1"))
	f.mock.ExpectExec("UPDATE datastores SET status = 'deleting'").
		WithArgs("store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelationalDelete(f.mock, "store-1", 3)

	summary, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	require.NoError(t, err)

	assert.Equal(t, "store-1", summary.ID)
	assert.Equal(t, int64(3), summary.DatasourcesDeleted)
	assert.Equal(t, 7, summary.ObjectsDeleted)
	assert.Equal(t, []string{"datastores/store-1/"}, f.objects.deleted())
	assert.Equal(t, []string{"org-1"}, f.orgSvc.recomputed)
	assert.NoError(t, f.mock.ExpectationsWereMet())

	// Lease released after completion
	assert.False(t, f.redis.Exists("lease:datastore:store-1"))
}

func TestDeleteDatastoreBlankID(t *testing.T) {
	f := newDeletionFixture(t)

	for _, id := range []string{"", "   "} {
		_, err := f.svc.DeleteDatastore(context.Background(), "org-1", id)
		assert.True(t, errdefs.IsValidation(err))
	}

	// Nothing touched: no queries, no object deletes
	assert.Empty(t, f.objects.deleted())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteDatastoreCrossOrgDenied(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("store-1").
		WillReturnRows(datastoreRow("store-1", "org-other"))

	_, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	assert.True(t, errdefs.IsUnauthorized(err))
	assert.Empty(t, f.objects.deleted())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteDatastoreNotFound(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(datastoreCols))

	_, err := f.svc.DeleteDatastore(context.Background(), "org-1", "missing")
	assert.True(t, errdefs.IsNotFound(err))
	assert.Empty(t, f.objects.deleted())
}

func TestDeleteDatastoreRelationalFailureRollsBack(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("store-1").
		WillReturnRows(datastoreRow("store-1", "org-1"))
	f.mock.ExpectExec("UPDATE datastores SET status = 'deleting'").
		WithArgs("store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("DELETE FROM datasources WHERE datastore_id").
		WithArgs("store-1").
		WillReturnError(errors.New("deadlock detected"))
	f.mock.ExpectRollback()

	_, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	assert.True(t, errdefs.IsTransactionFailed(err))

	// The object branch is independent: its deletes may have completed even
	// though the relational side rolled back. The deleting marker plus the
	// sweep reconcile the remainder.
	assert.Empty(t, f.orgSvc.recomputed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteDatastoreLockTimeoutIsTimeout(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("store-1").
		WillReturnRows(datastoreRow("store-1", "org-1"))
	f.mock.ExpectExec("UPDATE datastores SET status = 'deleting'").
		WithArgs("store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// lock_timeout exhausted while a concurrent sync held the rows
	f.mock.ExpectExec("DELETE FROM datasources WHERE datastore_id").
		WithArgs("store-1").
		WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	f.mock.ExpectRollback()

	_, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	assert.True(t, errdefs.IsTimeout(err))
	assert.False(t, errdefs.IsTransactionFailed(err))
	assert.Empty(t, f.orgSvc.recomputed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteDatastoreRecomputeFailureStillDeleted(t *testing.T) {
	f := newDeletionFixture(t)
	f.orgSvc.recomputeErr = errors.New("replica lag")

	f.mock.ExpectQuery("SELECT (.+) FROM datastores WHERE id").
		WithArgs("store-1").
		WillReturnRows(datastoreRow("store-1", "org-1"))
	f.mock.ExpectExec("UPDATE datastores SET status = 'deleting'").
		WithArgs("store-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRelationalDelete(f.mock, "store-1", 2)

	summary, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "store-1", summary.ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteDatastoreContendedLease(t *testing.T) {
	f := newDeletionFixture(t)
	require.NoError(t, f.redis.Set("lease:datastore:store-1", "other-holder"))

	_, err := f.svc.DeleteDatastore(context.Background(), "org-1", "store-1")
	assert.True(t, lease.IsAlreadyHeld(err))
	assert.Empty(t, f.objects.deleted())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
