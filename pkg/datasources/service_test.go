package datasources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpushq/corpus/pkg/errdefs"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/tasks"
)

type stubOrgs struct {
	org      *orgs.Organization
	usage    *orgs.Usage
	orgErr   error
	usageErr error
}

func (s *stubOrgs) GetOrganization(ctx context.Context, id string) (*orgs.Organization, error) {
	if s.orgErr != nil {
		return nil, s.orgErr
	}
	return s.org, nil
}

func (s *stubOrgs) GetUsage(ctx context.Context, orgID string) (*orgs.Usage, error) {
	if s.usageErr != nil {
		return nil, s.usageErr
	}
	return s.usage, nil
}

func (s *stubOrgs) RecomputeUsage(ctx context.Context, orgID string) (*orgs.Usage, error) {
	return s.usage, nil
}

type recordingDispatcher struct {
	dispatched []tasks.SyncTask
	err        error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ts []tasks.SyncTask) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, ts...)
	return nil
}

func newTestLeases(t *testing.T) (*lease.Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lease.NewManager(client, 30*time.Second), mr
}

var datasourceCols = []string{
	"id", "datastore_id", "organization_id", "parent_id", "group_id",
	"name", "type", "status", "size_bytes", "config",
	"last_synched_at", "created_at", "updated_at",
}

func datasourceRow(id, orgID string, status Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(datasourceCols).AddRow(
		id, "store-1", orgID, nil, nil,
		"docs", "file", string(status), int64(1024), []byte("{}"),
		nil, now, now,
	)
}

func testOrgs(storageBytes, docs int64) *stubOrgs {
	return &stubOrgs{
		org: &orgs.Organization{ID: "org-1", PlanTier: orgs.PlanFree},
		usage: &orgs.Usage{
			OrgID:              "org-1",
			StorageBytes:       storageBytes,
			ProcessedDocuments: docs,
			RecomputedAt:       time.Now(),
		},
	}
}

func TestTriggerSyncDispatchesOneTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, mr := newTestLeases(t)
	dispatcher := &recordingDispatcher{}
	svc := NewService(db, testOrgs(100, 1), dispatcher, leases, nil)

	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusSynced))
	mock.ExpectQuery("UPDATE datasources").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusPending))

	updated, err := svc.TriggerSync(context.Background(), "org-1", "ds-1", tasks.DefaultPriority)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)

	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, tasks.SyncTask{
		OrganizationID: "org-1",
		DatasourceID:   "ds-1",
		Priority:       2,
	}, dispatcher.dispatched[0])

	// Lease must be released once the trigger completes
	assert.False(t, mr.Exists("lease:datasource:ds-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerSyncForceResyncFromPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	dispatcher := &recordingDispatcher{}
	svc := NewService(db, testOrgs(100, 1), dispatcher, leases, nil)

	// Already pending: the trigger still rewrites status and re-dispatches
	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusPending))
	mock.ExpectQuery("UPDATE datasources").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusPending))

	_, err = svc.TriggerSync(context.Background(), "org-1", "ds-1", 2)
	require.NoError(t, err)
	assert.Len(t, dispatcher.dispatched, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerSyncNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	dispatcher := &recordingDispatcher{}
	svc := NewService(db, testOrgs(0, 0), dispatcher, leases, nil)

	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(datasourceCols))

	_, err = svc.TriggerSync(context.Background(), "org-1", "missing", 2)
	assert.True(t, errdefs.IsNotFound(err))
	assert.Empty(t, dispatcher.dispatched)
}

func TestTriggerSyncCrossOrgDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	dispatcher := &recordingDispatcher{}
	svc := NewService(db, testOrgs(0, 0), dispatcher, leases, nil)

	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-other", StatusSynced))

	_, err = svc.TriggerSync(context.Background(), "org-1", "ds-1", 2)
	assert.True(t, errdefs.IsUnauthorized(err))
	assert.Empty(t, dispatcher.dispatched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerSyncQuotaDeniedNoMutation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	dispatcher := &recordingDispatcher{}
	// Over the free-tier document limit
	svc := NewService(db, testOrgs(100, 5_000), dispatcher, leases, nil)

	// Only the read runs; no UPDATE is expected on a denial
	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusSynced))

	_, err = svc.TriggerSync(context.Background(), "org-1", "ds-1", 2)
	assert.True(t, orgs.IsQuotaExceeded(err))
	assert.Empty(t, dispatcher.dispatched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerSyncDispatchFailureLeavesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	dispatcher := &recordingDispatcher{
		err: &tasks.DispatchFailedError{Queue: "load-datasource", Err: errors.New("connection refused")},
	}
	svc := NewService(db, testOrgs(100, 1), dispatcher, leases, nil)

	mock.ExpectQuery("SELECT (.+) FROM datasources WHERE id").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusSynced))
	mock.ExpectQuery("UPDATE datasources").
		WithArgs("ds-1").
		WillReturnRows(datasourceRow("ds-1", "org-1", StatusPending))

	_, err = svc.TriggerSync(context.Background(), "org-1", "ds-1", 2)
	assert.True(t, tasks.IsDispatchFailed(err))
	// The pending write already committed; the caller retries the trigger
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTriggerSyncContendedLease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, mr := newTestLeases(t)
	require.NoError(t, mr.Set("lease:datasource:ds-1", "other-holder"))

	dispatcher := &recordingDispatcher{}
	svc := NewService(db, testOrgs(0, 0), dispatcher, leases, nil)

	_, err = svc.TriggerSync(context.Background(), "org-1", "ds-1", 2)
	assert.True(t, lease.IsAlreadyHeld(err))
	assert.Empty(t, dispatcher.dispatched)
	// No DB work behind a contended lease
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDatasource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	svc := NewService(db, testOrgs(0, 0), &recordingDispatcher{}, leases, nil)

	mock.ExpectQuery("SELECT organization_id FROM datastores").
		WithArgs("store-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))
	mock.ExpectQuery("INSERT INTO datasources").
		WillReturnRows(datasourceRow("ds-new", "org-1", StatusUnsynced))

	ds, err := svc.Create(context.Background(), "org-1", &CreateRequest{
		DatastoreID: "store-1",
		Name:        "docs",
		Type:        TypeFile,
		SizeBytes:   1024,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusUnsynced, ds.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDatasourceValidation(t *testing.T) {
	leases, _ := newTestLeases(t)
	svc := NewService(nil, testOrgs(0, 0), &recordingDispatcher{}, leases, nil)

	tests := []struct {
		name string
		req  *CreateRequest
	}{
		{"missing datastore", &CreateRequest{Name: "docs", Type: TypeFile}},
		{"missing name", &CreateRequest{DatastoreID: "store-1", Type: TypeFile}},
		{"unknown type", &CreateRequest{DatastoreID: "store-1", Name: "docs", Type: "ftp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "org-1", tt.req)
			assert.True(t, errdefs.IsValidation(err))
		})
	}
}

func TestCreateDatasourceCrossOrgDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	leases, _ := newTestLeases(t)
	svc := NewService(db, testOrgs(0, 0), &recordingDispatcher{}, leases, nil)

	mock.ExpectQuery("SELECT organization_id FROM datastores").
		WithArgs("store-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-other"))

	_, err = svc.Create(context.Background(), "org-1", &CreateRequest{
		DatastoreID: "store-1",
		Name:        "docs",
		Type:        TypeFile,
	})
	assert.True(t, errdefs.IsUnauthorized(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
