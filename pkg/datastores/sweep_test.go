package datastores

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRemovesOrphanedPrefixes(t *testing.T) {
	f := newDeletionFixture(t)
	f.objects.folders = []string{"datastores/live/", "datastores/orphan/"}

	// No rows stuck in deleting
	f.mock.ExpectQuery("SELECT id, organization_id FROM datastores WHERE status = 'deleting'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}))
	// "live" still has a row, "orphan" does not
	f.mock.ExpectQuery("SELECT created_at FROM datastores WHERE id").
		WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	f.mock.ExpectQuery("SELECT created_at FROM datastores WHERE id").
		WithArgs("orphan").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	report, err := f.svc.Sweep(context.Background(), 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Equal(t, 2, report.PrefixesScanned)
	assert.Equal(t, []string{"datastores/orphan/"}, f.objects.deleted())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSweepFinishesStuckDeletions(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT id, organization_id FROM datastores WHERE status = 'deleting'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}).AddRow("stuck-1", "org-1"))
	expectRelationalDelete(f.mock, "stuck-1", 4)

	report, err := f.svc.Sweep(context.Background(), 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, report.StuckFinished)
	assert.Contains(t, f.objects.deleted(), "datastores/stuck-1/")
	assert.Equal(t, []string{"org-1"}, f.orgSvc.recomputed)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSweepNothingToDo(t *testing.T) {
	f := newDeletionFixture(t)

	f.mock.ExpectQuery("SELECT id, organization_id FROM datastores WHERE status = 'deleting'").
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id"}))

	report, err := f.svc.Sweep(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, report.StuckFinished)
	assert.Zero(t, report.OrphansRemoved)
	assert.Empty(t, f.objects.deleted())
}
