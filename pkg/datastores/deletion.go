package datastores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/corpushq/corpus/pkg/errdefs"
)

var deletionTracer = otel.Tracer("corpus.datastores.deletion")

const (
	// deletionDeadline bounds the relational phase end to end
	deletionDeadline = 60 * time.Second
	// relationalLockWait bounds how long the transaction waits on row locks
	// held by concurrent syncs before giving up
	relationalLockWait = "10s"
	// objectPrefixRoot is the key namespace holding datastore content
	objectPrefixRoot = "datastores/"
)

// DeleteDatastore removes a datastore and everything it owns across both
// storage systems.
//
// Sequence:
//  1. durable intent: the row is marked 'deleting' before any destructive
//     work, so an interrupted deletion is finishable by the sweep;
//  2. object prefix deletion and the relational transaction run
//     concurrently. The relational side is all-or-nothing: datasource rows
//     and the datastore row go in one bounded transaction. The object side
//     runs on a non-cancellable context, so a relational timeout does not
//     abort in-flight object deletes;
//  3. post-commit, the owning organization's usage is recomputed.
//
// A recompute failure is returned alongside the summary: the deletion itself
// is complete and must not be reported as failed, but the stale usage
// snapshot is the caller's to surface. Retrying the recompute is safe.
func (s *Service) DeleteDatastore(ctx context.Context, callerOrgID, datastoreID string) (*DeletedSummary, error) {
	// An empty ID would aim the prefix delete at every datastore's objects.
	// Reject before the prefix is ever built.
	if strings.TrimSpace(datastoreID) == "" {
		return nil, &errdefs.ValidationError{Field: "datastore_id", Message: "must not be empty"}
	}

	ctx, span := deletionTracer.Start(ctx, "datastores.Delete")
	span.SetAttributes(attribute.String("datastore.id", datastoreID))
	defer span.End()

	start := time.Now()

	held, err := s.leases.Acquire(ctx, "datastore:"+datastoreID)
	if err != nil {
		s.countDeletion("conflict")
		return nil, err
	}
	defer held.Release(ctx)

	store, err := getDatastore(ctx, s.primary, datastoreID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			s.countDeletion("not_found")
		}
		return nil, err
	}
	if store.OrganizationID != callerOrgID {
		s.countDeletion("unauthorized")
		return nil, &errdefs.UnauthorizedError{Resource: "datastore", ID: datastoreID}
	}

	if err := s.markDeleting(ctx, datastoreID); err != nil {
		return nil, err
	}

	objectsDeleted, rowsDeleted, err := s.destroy(ctx, datastoreID)
	if err != nil {
		switch {
		case errdefs.IsTimeout(err):
			s.countDeletion("timeout")
		default:
			s.countDeletion("transaction_failed")
		}
		return nil, err
	}

	summary := &DeletedSummary{
		ID:                 store.ID,
		OrganizationID:     store.OrganizationID,
		Name:               store.Name,
		DatasourcesDeleted: rowsDeleted,
		ObjectsDeleted:     objectsDeleted,
	}

	if s.metrics != nil {
		s.metrics.DeletionDuration.Observe(time.Since(start).Seconds())
		s.metrics.ObjectsDeletedTotal.Add(float64(objectsDeleted))
	}

	if _, err := s.orgs.RecomputeUsage(ctx, store.OrganizationID); err != nil {
		s.countDeletion("recompute_failed")
		s.logger.WithError(err).
			WithField("organization_id", store.OrganizationID).
			Warn("datastore deleted but usage recompute failed")
		return summary, fmt.Errorf("datastore deleted but usage recompute failed: %w", err)
	}

	s.countDeletion("success")
	return summary, nil
}

// markDeleting durably records deletion intent on the row
func (s *Service) markDeleting(ctx context.Context, datastoreID string) error {
	_, err := s.primary.ExecContext(ctx,
		`UPDATE datastores SET status = 'deleting', updated_at = NOW() WHERE id = $1`,
		datastoreID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark datastore deleting: %w", err)
	}
	return nil
}

// destroy runs the object and relational deletions concurrently
func (s *Service) destroy(ctx context.Context, datastoreID string) (int, int64, error) {
	var (
		objectsDeleted int
		rowsDeleted    int64
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Object deletes already in flight are left to finish even when the
		// relational branch fails; the sweep handles any remainder.
		// Trailing delimiter keeps a sibling ID sharing this one as a
		// prefix out of the listing
		n, err := s.objects.DeleteFolder(context.WithoutCancel(gctx), objectPrefixRoot+datastoreID+"/")
		objectsDeleted = n
		if err != nil {
			return fmt.Errorf("failed to delete object prefix: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.deleteRows(gctx, datastoreID)
		rowsDeleted = n
		return err
	})

	if err := g.Wait(); err != nil {
		return objectsDeleted, rowsDeleted, err
	}
	return objectsDeleted, rowsDeleted, nil
}

// deleteRows removes the datasource rows and the datastore row in one
// bounded transaction. Either everything commits or nothing does.
func (s *Service) deleteRows(ctx context.Context, datastoreID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, deletionDeadline)
	defer cancel()

	tx, err := s.primary.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.relationalError("begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", relationalLockWait)); err != nil {
		return 0, s.relationalError("set lock timeout", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM datasources WHERE datastore_id = $1`, datastoreID)
	if err != nil {
		return 0, s.relationalError("delete datasources", err)
	}
	rowsDeleted, err := res.RowsAffected()
	if err != nil {
		return 0, s.relationalError("count deleted datasources", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM datastores WHERE id = $1`, datastoreID); err != nil {
		return 0, s.relationalError("delete datastore", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, s.relationalError("commit", err)
	}

	return rowsDeleted, nil
}

func (s *Service) relationalError(op string, err error) error {
	// lock_timeout fires server-side as lock_not_available; a cancelled
	// statement comes back as query_canceled. Both are deadline exhaustion,
	// not transaction failure.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03":
			return &errdefs.TimeoutError{Op: "datastore deletion", Limit: relationalLockWait}
		case "57014":
			return &errdefs.TimeoutError{Op: "datastore deletion", Limit: deletionDeadline.String()}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &errdefs.TimeoutError{Op: "datastore deletion", Limit: deletionDeadline.String()}
	}
	if errors.Is(err, sql.ErrTxDone) {
		return &errdefs.TimeoutError{Op: "datastore deletion", Limit: deletionDeadline.String()}
	}
	return &errdefs.TransactionFailedError{Op: op, Err: err}
}

func (s *Service) countDeletion(outcome string) {
	if s.metrics != nil {
		s.metrics.DatastoreDeletionsTotal.WithLabelValues(outcome).Inc()
	}
}
