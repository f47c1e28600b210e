package datastores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SweepReport summarizes one reconciliation pass
type SweepReport struct {
	StuckFinished   int `json:"stuck_finished"`
	OrphansRemoved  int `json:"orphans_removed"`
	PrefixesScanned int `json:"prefixes_scanned"`
}

// Sweep reconciles the two storage systems after interrupted deletions.
//
// Two passes:
//  1. rows stuck in 'deleting' longer than the grace period get their
//     deletion finished (rows plus object prefix);
//  2. object prefixes under datastores/ whose row no longer exists are
//     removed.
//
// Both directions of the cross-system gap are covered: a crash after the
// durable marker leaves a stuck row, a relational failure after object
// deletion leaves nothing to do, and a relational success with a failed
// object branch leaves an orphaned prefix.
func (s *Service) Sweep(ctx context.Context, grace time.Duration) (*SweepReport, error) {
	report := &SweepReport{}

	if s.metrics != nil {
		s.metrics.ReconcilerSweepsTotal.Inc()
	}

	if err := s.finishStuckDeletions(ctx, grace, report); err != nil {
		return report, err
	}
	if err := s.removeOrphanedPrefixes(ctx, report); err != nil {
		return report, err
	}

	s.logger.WithFields(map[string]interface{}{
		"stuck_finished":   report.StuckFinished,
		"orphans_removed":  report.OrphansRemoved,
		"prefixes_scanned": report.PrefixesScanned,
	}).Info("reconciler sweep complete")

	return report, nil
}

func (s *Service) finishStuckDeletions(ctx context.Context, grace time.Duration, report *SweepReport) error {
	rows, err := s.primary.QueryContext(ctx,
		`SELECT id, organization_id FROM datastores WHERE status = 'deleting' AND updated_at < $1`,
		time.Now().Add(-grace),
	)
	if err != nil {
		return fmt.Errorf("failed to list stuck deletions: %w", err)
	}
	defer rows.Close()

	type stuck struct{ id, orgID string }
	var pending []stuck
	for rows.Next() {
		var st stuck
		if err := rows.Scan(&st.id, &st.orgID); err != nil {
			return fmt.Errorf("failed to scan stuck deletion: %w", err)
		}
		pending = append(pending, st)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate stuck deletions: %w", err)
	}

	for _, st := range pending {
		log := s.logger.WithField("datastore_id", st.id)

		objects, rowsDeleted, err := s.destroy(ctx, st.id)
		if err != nil {
			// Leave it for the next sweep rather than aborting the pass
			log.WithError(err).Warn("failed to finish stuck deletion")
			continue
		}
		if _, err := s.orgs.RecomputeUsage(ctx, st.orgID); err != nil {
			log.WithError(err).Warn("usage recompute failed after stuck deletion")
		}

		log.WithFields(map[string]interface{}{
			"objects_deleted":     objects,
			"datasources_deleted": rowsDeleted,
		}).Info("finished stuck datastore deletion")
		report.StuckFinished++
	}

	return nil
}

func (s *Service) removeOrphanedPrefixes(ctx context.Context, report *SweepReport) error {
	prefixes, err := s.objects.ListFolders(ctx, objectPrefixRoot)
	if err != nil {
		return fmt.Errorf("failed to list object prefixes: %w", err)
	}
	report.PrefixesScanned = len(prefixes)

	for _, prefix := range prefixes {
		id := strings.TrimSuffix(strings.TrimPrefix(prefix, objectPrefixRoot), "/")
		if id == "" {
			continue
		}

		var createdAt time.Time
		err := s.primary.QueryRowContext(ctx,
			`SELECT created_at FROM datastores WHERE id = $1`, id,
		).Scan(&createdAt)
		if err == nil {
			continue // Row still exists; not an orphan
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check datastore %s: %w", id, err)
		}

		n, err := s.objects.DeleteFolder(ctx, objectPrefixRoot+id+"/")
		if err != nil {
			s.logger.WithError(err).WithField("prefix", prefix).Warn("failed to remove orphaned prefix")
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"prefix":          prefix,
			"objects_deleted": n,
		}).Info("removed orphaned object prefix")
		report.OrphansRemoved++
		if s.metrics != nil {
			s.metrics.OrphanedPrefixesTotal.Inc()
			s.metrics.ObjectsDeletedTotal.Add(float64(n))
		}
	}

	return nil
}
