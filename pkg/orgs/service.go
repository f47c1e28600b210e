package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/storage"
)

// PostgresService implements Service against PostgreSQL with a short-lived
// in-process cache for usage snapshots. Guard decisions explicitly tolerate
// snapshot staleness, so the cache TTL bounds how stale a decision can be.
type PostgresService struct {
	db      *sql.DB
	cache   *expirable.LRU[string, *Usage]
	metrics *observability.Metrics
}

// NewPostgresService creates a new organization service
func NewPostgresService(db *sql.DB, cfg storage.Config, metrics *observability.Metrics) *PostgresService {
	return &PostgresService{
		db:      db,
		cache:   expirable.NewLRU[string, *Usage](cfg.UsageCacheSize, nil, cfg.UsageCacheTTL),
		metrics: metrics,
	}
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `
		SELECT id, name, plan_tier, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	var org Organization
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.PlanTier, &org.CreatedAt, &org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// GetUsage returns the organization's usage snapshot, served from the
// memoized view when fresh enough.
func (s *PostgresService) GetUsage(ctx context.Context, orgID string) (*Usage, error) {
	if cached, ok := s.cache.Get(orgID); ok {
		if s.metrics != nil {
			s.metrics.UsageCacheHitsTotal.Inc()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.UsageCacheMissTotal.Inc()
	}

	query := `
		SELECT org_id, storage_bytes, processed_documents, recomputed_at
		FROM org_usage
		WHERE org_id = $1
	`

	var usage Usage
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&usage.OrgID, &usage.StorageBytes, &usage.ProcessedDocuments, &usage.RecomputedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// No snapshot yet: compute one from the source of truth
		return s.RecomputeUsage(ctx, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}

	s.cache.Add(orgID, &usage)
	return &usage, nil
}

// RecomputeUsage derives the organization's usage from its remaining
// datasource rows and persists the snapshot. Idempotent: recomputing twice
// with no intervening change yields the same snapshot.
func (s *PostgresService) RecomputeUsage(ctx context.Context, orgID string) (*Usage, error) {
	query := `
		INSERT INTO org_usage (org_id, storage_bytes, processed_documents, recomputed_at)
		SELECT $1,
		       COALESCE(SUM(size_bytes), 0),
		       COUNT(*) FILTER (WHERE status = 'synced'),
		       NOW()
		FROM datasources
		WHERE organization_id = $1
		ON CONFLICT (org_id) DO UPDATE SET
			storage_bytes       = EXCLUDED.storage_bytes,
			processed_documents = EXCLUDED.processed_documents,
			recomputed_at       = EXCLUDED.recomputed_at
		RETURNING org_id, storage_bytes, processed_documents, recomputed_at
	`

	var usage Usage
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&usage.OrgID, &usage.StorageBytes, &usage.ProcessedDocuments, &usage.RecomputedAt,
	)
	if err != nil {
		if s.metrics != nil {
			s.metrics.UsageRecomputeTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("failed to recompute usage: %w", err)
	}

	s.cache.Remove(orgID)
	s.cache.Add(orgID, &usage)
	if s.metrics != nil {
		s.metrics.UsageRecomputeTotal.WithLabelValues("success").Inc()
	}

	return &usage, nil
}

// InvalidateUsage drops the cached snapshot for an organization
func (s *PostgresService) InvalidateUsage(orgID string) {
	s.cache.Remove(orgID)
}
