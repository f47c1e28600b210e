package datasources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/corpushq/corpus/pkg/errdefs"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/tasks"
)

const datasourceColumns = `
	id, datastore_id, organization_id, parent_id, group_id, name, type,
	status, size_bytes, config, last_synched_at, created_at, updated_at`

// Service owns datasource records and their status state machine.
type Service struct {
	db         *sql.DB
	orgs       orgs.Service
	dispatcher tasks.Dispatcher
	leases     *lease.Manager
	metrics    *observability.Metrics
}

// NewService creates a new datasource service
func NewService(db *sql.DB, orgService orgs.Service, dispatcher tasks.Dispatcher, leases *lease.Manager, metrics *observability.Metrics) *Service {
	return &Service{
		db:         db,
		orgs:       orgService,
		dispatcher: dispatcher,
		leases:     leases,
		metrics:    metrics,
	}
}

// TriggerSync moves a datasource to pending and dispatches exactly one sync
// task for it.
//
// The status write is unconditional: triggering a datasource that is already
// pending or running re-queues it (force resync). The per-datasource lease
// suppresses concurrent duplicate triggers; the queue consumer still has to
// deduplicate because dispatch is at-least-once.
//
// No mutation happens if the usage guard denies. If dispatch fails after the
// status write, the datasource is left pending and the caller may retry the
// trigger; that inconsistency window is recoverable.
func (s *Service) TriggerSync(ctx context.Context, callerOrgID, datasourceID string, priority int) (*Datasource, error) {
	if datasourceID == "" {
		return nil, &errdefs.ValidationError{Field: "datasource_id", Message: "must not be empty"}
	}

	held, err := s.leases.Acquire(ctx, "datasource:"+datasourceID)
	if err != nil {
		s.countTrigger("conflict")
		return nil, err
	}
	defer held.Release(ctx)

	ds, err := s.Get(ctx, datasourceID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			s.countTrigger("not_found")
		}
		return nil, err
	}

	if ds.OrganizationID != callerOrgID {
		s.countTrigger("unauthorized")
		return nil, &errdefs.UnauthorizedError{Resource: "datasource", ID: datasourceID}
	}

	org, err := s.orgs.GetOrganization(ctx, ds.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	usage, err := s.orgs.GetUsage(ctx, ds.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	// Guard first: nothing below runs on a denial
	if err := orgs.CheckUsage(usage, orgs.DefaultLimits(org.PlanTier)); err != nil {
		s.countTrigger("quota_exceeded")
		if s.metrics != nil {
			var quotaErr *orgs.QuotaExceededError
			if errors.As(err, &quotaErr) {
				s.metrics.QuotaDenialsTotal.WithLabelValues(quotaErr.Dimension).Inc()
			}
		}
		return nil, err
	}

	updated, err := s.setPending(ctx, datasourceID)
	if err != nil {
		return nil, err
	}

	task := tasks.SyncTask{
		OrganizationID: ds.OrganizationID,
		DatasourceID:   ds.ID,
		Priority:       priority,
	}
	if err := s.dispatcher.Dispatch(ctx, []tasks.SyncTask{task}); err != nil {
		// Status is already pending; surface the dispatch failure so the
		// caller can retry the trigger.
		s.countTrigger("dispatch_failed")
		return nil, err
	}

	s.countTrigger("success")
	return updated, nil
}

// Get retrieves a datasource by ID
func (s *Service) Get(ctx context.Context, id string) (*Datasource, error) {
	query := `SELECT` + datasourceColumns + ` FROM datasources WHERE id = $1`

	ds, err := scanDatasource(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "datasource", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get datasource: %w", err)
	}

	return ds, nil
}

// Create inserts a new unsynced datasource under a datastore. The
// organization ID is copied from the owning datastore and never changes
// afterwards, so the denormalized column stays consistent.
func (s *Service) Create(ctx context.Context, callerOrgID string, req *CreateRequest) (*Datasource, error) {
	if req.DatastoreID == "" {
		return nil, &errdefs.ValidationError{Field: "datastore_id", Message: "must not be empty"}
	}
	if req.Name == "" {
		return nil, &errdefs.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !req.Type.Valid() {
		return nil, &errdefs.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", req.Type)}
	}

	var ownerOrgID string
	err := s.db.QueryRowContext(ctx,
		`SELECT organization_id FROM datastores WHERE id = $1 AND status = 'active'`,
		req.DatastoreID,
	).Scan(&ownerOrgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "datastore", ID: req.DatastoreID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load datastore: %w", err)
	}
	if ownerOrgID != callerOrgID {
		return nil, &errdefs.UnauthorizedError{Resource: "datastore", ID: req.DatastoreID}
	}

	config := req.Config
	if len(config) == 0 {
		config = []byte("{}")
	}

	query := `
		INSERT INTO datasources (
			id, datastore_id, organization_id, parent_id, group_id,
			name, type, status, size_bytes, config
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'unsynced', $8, $9)
		RETURNING` + datasourceColumns

	ds, err := scanDatasource(s.db.QueryRowContext(ctx, query,
		uuid.New().String(), req.DatastoreID, ownerOrgID, req.ParentID, req.GroupID,
		req.Name, req.Type, req.SizeBytes, config,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create datasource: %w", err)
	}

	return ds, nil
}

func (s *Service) setPending(ctx context.Context, id string) (*Datasource, error) {
	query := `
		UPDATE datasources
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1
		RETURNING` + datasourceColumns

	ds, err := scanDatasource(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "datasource", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark datasource pending: %w", err)
	}

	return ds, nil
}

func (s *Service) countTrigger(outcome string) {
	if s.metrics != nil {
		s.metrics.SyncTriggersTotal.WithLabelValues(outcome).Inc()
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDatasource(row rowScanner) (*Datasource, error) {
	var ds Datasource
	err := row.Scan(
		&ds.ID, &ds.DatastoreID, &ds.OrganizationID, &ds.ParentID, &ds.GroupID,
		&ds.Name, &ds.Type, &ds.Status, &ds.SizeBytes, &ds.Config,
		&ds.LastSynchedAt, &ds.CreatedAt, &ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}
