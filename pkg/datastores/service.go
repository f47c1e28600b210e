package datastores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpushq/corpus/pkg/errdefs"
	"github.com/corpushq/corpus/pkg/lease"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/orgs"
	"github.com/corpushq/corpus/pkg/storage"
)

const datastoreColumns = `
	id, organization_id, name, description, visibility, status,
	created_at, updated_at`

// Service owns datastore records: CRUD, the aggregated datasource listing,
// cross-system deletion, and the orphan sweep.
type Service struct {
	primary *sql.DB
	replica *sql.DB
	objects storage.ObjectStore
	orgs    orgs.Service
	leases  *lease.Manager
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates a new datastore service. The replica handle serves the
// read-heavy listing path; pass the primary again when no replica exists.
func NewService(primary, replica *sql.DB, objects storage.ObjectStore, orgService orgs.Service, leases *lease.Manager, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if replica == nil {
		replica = primary
	}
	return &Service{
		primary: primary,
		replica: replica,
		objects: objects,
		orgs:    orgService,
		leases:  leases,
		logger:  logger,
		metrics: metrics,
	}
}

// Create inserts a new active datastore for an organization
func (s *Service) Create(ctx context.Context, orgID string, req *CreateRequest) (*Datastore, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &errdefs.ValidationError{Field: "name", Message: "must not be empty"}
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, &errdefs.ValidationError{Field: "visibility", Message: fmt.Sprintf("unknown visibility %q", visibility)}
	}

	if _, err := s.orgs.GetOrganization(ctx, orgID); err != nil {
		return nil, fmt.Errorf("failed to load organization: %w", err)
	}

	query := `
		INSERT INTO datastores (id, organization_id, name, description, visibility, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		RETURNING` + datastoreColumns

	store, err := scanDatastore(s.primary.QueryRowContext(ctx, query,
		uuid.New().String(), orgID, req.Name, req.Description, visibility,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore: %w", err)
	}

	return store, nil
}

// Get retrieves a datastore by ID
func (s *Service) Get(ctx context.Context, id string) (*Datastore, error) {
	return getDatastore(ctx, s.primary, id)
}

// Update applies a partial update to a datastore the caller's org owns
func (s *Service) Update(ctx context.Context, callerOrgID, id string, req *UpdateRequest) (*Datastore, error) {
	if req.Visibility != nil && !req.Visibility.Valid() {
		return nil, &errdefs.ValidationError{Field: "visibility", Message: fmt.Sprintf("unknown visibility %q", *req.Visibility)}
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, &errdefs.ValidationError{Field: "name", Message: "must not be empty"}
	}

	store, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if store.OrganizationID != callerOrgID {
		return nil, &errdefs.UnauthorizedError{Resource: "datastore", ID: id}
	}

	query := `
		UPDATE datastores
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    visibility = COALESCE($4, visibility),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING` + datastoreColumns

	updated, err := scanDatastore(s.primary.QueryRowContext(ctx, query,
		id, req.Name, req.Description, (*string)(req.Visibility),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "datastore", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update datastore: %w", err)
	}

	return updated, nil
}

// ListForOrg returns an organization's active datastores, newest first
func (s *Service) ListForOrg(ctx context.Context, orgID string) ([]*Datastore, error) {
	query := `SELECT` + datastoreColumns + `
		FROM datastores
		WHERE organization_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id`

	rows, err := s.replica.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datastores: %w", err)
	}
	defer rows.Close()

	var stores []*Datastore
	for rows.Next() {
		store, err := scanDatastore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan datastore: %w", err)
		}
		stores = append(stores, store)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datastores: %w", err)
	}

	return stores, nil
}

// PresignUpload returns a time-limited PUT URL for an organization-scoped
// upload key. Only image content types are accepted.
func (s *Service) PresignUpload(ctx context.Context, orgID, fileName, contentType string) (string, string, error) {
	if strings.TrimSpace(fileName) == "" {
		return "", "", &errdefs.ValidationError{Field: "file_name", Message: "must not be empty"}
	}
	if !allowedUploadTypes[contentType] {
		return "", "", &errdefs.ValidationError{Field: "type", Message: fmt.Sprintf("content type %q not allowed", contentType)}
	}

	key := fmt.Sprintf("organizations/%s/uploads/%s-%s", orgID, uuid.New().String(), fileName)
	url, err := s.objects.PresignPutObject(ctx, key, contentType, uploadLinkExpiry)
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}
	return url, key, nil
}

const uploadLinkExpiry = 900 * time.Second

var allowedUploadTypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/gif":     true,
	"image/webp":    true,
	"image/avif":    true,
	"image/apng":    true,
	"image/svg+xml": true,
}

func getDatastore(ctx context.Context, db *sql.DB, id string) (*Datastore, error) {
	query := `SELECT` + datastoreColumns + ` FROM datastores WHERE id = $1`

	store, err := scanDatastore(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &errdefs.NotFoundError{Resource: "datastore", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get datastore: %w", err)
	}

	return store, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDatastore(row rowScanner) (*Datastore, error) {
	var store Datastore
	err := row.Scan(
		&store.ID, &store.OrganizationID, &store.Name, &store.Description,
		&store.Visibility, &store.Status, &store.CreatedAt, &store.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &store, nil
}
