package datastores

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/corpushq/corpus/pkg/errdefs"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

// ListDatasources returns one page of a datastore's datasources with filters
// applied, plus the total count under the same predicate.
//
// Filters combine with AND. Without a group filter only top-level rows
// (group_id IS NULL) are listed and counted; passing a group ID lists that
// group's members instead. Ordering is most recently synched first with
// never-synched rows last, ID as the tiebreaker, so pagination is stable
// while syncs complete in between pages. Reads go to the replica; a stale
// listing is acceptable, a wedged one is not.
func (s *Service) ListDatasources(ctx context.Context, callerOrgID, datastoreID string, req *ListRequest) (*ListResponse, error) {
	if req.Offset < 0 {
		return nil, &errdefs.ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if req.Limit < 0 {
		return nil, &errdefs.ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, &errdefs.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", req.Status)}
	}
	if req.Type != "" && !req.Type.Valid() {
		return nil, &errdefs.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", req.Type)}
	}

	limit := req.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	store, err := getDatastore(ctx, s.replica, datastoreID)
	if err != nil {
		return nil, err
	}
	if store.OrganizationID != callerOrgID {
		return nil, &errdefs.UnauthorizedError{Resource: "datastore", ID: datastoreID}
	}

	where, args := buildDatasourceFilter(datastoreID, req)

	countQuery := `SELECT COUNT(*) FROM datasources d ` + where
	var total int
	if err := s.replica.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count datasources: %w", err)
	}

	// Presence-only child probe: EXISTS short-circuits on the first active
	// child instead of counting them all
	pageQuery := `
		SELECT d.id, d.datastore_id, d.organization_id, d.parent_id, d.group_id,
		       d.name, d.type, d.status, d.size_bytes, d.config,
		       d.last_synched_at, d.created_at, d.updated_at,
		       EXISTS (
		           SELECT 1 FROM datasources c
		           WHERE c.parent_id = d.id AND c.status IN ('pending', 'running')
		       ) AS has_active_children
		FROM datasources d ` + where + `
		ORDER BY d.last_synched_at DESC NULLS LAST, d.id
		LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)

	pageArgs := append(args, limit, req.Offset*limit)

	rows, err := s.replica.QueryContext(ctx, pageQuery, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasources: %w", err)
	}
	defer rows.Close()

	items := []DatasourceItem{}
	for rows.Next() {
		var item DatasourceItem
		err := rows.Scan(
			&item.ID, &item.DatastoreID, &item.OrganizationID, &item.ParentID, &item.GroupID,
			&item.Name, &item.Type, &item.Status, &item.SizeBytes, &item.Config,
			&item.LastSynchedAt, &item.CreatedAt, &item.UpdatedAt,
			&item.HasActiveChildren,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan datasource: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate datasources: %w", err)
	}

	return &ListResponse{
		Datastore:  store,
		Items:      items,
		TotalCount: total,
	}, nil
}

// buildDatasourceFilter renders the WHERE clause shared by the page and
// count queries; both must see the identical predicate or the total lies.
func buildDatasourceFilter(datastoreID string, req *ListRequest) (string, []interface{}) {
	clauses := []string{"d.datastore_id = $1"}
	args := []interface{}{datastoreID}

	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		clauses = append(clauses, fmt.Sprintf("d.name ILIKE $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, string(req.Status))
		clauses = append(clauses, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if req.Type != "" {
		args = append(args, string(req.Type))
		clauses = append(clauses, fmt.Sprintf("d.type = $%d", len(args)))
	}
	// The group clause is always present. The default listing shows only
	// top-level rows; grouped children (crawl pages and the like) appear
	// when their group is asked for.
	if req.GroupID != "" {
		args = append(args, req.GroupID)
		clauses = append(clauses, fmt.Sprintf("d.group_id = $%d", len(args)))
	} else {
		clauses = append(clauses, "d.group_id IS NULL")
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}
