package datastores

import (
	"time"

	"github.com/corpushq/corpus/pkg/datasources"
)

// Visibility controls who can query a datastore's content
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Status tracks a datastore through its lifecycle. A datastore is active
// until deletion begins; 'deleting' is the durable marker written before any
// destructive work so an interrupted deletion can be finished by the
// reconciler.
type Status string

const (
	StatusActive   Status = "active"
	StatusDeleting Status = "deleting"
)

// Datastore is a named, organization-owned container of datasources
type Datastore struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Visibility     Visibility `json:"visibility"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreateRequest describes a new datastore
type CreateRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty"`
}

// UpdateRequest carries a partial datastore update; nil fields are untouched
type UpdateRequest struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Visibility  *Visibility `json:"visibility,omitempty"`
}

// ListRequest is the filter and pagination vector for ListDatasources.
// All filters combine with AND; zero values mean "no filter".
type ListRequest struct {
	Search  string             `json:"search,omitempty"`
	Status  datasources.Status `json:"status,omitempty"`
	Type    datasources.Type   `json:"type,omitempty"`
	GroupID string             `json:"group_id,omitempty"`
	Offset  int                `json:"offset"`
	Limit   int                `json:"limit"`
}

// DatasourceItem is a datasource row decorated for listing
type DatasourceItem struct {
	datasources.Datasource
	// HasActiveChildren reports whether any direct child is pending or
	// running, e.g. pages still being crawled under a web site source.
	HasActiveChildren bool `json:"has_active_children"`
}

// ListResponse is one page of a datastore's datasources
type ListResponse struct {
	Datastore  *Datastore       `json:"datastore"`
	Items      []DatasourceItem `json:"items"`
	TotalCount int              `json:"total_count"`
}

// DeletedSummary describes a completed datastore deletion
type DeletedSummary struct {
	ID                 string `json:"id"`
	OrganizationID     string `json:"organization_id"`
	Name               string `json:"name"`
	DatasourcesDeleted int64  `json:"datasources_deleted"`
	ObjectsDeleted     int    `json:"objects_deleted"`
}
