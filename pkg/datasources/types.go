package datasources

import (
	"encoding/json"
	"time"
)

// Status is a datasource's synchronization state.
//
// Lifecycle: unsynced -> pending -> running -> {synced, error}. Both synced
// and error re-enter pending on a new trigger. Transitions to running,
// synced, and error are written by the external ingestion pipeline and must
// be tolerated concurrently.
type Status string

const (
	StatusUnsynced Status = "unsynced"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSynced   Status = "synced"
	StatusError    Status = "error"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusUnsynced, StatusPending, StatusRunning, StatusSynced, StatusError:
		return true
	}
	return false
}

// Active reports whether the datasource is queued or being processed
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Type identifies what kind of content a datasource ingests
type Type string

const (
	TypeFile    Type = "file"
	TypeWebPage Type = "web_page"
	TypeWebSite Type = "web_site"
	TypeAPIFeed Type = "api_feed"
)

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	switch t {
	case TypeFile, TypeWebPage, TypeWebSite, TypeAPIFeed:
		return true
	}
	return false
}

// Datasource is one ingestible content source. The organization ID is
// denormalized from the owning datastore and never changes after creation.
// ParentID links hierarchical sources, e.g. pages discovered by a crawl.
type Datasource struct {
	ID             string          `json:"id"`
	DatastoreID    string          `json:"datastore_id"`
	OrganizationID string          `json:"organization_id"`
	ParentID       *string         `json:"parent_id,omitempty"`
	GroupID        *string         `json:"group_id,omitempty"`
	Name           string          `json:"name"`
	Type           Type            `json:"type"`
	Status         Status          `json:"status"`
	SizeBytes      int64           `json:"size_bytes"`
	Config         json.RawMessage `json:"config,omitempty"`
	LastSynchedAt  *time.Time      `json:"last_synched_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateRequest describes a new datasource
type CreateRequest struct {
	DatastoreID string          `json:"datastore_id"`
	Name        string          `json:"name"`
	Type        Type            `json:"type"`
	ParentID    *string         `json:"parent_id,omitempty"`
	GroupID     *string         `json:"group_id,omitempty"`
	SizeBytes   int64           `json:"size_bytes,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
}
