package orgs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PlanTier represents subscription plan tiers
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
	PlanCustom     PlanTier = "custom"
)

// Organization represents a tenant that owns datastores and datasources
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlanTier  PlanTier  `json:"plan_tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanLimits is the limit vector for a plan tier. Every tracked usage
// dimension has an independent threshold.
type PlanLimits struct {
	MaxStorageBytes       int64 `json:"max_storage_bytes"`
	MaxProcessedDocuments int64 `json:"max_processed_documents"`
}

// Usage is a recomputed snapshot of an organization's resource consumption.
// It is derived from the source-of-truth rows, never incrementally mutated,
// and may be stale by the time a caller acts on it.
type Usage struct {
	OrgID              string    `json:"org_id"`
	StorageBytes       int64     `json:"storage_bytes"`
	ProcessedDocuments int64     `json:"processed_documents"`
	RecomputedAt       time.Time `json:"recomputed_at"`
}

// ErrOrganizationNotFound is returned when the referenced organization is absent
var ErrOrganizationNotFound = errors.New("organization not found")

// QuotaExceededError reports a usage dimension over its plan limit
type QuotaExceededError struct {
	Dimension string
	Current   int64
	Limit     int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d > %d", e.Dimension, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// UsageReader reads usage snapshots for quota decisions
type UsageReader interface {
	GetUsage(ctx context.Context, orgID string) (*Usage, error)
}

// UsageRecomputer recomputes usage from remaining source-of-truth rows.
// Recomputation is idempotent and safe to retry.
type UsageRecomputer interface {
	RecomputeUsage(ctx context.Context, orgID string) (*Usage, error)
}

// Service defines organization management operations
type Service interface {
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	UsageReader
	UsageRecomputer
}
