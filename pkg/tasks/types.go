package tasks

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPriority is the priority assigned to manually triggered syncs.
// Lower values are more urgent.
const DefaultPriority = 2

// SyncTask instructs the ingestion pipeline to (re)process a datasource.
// The wire format is the queue contract: one JSON message per task,
// at-least-once delivery assumed by the consumer.
type SyncTask struct {
	OrganizationID string `json:"organizationId"`
	DatasourceID   string `json:"datasourceId"`
	Priority       int    `json:"priority"`
}

// Validate rejects malformed tasks before they reach the queue
func (t SyncTask) Validate() error {
	if t.OrganizationID == "" {
		return fmt.Errorf("sync task missing organization id")
	}
	if t.DatasourceID == "" {
		return fmt.Errorf("sync task missing datasource id")
	}
	return nil
}

// DispatchFailedError reports a failure to enqueue tasks. It is distinct
// from quota denial: the caller's status mutation has already happened, so
// the datasource is left pending and the dispatch may be retried.
type DispatchFailedError struct {
	Queue string
	Err   error
}

func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("failed to dispatch to queue %s: %v", e.Queue, e.Err)
}

func (e *DispatchFailedError) Unwrap() error {
	return e.Err
}

// IsDispatchFailed checks if an error is a dispatch failure
func IsDispatchFailed(err error) bool {
	var dispatchErr *DispatchFailedError
	return errors.As(err, &dispatchErr)
}

// Dispatcher emits sync tasks to the external ingestion queue.
// Fire-and-forget from the caller's perspective: the core never waits for
// ingestion completion, but delivery to the queue must be at-least-once.
type Dispatcher interface {
	Dispatch(ctx context.Context, tasks []SyncTask) error
}
