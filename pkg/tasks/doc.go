// Package tasks defines the sync task queue contract and the Redis-backed
// dispatcher that feeds the external ingestion pipeline.
//
// Each triggered sync produces one message on the load-datasource list:
//
//	{"organizationId": "...", "datasourceId": "...", "priority": 2}
//
// Delivery is at-least-once: pushes are retried, and a caller retrying a
// failed dispatch can duplicate a message. Consumers deduplicate. Priority
// is an opaque hint carried verbatim; the reference consumer treats lower
// values as more urgent.
package tasks
