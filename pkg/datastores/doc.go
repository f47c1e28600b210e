// Package datastores owns datastore records and the operations spanning
// them: the aggregated datasource listing, cross-system deletion over
// PostgreSQL and the object store, the reconciliation sweep, and the HTTP
// API surface.
//
// Deletion is the delicate part. The relational side is transactional; the
// object side is not, so the two can diverge when one fails. A durable
// 'deleting' marker written before any destructive work plus the periodic
// sweep make every divergence converge toward fully deleted.
package datastores
