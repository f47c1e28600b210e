// Package postgres provides the concrete storage backends: a PostgreSQL
// connection manager with optional read replicas, an S3 client scoped to the
// datastores/ object tree, a Redis client for the ingestion queue and
// advisory leases, and the schema bootstrap for the core tables.
package postgres
