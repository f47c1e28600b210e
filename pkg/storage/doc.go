// Package storage defines backend configuration and the object storage
// interface shared by the services.
//
// The concrete implementations live in the postgres subpackage: a PostgreSQL
// connection manager (primary plus optional read replicas), an S3 client for
// the datastores/{id}/ object tree, and a Redis client backing the ingestion
// queue and advisory leases.
package storage
