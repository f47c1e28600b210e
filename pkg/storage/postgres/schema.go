package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL for the core tables. Statuses and types are enforced
// with CHECK constraints rather than enums so new values ship without a
// migration lockstep.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		plan_tier  TEXT NOT NULL DEFAULT 'free'
			CHECK (plan_tier IN ('free', 'pro', 'enterprise', 'custom')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS org_usage (
		org_id              TEXT PRIMARY KEY REFERENCES organizations(id) ON DELETE CASCADE,
		storage_bytes       BIGINT NOT NULL DEFAULT 0,
		processed_documents BIGINT NOT NULL DEFAULT 0,
		recomputed_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS datastores (
		id              TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		visibility      TEXT NOT NULL DEFAULT 'private'
			CHECK (visibility IN ('private', 'public')),
		status          TEXT NOT NULL DEFAULT 'active'
			CHECK (status IN ('active', 'deleting')),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS datasources (
		id              TEXT PRIMARY KEY,
		datastore_id    TEXT NOT NULL REFERENCES datastores(id),
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		parent_id       TEXT NULL REFERENCES datasources(id),
		group_id        TEXT NULL,
		name            TEXT NOT NULL,
		type            TEXT NOT NULL
			CHECK (type IN ('file', 'web_page', 'web_site', 'api_feed')),
		status          TEXT NOT NULL DEFAULT 'unsynced'
			CHECK (status IN ('unsynced', 'pending', 'running', 'synced', 'error')),
		size_bytes      BIGINT NOT NULL DEFAULT 0,
		config          JSONB NOT NULL DEFAULT '{}',
		last_synched_at TIMESTAMPTZ NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_datasources_datastore ON datasources(datastore_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datasources_parent ON datasources(parent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datasources_org ON datasources(organization_id)`,
	`CREATE INDEX IF NOT EXISTS idx_datastores_org ON datastores(organization_id)`,
}

// InitSchema creates the core tables if they do not exist
func InitSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
