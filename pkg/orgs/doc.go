// Package orgs provides multi-tenant organization management: plan tiers,
// per-tier resource limits, the usage guard, and usage snapshot tracking.
//
// # Plan Tiers
//
// Free:
//   - 1 GB storage
//   - 1,000 processed documents
//
// Pro:
//   - 50 GB storage
//   - 100,000 processed documents
//
// Enterprise:
//   - 1 TB storage
//   - 5,000,000 processed documents
//
// Custom tiers get headroom limits and are adjusted per contract.
//
// # Usage Guard
//
// CheckUsage is a pure function comparing a usage snapshot against the plan's
// limit vector. Usage equal to a limit is allowed; any dimension strictly
// over its limit denies. Callers evaluate the guard before mutating state.
//
// # Usage Tracking
//
// Usage is never incremented in place. RecomputeUsage derives the snapshot
// from the remaining datasource rows and upserts it, which makes it safe to
// retry after deletions. GetUsage serves a short-TTL memoized view, so quota
// decisions can act on a snapshot up to 30 seconds stale.
package orgs
