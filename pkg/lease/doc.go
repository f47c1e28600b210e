// Package lease provides TTL-bounded advisory locks keyed by entity ID.
//
// Triggering a sync and deleting a datastore both take a lease on the target
// entity first, which suppresses duplicate concurrent work without
// introducing a global lock. The TTL guarantees progress if a holder dies.
package lease
