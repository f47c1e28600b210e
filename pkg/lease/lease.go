package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// AlreadyHeldError reports that another caller holds the lease
type AlreadyHeldError struct {
	Key string
}

func (e *AlreadyHeldError) Error() string {
	return fmt.Sprintf("lease already held: %s", e.Key)
}

// IsAlreadyHeld checks if an error is a lease contention error
func IsAlreadyHeld(err error) bool {
	var heldErr *AlreadyHeldError
	return errors.As(err, &heldErr)
}

// Lease is a held advisory lock. It expires on its own after the TTL, so a
// crashed holder cannot wedge an entity forever.
type Lease struct {
	manager *Manager
	key     string
	token   string
}

// Manager hands out per-entity advisory leases backed by Redis SETNX with a
// TTL. Best-effort mutual exclusion for state-changing operations on a given
// datasource or datastore; correctness does not depend on it, duplicate
// suppression does.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewManager creates a lease manager
func NewManager(client *redis.Client, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Manager{
		client: client,
		ttl:    ttl,
		prefix: "lease:",
	}
}

// Acquire takes the lease for a key, failing fast with *AlreadyHeldError if
// someone else holds it.
func (m *Manager) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.New().String()
	full := m.prefix + key

	ok, err := m.client.SetNX(ctx, full, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, &AlreadyHeldError{Key: key}
	}

	return &Lease{manager: m, key: full, token: token}, nil
}

// Release gives the lease back. Only the holder's token releases; a lease
// that already expired and was re-acquired by someone else is left alone.
func (l *Lease) Release(ctx context.Context) error {
	val, err := l.manager.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return nil // Already expired
	}
	if err != nil {
		return fmt.Errorf("failed to read lease %s: %w", l.key, err)
	}

	if val != l.token {
		return nil // Re-acquired by another holder after expiry
	}

	if err := l.manager.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}
