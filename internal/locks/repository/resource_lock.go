package repository

import (
	"context"
	"time"

	"wasteops/pkg/model"
)

// ResourceLockRepository stores reservations. Implementations must make
// Reserve an atomic check-and-set on the lock key.
type ResourceLockRepository interface {
	// Reserve stores lock unless an unexpired lock holds the same key, in which
	// case it returns ErrAlreadyReserved. An expired lock displaced by the insert
	// is returned so the caller can announce its release.
	Reserve(ctx context.Context, lock *model.ResourceLock, now time.Time) (*model.ResourceLock, error)

	// Release deletes the lock for key and returns it, or nil if none was held.
	Release(ctx context.Context, key model.LockKey) (*model.ResourceLock, error)

	// ListByDate returns the active locks for date and removes the expired ones,
	// returning those separately. An expired lock is returned by at most one call.
	ListByDate(ctx context.Context, date string, now time.Time) (active []*model.ResourceLock, expired []*model.ResourceLock, err error)

	// DeleteExpired removes every lock expired at now and returns what it removed.
	DeleteExpired(ctx context.Context, now time.Time) ([]*model.ResourceLock, error)

	// CountActive returns the number of unexpired locks per resource kind.
	CountActive(ctx context.Context, now time.Time) (map[string]int, error)
}
