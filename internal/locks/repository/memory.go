package repository

import (
	"context"
	"sync"
	"time"

	lockserrors "wasteops/internal/locks/errors"
	"wasteops/pkg/model"
)

// memoryResourceLockRepository keeps locks in process memory. All state is
// lost on restart and nothing is shared between instances.
type memoryResourceLockRepository struct {
	mu     sync.Mutex
	locks  map[string]*model.ResourceLock
	byDate map[string]map[string]struct{}
}

func NewMemoryResourceLockRepository() ResourceLockRepository {
	return &memoryResourceLockRepository{
		locks:  make(map[string]*model.ResourceLock),
		byDate: make(map[string]map[string]struct{}),
	}
}

func (r *memoryResourceLockRepository) Reserve(_ context.Context, lock *model.ResourceLock, now time.Time) (*model.ResourceLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced *model.ResourceLock
	if existing, ok := r.locks[lock.Key]; ok {
		if !existing.Expired(now) {
			return nil, lockserrors.ErrAlreadyReserved
		}
		displaced = existing
		r.remove(existing)
	}

	stored := *lock
	r.locks[lock.Key] = &stored
	dateIdx, ok := r.byDate[lock.Date]
	if !ok {
		dateIdx = make(map[string]struct{})
		r.byDate[lock.Date] = dateIdx
	}
	dateIdx[lock.Key] = struct{}{}

	return displaced, nil
}

func (r *memoryResourceLockRepository) Release(_ context.Context, key model.LockKey) (*model.ResourceLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.locks[key.String()]
	if !ok {
		return nil, nil
	}
	r.remove(existing)
	return existing, nil
}

func (r *memoryResourceLockRepository) ListByDate(_ context.Context, date string, now time.Time) ([]*model.ResourceLock, []*model.ResourceLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var active, expired []*model.ResourceLock
	for key := range r.byDate[date] {
		lock := r.locks[key]
		if lock.Expired(now) {
			expired = append(expired, lock)
			continue
		}
		copied := *lock
		active = append(active, &copied)
	}
	for _, lock := range expired {
		r.remove(lock)
	}
	return active, expired, nil
}

func (r *memoryResourceLockRepository) DeleteExpired(_ context.Context, now time.Time) ([]*model.ResourceLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*model.ResourceLock
	for _, lock := range r.locks {
		if lock.Expired(now) {
			expired = append(expired, lock)
		}
	}
	for _, lock := range expired {
		r.remove(lock)
	}
	return expired, nil
}

func (r *memoryResourceLockRepository) CountActive(_ context.Context, now time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int)
	for _, lock := range r.locks {
		if !lock.Expired(now) {
			counts[lock.ResourceType]++
		}
	}
	return counts, nil
}

// remove must be called with mu held.
func (r *memoryResourceLockRepository) remove(lock *model.ResourceLock) {
	delete(r.locks, lock.Key)
	if dateIdx, ok := r.byDate[lock.Date]; ok {
		delete(dateIdx, lock.Key)
		if len(dateIdx) == 0 {
			delete(r.byDate, lock.Date)
		}
	}
}
