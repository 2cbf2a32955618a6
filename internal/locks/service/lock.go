package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lockserrors "wasteops/internal/locks/errors"
	"wasteops/internal/locks/events"
	"wasteops/internal/locks/repository"
	"wasteops/internal/locks/validator"
	"wasteops/pkg/config"
	apperrors "wasteops/pkg/errors"
	"wasteops/pkg/metrics"
	"wasteops/pkg/model"
	"wasteops/pkg/sanitizer"
)

type LockService interface {
	Reserve(ctx context.Context, req *model.LockRequest, reservedBy string) (*model.ResourceLock, error)
	Release(ctx context.Context, req *model.LockRequest) error
	Query(ctx context.Context, date string) (model.LockSet, error)
	SweepExpired(ctx context.Context) (int, error)
	RunSweeper(ctx context.Context, interval time.Duration)
}

// lockService holds mu from each registry change until its events are
// published, so subscribers of this instance see changes in registry order.
// Publishers are called with mu held and must not block.
type lockService struct {
	mu sync.Mutex

	repo      repository.ResourceLockRepository
	validator *validator.LockValidator
	publisher events.Publisher
	metrics   *metrics.Metrics
	cfg       *config.Config
	now       func() time.Time
}

func NewLockService(
	repo repository.ResourceLockRepository,
	validator *validator.LockValidator,
	publisher events.Publisher,
	metrics *metrics.Metrics,
	cfg *config.Config,
) LockService {
	return &lockService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (s *lockService) Reserve(ctx context.Context, req *model.LockRequest, reservedBy string) (*model.ResourceLock, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	lock := model.NewResourceLock(*req, reservedBy, now, s.cfg.LockTTL)

	displaced, err := s.repo.Reserve(ctx, lock, now)
	if err != nil {
		if errors.Is(err, lockserrors.ErrAlreadyReserved) {
			s.metrics.ObserveReserve(req.ResourceType, metrics.ResultConflict)
			return nil, apperrors.Conflict(fmt.Sprintf(
				"%s %d is already reserved for %s", singular(req.ResourceType), req.ID, req.Date,
			))
		}
		s.metrics.ObserveReserve(req.ResourceType, metrics.ResultError)
		s.cfg.Log.Error("Failed to reserve resource", "key", lock.Key, "error", err)
		return nil, apperrors.Internal("Failed to reserve resource", err)
	}

	if displaced != nil {
		s.announceExpired(ctx, now, displaced)
	}

	s.metrics.ObserveReserve(req.ResourceType, metrics.ResultReserved)
	s.cfg.Log.Info("Resource reserved",
		"key", lock.Key,
		"type", lock.Type,
		"reserved_by", reservedBy,
		"expires_at", lock.ExpiresAt,
	)
	s.publish(ctx, model.NewLockEvent(model.EventResourceReserved, lock, "", now))

	return lock, nil
}

// Release removes the reservation if present. The release event is emitted
// either way so subscribers can clear stale state.
func (s *lockService) Release(ctx context.Context, req *model.LockRequest) error {
	if err := s.validate(req); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	released, err := s.repo.Release(ctx, req.Key())
	if err != nil {
		s.cfg.Log.Error("Failed to release resource", "key", req.Key().String(), "error", err)
		return apperrors.Internal("Failed to release resource", err)
	}

	now := s.now()
	s.metrics.ObserveRelease(req.ResourceType, model.ReleaseReasonExplicit)
	s.cfg.Log.Info("Resource released", "key", req.Key().String(), "was_held", released != nil)

	announced := &model.ResourceLock{
		Date:         req.Date,
		Type:         req.Type,
		ResourceType: req.ResourceType,
		ResourceID:   req.ID,
	}
	s.publish(ctx, model.NewLockEvent(model.EventResourceReleased, announced, model.ReleaseReasonExplicit, now))

	return nil
}

func (s *lockService) Query(ctx context.Context, date string) (model.LockSet, error) {
	date = sanitizer.SanitizeDate(date)
	if err := s.validator.ValidateDate(date); err != nil {
		return nil, invalidInput("Invalid date", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	active, expired, err := s.repo.ListByDate(ctx, date, now)
	if err != nil {
		s.cfg.Log.Error("Failed to query reservations", "date", date, "error", err)
		return nil, apperrors.Internal("Failed to query reservations", err)
	}

	s.announceExpired(ctx, now, expired...)

	set := model.NewLockSet()
	for _, lock := range active {
		if _, ok := set[lock.ResourceType]; !ok {
			continue
		}
		set[lock.ResourceType] = append(set[lock.ResourceType], lock.ResourceID)
	}
	for _, ids := range set {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return set, nil
}

func (s *lockService) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expired, err := s.repo.DeleteExpired(ctx, now)
	s.announceExpired(ctx, now, expired...)
	if err != nil {
		return len(expired), fmt.Errorf("failed to sweep expired reservations: %w", err)
	}
	s.refreshActiveLocks(ctx, now)
	return len(expired), nil
}

func (s *lockService) refreshActiveLocks(ctx context.Context, now time.Time) {
	if s.metrics == nil {
		return
	}
	counts, err := s.repo.CountActive(ctx, now)
	if err != nil {
		s.cfg.Log.Warn("Failed to count active reservations", "error", err)
		return
	}
	for _, kind := range model.ResourceKinds {
		s.metrics.SetActiveLocks(kind, counts[kind])
	}
}

// RunSweeper removes expired reservations every interval until ctx is cancelled.
func (s *lockService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.cfg.Log.Info("Expired reservation sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.cfg.Log.Info("Expired reservation sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.SweepExpired(ctx)
			if err != nil && ctx.Err() == nil {
				s.cfg.Log.Warn("Expired reservation sweep failed", "error", err)
			}
			if n > 0 {
				s.cfg.Log.Debug("Swept expired reservations", "count", n)
			}
		}
	}
}

func (s *lockService) announceExpired(ctx context.Context, now time.Time, locks ...*model.ResourceLock) {
	for _, lock := range locks {
		s.metrics.ObserveRelease(lock.ResourceType, model.ReleaseReasonExpired)
		s.cfg.Log.Info("Reservation expired", "key", lock.Key, "expired_at", lock.ExpiresAt)
		s.publish(ctx, model.NewLockEvent(model.EventResourceReleased, lock, model.ReleaseReasonExpired, now))
	}
}

func (s *lockService) publish(ctx context.Context, event model.LockEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish lock event",
			"event", event.Name,
			"resource_type", event.Payload.ResourceType,
			"id", event.Payload.ID,
			"error", err,
		)
	}
}

func (s *lockService) sanitize(req *model.LockRequest) {
	req.Date = sanitizer.SanitizeDate(req.Date)
	req.Type = sanitizer.SanitizeLabel(req.Type)
	req.ResourceType = sanitizer.SanitizeKind(req.ResourceType)
}

func (s *lockService) validate(req *model.LockRequest) error {
	if req == nil {
		return apperrors.InvalidInput("Request body is required")
	}
	s.sanitize(req)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Lock request validation failed", "error", err)
		return invalidInput("Invalid lock request", err)
	}
	return nil
}

func invalidInput(message string, err error) error {
	appErr := apperrors.InvalidInput(message)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return appErr.WithDetails(fieldErrs.Fields())
	}
	return appErr.WithDetails(map[string]any{"error": err.Error()})
}

func singular(resourceType string) string {
	switch resourceType {
	case model.ResourceEmployees:
		return "Employee"
	case model.ResourceVehicles:
		return "Vehicle"
	default:
		return resourceType
	}
}
