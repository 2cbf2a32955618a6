package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"wasteops/internal/locks/repository"
	"wasteops/internal/locks/validator"
	"wasteops/pkg/config"
	apperrors "wasteops/pkg/errors"
	"wasteops/pkg/logger"
	"wasteops/pkg/metrics"
	"wasteops/pkg/model"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LockEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event model.LockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

func (p *recordingPublisher) last() model.LockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingRepository struct {
	repository.ResourceLockRepository
	err error
}

func (r *failingRepository) Reserve(context.Context, *model.ResourceLock, time.Time) (*model.ResourceLock, error) {
	return nil, r.err
}

func (r *failingRepository) Release(context.Context, model.LockKey) (*model.ResourceLock, error) {
	return nil, r.err
}

func (r *failingRepository) ListByDate(context.Context, string, time.Time) ([]*model.ResourceLock, []*model.ResourceLock, error) {
	return nil, nil, r.err
}

type fixture struct {
	svc       *lockService
	publisher *recordingPublisher
	clock     *fakeClock
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, ttl time.Duration, repo repository.ResourceLockRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = repository.NewMemoryResourceLockRepository()
	}
	log := logger.Discard()
	cfg := &config.Config{LockTTL: ttl, Log: log}
	pub := &recordingPublisher{}
	m := metrics.New()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}

	svc := NewLockService(repo, validator.NewLockValidator(log), pub, m, cfg).(*lockService)
	svc.now = clock.Now

	return &fixture{svc: svc, publisher: pub, clock: clock, metrics: m}
}

func vehicle(id int64) *model.LockRequest {
	return &model.LockRequest{Date: "2025-03-01", Type: "planning", ResourceType: model.ResourceVehicles, ID: id}
}

func employee(id int64) *model.LockRequest {
	return &model.LockRequest{Date: "2025-03-01", Type: "planning", ResourceType: model.ResourceEmployees, ID: id}
}

func TestReserve_ConflictReleaseReserve(t *testing.T) {
	f := newFixture(t, 10*time.Minute, nil)
	ctx := context.Background()

	lock, err := f.svc.Reserve(ctx, vehicle(42), "dispatcher-1")
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if lock.ReservedBy != "dispatcher-1" {
		t.Errorf("ReservedBy = %q", lock.ReservedBy)
	}
	if want := f.clock.Now().Add(10 * time.Minute); !lock.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", lock.ExpiresAt, want)
	}

	other := vehicle(42)
	other.Type = "tour-edit"
	_, err = f.svc.Reserve(ctx, other, "dispatcher-2")
	if !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Fatalf("second reserve: expected CONFLICT, got %v", err)
	}

	if err := f.svc.Release(ctx, vehicle(42)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.svc.Reserve(ctx, vehicle(42), "dispatcher-2"); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	want := []string{model.EventResourceReserved, model.EventResourceReleased, model.EventResourceReserved}
	if got := f.publisher.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	if got := testutil.ToFloat64(f.metrics.ReserveAttempts.WithLabelValues(model.ResourceVehicles, metrics.ResultConflict)); got != 1 {
		t.Errorf("conflict counter = %v, want 1", got)
	}
	if _, err := f.svc.SweepExpired(ctx); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveLocks.WithLabelValues(model.ResourceVehicles)); got != 1 {
		t.Errorf("active locks = %v, want 1", got)
	}
}

func TestReserve_SameIDDifferentKindIsIndependent(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, vehicle(7), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Reserve(ctx, employee(7), ""); err != nil {
		t.Fatalf("employee 7 should be independent of vehicle 7: %v", err)
	}
	nextDay := vehicle(7)
	nextDay.Date = "2025-03-02"
	if _, err := f.svc.Reserve(ctx, nextDay, ""); err != nil {
		t.Fatalf("vehicle 7 on another date should be independent: %v", err)
	}
}

func TestReserve_EventPayload(t *testing.T) {
	f := newFixture(t, time.Minute, nil)

	if _, err := f.svc.Reserve(context.Background(), employee(3), ""); err != nil {
		t.Fatal(err)
	}
	event := f.publisher.last()
	want := model.LockEventPayload{Date: "2025-03-01", Type: "planning", ResourceType: model.ResourceEmployees, ID: 3}
	if event.Payload != want {
		t.Errorf("payload = %+v, want %+v", event.Payload, want)
	}
	if event.Reason != "" {
		t.Errorf("reserved event should carry no reason, got %q", event.Reason)
	}
}

func TestExpiry_QueryAnnouncesOnce(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, nil)
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, vehicle(42), ""); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(150 * time.Millisecond)

	set, err := f.svc.Query(ctx, "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(set[model.ResourceVehicles]) != 0 {
		t.Errorf("expired reservation still listed: %v", set)
	}

	want := []string{model.EventResourceReserved, model.EventResourceReleased}
	if got := f.publisher.names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if reason := f.publisher.last().Reason; reason != model.ReleaseReasonExpired {
		t.Errorf("reason = %q, want expired", reason)
	}

	if _, err := f.svc.Query(ctx, "2025-03-01"); err != nil {
		t.Fatal(err)
	}
	if n, _ := f.svc.SweepExpired(ctx); n != 0 {
		t.Errorf("sweep after query found %d, want 0", n)
	}
	if got := len(f.publisher.names()); got != 2 {
		t.Errorf("expiry announced more than once, %d events", got)
	}

	if _, err := f.svc.Reserve(ctx, vehicle(42), ""); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
}

func TestExpiry_ReserveDisplacesExpiredHolder(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, vehicle(9), "a"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Second)

	if _, err := f.svc.Reserve(ctx, vehicle(9), "b"); err != nil {
		t.Fatalf("reserve over expired holder: %v", err)
	}

	want := []string{model.EventResourceReserved, model.EventResourceReleased, model.EventResourceReserved}
	if got := f.publisher.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()

	for _, req := range []*model.LockRequest{vehicle(1), vehicle(2), employee(3)} {
		if _, err := f.svc.Reserve(ctx, req, ""); err != nil {
			t.Fatal(err)
		}
	}
	f.clock.Advance(30 * time.Second)
	if _, err := f.svc.Reserve(ctx, employee(4), ""); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(31 * time.Second)

	n, err := f.svc.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("swept %d, want 3", n)
	}

	set, _ := f.svc.Query(ctx, "2025-03-01")
	if !reflect.DeepEqual(set[model.ResourceEmployees], []int64{4}) {
		t.Errorf("employees = %v, want [4]", set[model.ResourceEmployees])
	}
	if got := testutil.ToFloat64(f.metrics.Releases.WithLabelValues(model.ResourceVehicles, model.ReleaseReasonExpired)); got != 2 {
		t.Errorf("expired vehicle releases = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveLocks.WithLabelValues(model.ResourceEmployees)); got != 1 {
		t.Errorf("active employees = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveLocks.WithLabelValues(model.ResourceVehicles)); got != 0 {
		t.Errorf("active vehicles = %v, want 0", got)
	}
}

func TestRelease_AbsentTupleStillAnnounced(t *testing.T) {
	f := newFixture(t, time.Minute, nil)

	if err := f.svc.Release(context.Background(), employee(5)); err != nil {
		t.Fatalf("release of absent tuple: %v", err)
	}
	event := f.publisher.last()
	if event.Name != model.EventResourceReleased || event.Reason != model.ReleaseReasonExplicit {
		t.Errorf("event = %+v", event)
	}
	if got := testutil.ToFloat64(f.metrics.Releases.WithLabelValues(model.ResourceEmployees, model.ReleaseReasonExplicit)); got != 1 {
		t.Errorf("explicit releases = %v, want 1", got)
	}
}

func TestQuery_SortedAndAlwaysBothKinds(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()

	for _, id := range []int64{30, 4, 17} {
		if _, err := f.svc.Reserve(ctx, vehicle(id), ""); err != nil {
			t.Fatal(err)
		}
	}

	set, err := f.svc.Query(ctx, "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(set[model.ResourceVehicles], []int64{4, 17, 30}) {
		t.Errorf("vehicles = %v", set[model.ResourceVehicles])
	}
	employees, ok := set[model.ResourceEmployees]
	if !ok || employees == nil || len(employees) != 0 {
		t.Errorf("employees should be an empty list, got %#v", employees)
	}

	empty, err := f.svc.Query(ctx, "2030-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 2 {
		t.Errorf("expected both kinds for an empty date, got %v", empty)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		req       *model.LockRequest
		wantField string
	}{
		{"nil request", nil, ""},
		{"bad date", &model.LockRequest{Date: "01.03.2025", Type: "planning", ResourceType: "vehicles", ID: 1}, "date"},
		{"unknown kind", &model.LockRequest{Date: "2025-03-01", Type: "planning", ResourceType: "trailers", ID: 1}, "resourceType"},
		{"zero id", &model.LockRequest{Date: "2025-03-01", Type: "planning", ResourceType: "vehicles", ID: 0}, "id"},
		{"missing type", &model.LockRequest{Date: "2025-03-01", ResourceType: "vehicles", ID: 1}, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Minute, nil)
			for _, op := range []func() error{
				func() error { _, err := f.svc.Reserve(context.Background(), tt.req, ""); return err },
				func() error { return f.svc.Release(context.Background(), tt.req) },
			} {
				err := op()
				if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
					t.Fatalf("expected INVALID_INPUT, got %v", err)
				}
				if tt.wantField != "" {
					if _, ok := apperrors.AsAppError(err).Details[tt.wantField]; !ok {
						t.Errorf("details %v missing field %q", apperrors.AsAppError(err).Details, tt.wantField)
					}
				}
			}
			if n := len(f.publisher.names()); n != 0 {
				t.Errorf("invalid request published %d events", n)
			}
		})
	}
}

func TestReserve_SanitizesInput(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()

	messy := &model.LockRequest{Date: " 2025-03-01 ", Type: " daily  assignment ", ResourceType: " Vehicles ", ID: 42}
	lock, err := f.svc.Reserve(ctx, messy, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if lock.Key != "2025-03-01|vehicles|42" || lock.Type != "daily-assignment" {
		t.Errorf("lock = %+v", lock)
	}

	if _, err := f.svc.Reserve(ctx, vehicle(42), ""); !apperrors.IsCode(err, apperrors.CodeConflict) {
		t.Errorf("clean request for the same tuple should conflict, got %v", err)
	}
}

func TestQuery_InvalidDate(t *testing.T) {
	f := newFixture(t, time.Minute, nil)

	_, err := f.svc.Query(context.Background(), "2025-13-40")
	if !apperrors.IsCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestRepositoryFailureIsInternal(t *testing.T) {
	f := newFixture(t, time.Minute, &failingRepository{err: errors.New("connection reset")})
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, vehicle(1), ""); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Errorf("Reserve: expected INTERNAL_ERROR, got %v", err)
	}
	if err := f.svc.Release(ctx, vehicle(1)); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Errorf("Release: expected INTERNAL_ERROR, got %v", err)
	}
	if _, err := f.svc.Query(ctx, "2025-03-01"); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Errorf("Query: expected INTERNAL_ERROR, got %v", err)
	}
	if n := len(f.publisher.names()); n != 0 {
		t.Errorf("failed operations published %d events", n)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	f.publisher.err = errors.New("hub closed")

	if _, err := f.svc.Reserve(context.Background(), vehicle(1), ""); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	f := newFixture(t, time.Minute, nil)

	const workers = 32
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(context.Background(), vehicle(42), "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !apperrors.IsCode(err, apperrors.CodeConflict) {
			t.Errorf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("%d reservations succeeded, want 1", wins)
	}
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	if _, err := f.svc.Reserve(context.Background(), vehicle(1), ""); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.publisher.names()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	if got := f.publisher.names(); len(got) != 2 || got[1] != model.EventResourceReleased {
		t.Errorf("events = %v", got)
	}
}

// pausingRepository blocks the call named by pause right after it changed the
// registry. Once that call is in flight, every other call is reported on touched.
type pausingRepository struct {
	repository.ResourceLockRepository
	pause   string
	paused  chan struct{}
	resume  chan struct{}
	touched chan string
}

func newPausingRepository(pause string) *pausingRepository {
	return &pausingRepository{
		ResourceLockRepository: repository.NewMemoryResourceLockRepository(),
		pause:                  pause,
		paused:                 make(chan struct{}),
		resume:                 make(chan struct{}),
		touched:                make(chan string, 16),
	}
}

func (r *pausingRepository) hold(call string) {
	if call == r.pause {
		close(r.paused)
		<-r.resume
		return
	}
	select {
	case <-r.paused:
		r.touched <- call
	default:
	}
}

func (r *pausingRepository) Reserve(ctx context.Context, lock *model.ResourceLock, now time.Time) (*model.ResourceLock, error) {
	displaced, err := r.ResourceLockRepository.Reserve(ctx, lock, now)
	r.hold("reserve")
	return displaced, err
}

func (r *pausingRepository) Release(ctx context.Context, key model.LockKey) (*model.ResourceLock, error) {
	released, err := r.ResourceLockRepository.Release(ctx, key)
	r.hold("release")
	return released, err
}

func (r *pausingRepository) DeleteExpired(ctx context.Context, now time.Time) ([]*model.ResourceLock, error) {
	expired, err := r.ResourceLockRepository.DeleteExpired(ctx, now)
	r.hold("sweep")
	return expired, err
}

// expectUntouched fails if another registry call ran while the paused one
// had not yet published its events.
func expectUntouched(t *testing.T, repo *pausingRepository) {
	t.Helper()
	select {
	case call := <-repo.touched:
		t.Errorf("%s reached the registry before the paused change was announced", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventsFollowRegistryOrder_ReserveThenRelease(t *testing.T) {
	repo := newPausingRepository("reserve")
	f := newFixture(t, 10*time.Minute, repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := f.svc.Reserve(ctx, vehicle(42), "dispatcher-a"); err != nil {
			t.Errorf("reserve: %v", err)
		}
	}()
	<-repo.paused
	go func() {
		defer wg.Done()
		if err := f.svc.Release(ctx, vehicle(42)); err != nil {
			t.Errorf("release: %v", err)
		}
	}()

	expectUntouched(t, repo)
	close(repo.resume)
	wg.Wait()

	want := []string{model.EventResourceReserved, model.EventResourceReleased}
	if got := f.publisher.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	set, err := f.svc.Query(ctx, "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(set[model.ResourceVehicles]) != 0 {
		t.Errorf("registry still holds %v", set[model.ResourceVehicles])
	}
}

func TestEventsFollowRegistryOrder_SweepThenReserve(t *testing.T) {
	repo := newPausingRepository("sweep")
	f := newFixture(t, time.Minute, repo)
	ctx := context.Background()

	if _, err := f.svc.Reserve(ctx, vehicle(42), "dispatcher-a"); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(2 * time.Minute)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if n, err := f.svc.SweepExpired(ctx); err != nil || n != 1 {
			t.Errorf("sweep = %d, %v; want 1, nil", n, err)
		}
	}()
	<-repo.paused
	go func() {
		defer wg.Done()
		if _, err := f.svc.Reserve(ctx, vehicle(42), "dispatcher-b"); err != nil {
			t.Errorf("reserve: %v", err)
		}
	}()

	expectUntouched(t, repo)
	close(repo.resume)
	wg.Wait()

	want := []string{model.EventResourceReserved, model.EventResourceReleased, model.EventResourceReserved}
	if got := f.publisher.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	set, err := f.svc.Query(ctx, "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(set[model.ResourceVehicles], []int64{42}) {
		t.Errorf("vehicles = %v, want [42]", set[model.ResourceVehicles])
	}
}

func TestLastEventMatchesRegistry_ConcurrentReserveRelease(t *testing.T) {
	f := newFixture(t, 10*time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = f.svc.Reserve(ctx, vehicle(42), "dispatcher")
				return
			}
			_ = f.svc.Release(ctx, vehicle(42))
		}(i)
	}
	wg.Wait()

	set, err := f.svc.Query(ctx, "2025-03-01")
	if err != nil {
		t.Fatal(err)
	}
	want := model.EventResourceReleased
	if len(set[model.ResourceVehicles]) == 1 {
		want = model.EventResourceReserved
	}
	if got := f.publisher.last().Name; got != want {
		t.Errorf("last event = %s but registry holds %v", got, set[model.ResourceVehicles])
	}
}

func TestActiveLocksGauge_SharedRegistry(t *testing.T) {
	repo := repository.NewMemoryResourceLockRepository()
	a := newFixture(t, 10*time.Minute, repo)
	b := newFixture(t, 10*time.Minute, repo)
	ctx := context.Background()

	if _, err := a.svc.Reserve(ctx, vehicle(42), "dispatcher-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.svc.Reserve(ctx, vehicle(43), "dispatcher-a"); err != nil {
		t.Fatal(err)
	}
	if err := b.svc.Release(ctx, vehicle(42)); err != nil {
		t.Fatal(err)
	}

	for name, f := range map[string]*fixture{"a": a, "b": b} {
		if _, err := f.svc.SweepExpired(ctx); err != nil {
			t.Fatal(err)
		}
		if got := testutil.ToFloat64(f.metrics.ActiveLocks.WithLabelValues(model.ResourceVehicles)); got != 1 {
			t.Errorf("instance %s: active vehicles = %v, want 1", name, got)
		}
	}
}
