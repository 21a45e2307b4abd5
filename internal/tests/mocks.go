// Package tests holds lifecycle scenarios that run the services against
// in-memory collaborators, and the mocks shared with handler tests.
package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"syncway/internal/domain"
	"syncway/internal/email"
	"syncway/internal/redis"
	"syncway/internal/repository"
	"syncway/internal/service"
)

// ──────────────────────────────────────────────
// MOCK RIDE REPOSITORY
// ──────────────────────────────────────────────

// MockRideRepository is an in-memory RideRepository. CompareAndUpdate holds
// the mutex across compare and write, like a conditional UPDATE.
type MockRideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride

	// Counters for verification
	CreateCallCount           int32
	CompareAndUpdateCallCount int32
	SuccessfulUpdateCount     int32

	// Error injection
	CreateError error
	GetError    error
	UpdateError error
	ListError   error

	// ListHook runs after ListByStatus has read its rows and before it returns.
	ListHook func()
}

// NewMockRideRepository creates a new mock ride repository.
func NewMockRideRepository() *MockRideRepository {
	return &MockRideRepository{rides: make(map[string]*domain.Ride)}
}

// AddRide adds a ride to the mock repository.
func (m *MockRideRepository) AddRide(ride *domain.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride.Clone()
}

func (m *MockRideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[ride.ID] = ride.Clone()
	return nil
}

func (m *MockRideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride.Clone(), nil
}

func (m *MockRideRepository) CompareAndUpdate(ctx context.Context, id string, pre repository.Precondition, mut repository.Mutation) (*domain.Ride, error) {
	atomic.AddInt32(&m.CompareAndUpdateCallCount, 1)
	if m.UpdateError != nil {
		return nil, m.UpdateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if ride.Status != pre.Status {
		return nil, repository.ErrPreconditionFailed
	}
	if pre.DriverID != "" && ride.ClaimedBy() != pre.DriverID {
		return nil, repository.ErrPreconditionFailed
	}

	ride.Status = mut.Status
	ride.Claim = nil
	if mut.Claim != nil {
		c := *mut.Claim
		ride.Claim = &c
	}
	atomic.AddInt32(&m.SuccessfulUpdateCount, 1)
	return ride.Clone(), nil
}

func (m *MockRideRepository) ListByStatus(ctx context.Context, status domain.RideStatus) ([]*domain.Ride, error) {
	rides, err := m.filter(func(r *domain.Ride) bool { return r.Status == status })
	if err == nil && m.ListHook != nil {
		m.ListHook()
	}
	return rides, err
}

func (m *MockRideRepository) ListByRequester(ctx context.Context, requesterID string) ([]*domain.Ride, error) {
	return m.filter(func(r *domain.Ride) bool { return r.Requester.ID == requesterID })
}

func (m *MockRideRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Ride, error) {
	return m.filter(func(r *domain.Ride) bool { return r.ClaimedBy() == driverID })
}

func (m *MockRideRepository) filter(keep func(*domain.Ride) bool) ([]*domain.Ride, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.Ride{}
	for _, r := range m.rides {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// GetRide returns the ride by ID (for test assertions).
func (m *MockRideRepository) GetRide(id string) *domain.Ride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rides[id].Clone()
}

// CountRides returns the number of rides.
func (m *MockRideRepository) CountRides() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is an in-memory UserRepository keyed by id.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	CreateCallCount int32

	GetError error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

// AddUser adds a user to the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.ID] = &u
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	atomic.AddInt32(&m.CreateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Phone == user.Phone {
			return repository.ErrDuplicate
		}
	}
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.User{}
	for _, u := range m.users {
		if u.AccountActive {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) SetEmailNotifications(ctx context.Context, id string, enabled bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.AccountActive {
		return nil, repository.ErrNotFound
	}
	u.EmailNotifications = enabled
	cp := *u
	return &cp, nil
}

func (m *MockUserRepository) Deactivate(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.AccountActive {
		return repository.ErrNotFound
	}
	u.AccountActive = false
	u.EmailNotifications = false
	return nil
}

func (m *MockUserRepository) ListNotifiableDrivers(ctx context.Context, ids []string) ([]*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*domain.User{}
	for _, id := range ids {
		u, ok := m.users[id]
		if ok && u.Role == domain.UserRoleDriver && u.AcceptsEmail() {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK PRESENCE STORE
// ──────────────────────────────────────────────

// MockPresenceStore tracks online users in a set. Entries never expire.
type MockPresenceStore struct {
	mu     sync.Mutex
	online map[string]struct{}

	Err error
}

// NewMockPresenceStore creates a new mock presence store.
func NewMockPresenceStore() *MockPresenceStore {
	return &MockPresenceStore{online: make(map[string]struct{})}
}

// MarkOnline puts userID in the online set.
func (m *MockPresenceStore) MarkOnline(ctx context.Context, userID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID] = struct{}{}
	return nil
}

func (m *MockPresenceStore) MarkOffline(ctx context.Context, userID string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userID)
	return nil
}

func (m *MockPresenceStore) OnlineUserIDs(ctx context.Context) ([]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.online))
	for id := range m.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockPresenceStore) Count(ctx context.Context) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.online)), nil
}

// ──────────────────────────────────────────────
// MOCK DIRECTORY
// ──────────────────────────────────────────────

// MockDirectory returns a fixed set of online drivers.
type MockDirectory struct {
	mu      sync.Mutex
	drivers []*domain.User

	CallCount int32
	Err       error
}

// NewMockDirectory creates a directory reporting drivers as online.
func NewMockDirectory(drivers ...*domain.User) *MockDirectory {
	return &MockDirectory{drivers: drivers}
}

func (m *MockDirectory) ListOnlineNotifiableDrivers(ctx context.Context) ([]*domain.User, error) {
	atomic.AddInt32(&m.CallCount, 1)
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.User, len(m.drivers))
	copy(out, m.drivers)
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK RIDE CACHE
// ──────────────────────────────────────────────

// MockRideCache stores the available list in memory.
type MockRideCache struct {
	mu      sync.Mutex
	rides   []*domain.Ride
	cached  bool
	version int64

	InvalidateCallCount int32
	SkippedFillCount    int32
}

// NewMockRideCache creates an empty cache.
func NewMockRideCache() *MockRideCache {
	return &MockRideCache{}
}

func (m *MockRideCache) GetAvailableRides(ctx context.Context) ([]*domain.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cached {
		return nil, nil
	}
	out := make([]*domain.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (m *MockRideCache) AvailableRidesVersion(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, nil
}

func (m *MockRideCache) SetAvailableRides(ctx context.Context, version int64, rides []*domain.Ride) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if version != m.version {
		atomic.AddInt32(&m.SkippedFillCount, 1)
		return false, nil
	}
	m.rides = make([]*domain.Ride, 0, len(rides))
	for _, r := range rides {
		m.rides = append(m.rides, r.Clone())
	}
	m.cached = true
	return true, nil
}

func (m *MockRideCache) InvalidateAvailableRides(ctx context.Context) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.version++
	m.rides = nil
	m.cached = false
	return nil
}

// ──────────────────────────────────────────────
// MOCK BROADCASTER
// ──────────────────────────────────────────────

// Delivery is one recorded realtime call. Target is empty for broadcasts.
type Delivery struct {
	Event   string
	Target  string
	Payload any
}

// MockBroadcaster records realtime deliveries.
type MockBroadcaster struct {
	mu         sync.Mutex
	deliveries []Delivery

	Err error
}

// NewMockBroadcaster creates a new mock broadcaster.
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

func (m *MockBroadcaster) Broadcast(ctx context.Context, event string, payload any) error {
	return m.record(Delivery{Event: event, Payload: payload})
}

func (m *MockBroadcaster) Notify(ctx context.Context, userID, event string, payload any) error {
	return m.record(Delivery{Event: event, Target: userID, Payload: payload})
}

func (m *MockBroadcaster) record(d Delivery) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, d)
	return nil
}

// Deliveries returns the recorded calls.
func (m *MockBroadcaster) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// ──────────────────────────────────────────────
// MOCK EMAIL SENDER
// ──────────────────────────────────────────────

// MockSender records sent messages.
type MockSender struct {
	mu   sync.Mutex
	sent []email.Message

	// FailFor makes Send fail for one recipient address.
	FailFor string
	Err     error
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, msg email.Message) error {
	if m.Err != nil && (m.FailFor == "" || m.FailFor == msg.To) {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns the delivered messages.
func (m *MockSender) Sent() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]email.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// ──────────────────────────────────────────────
// RECORDING DISPATCHER
// ──────────────────────────────────────────────

// RecordingDispatcher captures events instead of executing them.
type RecordingDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecordingDispatcher creates a new recording dispatcher.
func NewRecordingDispatcher() *RecordingDispatcher {
	return &RecordingDispatcher{}
}

func (d *RecordingDispatcher) DispatchAsync(ctx context.Context, events []domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

// Events returns everything dispatched so far.
func (d *RecordingDispatcher) Events() []domain.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Event, len(d.events))
	copy(out, d.events)
	return out
}

// Ensure mocks implement interfaces.
var (
	_ repository.RideRepository    = (*MockRideRepository)(nil)
	_ repository.UserRepository    = (*MockUserRepository)(nil)
	_ redis.PresenceStoreInterface = (*MockPresenceStore)(nil)
	_ redis.RideCacheInterface     = (*MockRideCache)(nil)
	_ service.Directory            = (*MockDirectory)(nil)
	_ service.Broadcaster          = (*MockBroadcaster)(nil)
	_ email.Sender                 = (*MockSender)(nil)
)
