package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// MockStore is a hand-written, in-memory implementation of Store used in
// unit tests. No mock-generation library needed.
type MockStore struct {
	mu           sync.RWMutex
	noticeTypes  map[string]*domain.NoticeType
	settings     map[settingKey]*domain.NoticeSetting
	notices      []*domain.Notice
	dispatches   map[int64]*domain.QueuedDispatch
	nextID       int64
	observations map[observationKey]*domain.Observation
	users        map[domain.UserID]*domain.User

	// Optional error overrides, set in tests to simulate failure paths.
	InsertNoticeErr    error
	InsertDispatchErr  error
	ClaimErr           error
	DeleteDispatchErr  error
	GetUserErr         error
	InsertNoticeErrFor map[domain.UserID]error
}

type settingKey struct {
	user   domain.UserID
	label  string
	medium domain.Medium
}

type observationKey struct {
	user     domain.UserID
	observed domain.Ref
	signal   string
}

func NewMockStore() *MockStore {
	return &MockStore{
		noticeTypes:  make(map[string]*domain.NoticeType),
		settings:     make(map[settingKey]*domain.NoticeSetting),
		dispatches:   make(map[int64]*domain.QueuedDispatch),
		observations: make(map[observationKey]*domain.Observation),
		users:        make(map[domain.UserID]*domain.User),
	}
}

// AddUser registers a recipient for GetUser.
func (m *MockStore) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
}

// Notices returns a copy of every on-site notice written so far.
func (m *MockStore) Notices() []domain.Notice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Notice, len(m.notices))
	for i, n := range m.notices {
		out[i] = *n
	}
	return out
}

// NoticesFor returns the notices written for one recipient.
func (m *MockStore) NoticesFor(user domain.UserID) []domain.Notice {
	var out []domain.Notice
	for _, n := range m.Notices() {
		if n.Recipient == user {
			out = append(out, n)
		}
	}
	return out
}

// DispatchCount returns the number of rows left in the deferred queue,
// claimed or not.
func (m *MockStore) DispatchCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dispatches)
}

// Dispatch returns a copy of a queued row.
func (m *MockStore) Dispatch(id int64) (domain.QueuedDispatch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dispatches[id]
	if !ok {
		return domain.QueuedDispatch{}, false
	}
	return *d, true
}

// ---- notice types ----

func (m *MockStore) InsertNoticeTypeIfAbsent(_ context.Context, nt *domain.NoticeType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.noticeTypes[nt.Label]; ok {
		return false, nil
	}
	clone := *nt
	m.noticeTypes[nt.Label] = &clone
	return true, nil
}

func (m *MockStore) GetNoticeType(_ context.Context, label string) (*domain.NoticeType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nt, ok := m.noticeTypes[label]
	if !ok {
		return nil, fmt.Errorf("notice type %q: %w", label, domain.ErrNotFound)
	}
	clone := *nt
	return &clone, nil
}

func (m *MockStore) ListNoticeTypes(_ context.Context) ([]*domain.NoticeType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.NoticeType, 0, len(m.noticeTypes))
	for _, nt := range m.noticeTypes {
		clone := *nt
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

// ---- settings ----

func (m *MockStore) GetSetting(_ context.Context, user domain.UserID, label string, medium domain.Medium) (*domain.NoticeSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[settingKey{user, label, medium}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *MockStore) InsertSettingIfAbsent(_ context.Context, s *domain.NoticeSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := settingKey{s.UserID, s.Label, s.Medium}
	if _, ok := m.settings[key]; ok {
		return nil
	}
	clone := *s
	m.settings[key] = &clone
	return nil
}

func (m *MockStore) UpsertSetting(_ context.Context, s *domain.NoticeSetting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.settings[settingKey{s.UserID, s.Label, s.Medium}] = &clone
	return nil
}

func (m *MockStore) ListSettings(_ context.Context, user domain.UserID) ([]*domain.NoticeSetting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.NoticeSetting
	for k, s := range m.settings {
		if k.user == user {
			clone := *s
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Medium < out[j].Medium
	})
	return out, nil
}

// ---- notices ----

func (m *MockStore) InsertNotice(_ context.Context, n *domain.Notice) error {
	if m.InsertNoticeErr != nil {
		return m.InsertNoticeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.InsertNoticeErrFor[n.Recipient]; ok {
		return err
	}
	clone := *n
	m.notices = append(m.notices, &clone)
	return nil
}

// ---- deferred dispatch queue ----

func (m *MockStore) InsertDispatch(_ context.Context, d *domain.QueuedDispatch) error {
	if m.InsertDispatchErr != nil {
		return m.InsertDispatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	d.ID = m.nextID
	clone := *d
	m.dispatches[d.ID] = &clone
	return nil
}

func (m *MockStore) ClaimDispatches(_ context.Context, owner string, limit int, staleBefore time.Time) ([]*domain.QueuedDispatch, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*domain.QueuedDispatch, 0, len(m.dispatches))
	for _, d := range m.dispatches {
		if d.ClaimedAt == nil || d.ClaimedAt.Before(staleBefore) {
			pending = append(pending, d)
		}
	}
	sortDispatches(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]*domain.QueuedDispatch, len(pending))
	for i, d := range pending {
		who := owner
		at := now
		d.ClaimedBy = &who
		d.ClaimedAt = &at
		clone := *d
		claimed[i] = &clone
	}
	return claimed, nil
}

func (m *MockStore) DeleteDispatch(_ context.Context, id int64) error {
	if m.DeleteDispatchErr != nil {
		return m.DeleteDispatchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dispatches, id)
	return nil
}

func (m *MockStore) CountPendingDispatches(_ context.Context, staleBefore time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, d := range m.dispatches {
		if d.ClaimedAt == nil || d.ClaimedAt.Before(staleBefore) {
			n++
		}
	}
	return n, nil
}

// ---- observations ----

func (m *MockStore) UpsertObservation(_ context.Context, o *domain.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *o
	m.observations[observationKey{o.UserID, o.Observed, o.Signal}] = &clone
	return nil
}

func (m *MockStore) DeleteObservation(_ context.Context, observed domain.Ref, user domain.UserID, signal string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := observationKey{user, observed, signal}
	if _, ok := m.observations[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.observations, key)
	return nil
}

func (m *MockStore) ObservationExists(_ context.Context, observed domain.Ref, user domain.UserID, signal string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.observations[observationKey{user, observed, signal}]
	return ok, nil
}

func (m *MockStore) ListObservers(_ context.Context, observed domain.Ref, signal string) ([]*domain.Observation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Observation
	for k, o := range m.observations {
		if k.observed == observed && k.signal == signal {
			clone := *o
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// ---- users ----

func (m *MockStore) GetUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
	}
	clone := *u
	return &clone, nil
}

// compile-time checks that every store implements Store
var (
	_ Store = (*MockStore)(nil)
	_ Store = (*pgStore)(nil)
	_ Store = (*sqliteStore)(nil)
)
