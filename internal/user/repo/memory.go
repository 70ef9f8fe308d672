package repo

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
)

// MemoryRepo is an in-memory implementation of the same contract as UserRepo,
// used by unit tests and by `serve --memory`.
type MemoryRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{users: map[string]*entity.User{}, now: time.Now}
}

func (m *MemoryRepo) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	now := m.now()
	u.Version = 1
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := clone(u)
	m.users[u.ID] = cp
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clone(u), nil
}

func (m *MemoryRepo) ReserveAccountCreation(_ context.Context, id string, expectedVersion int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Version != expectedVersion {
		return false, nil
	}
	t := at
	u.AccountCreationStartedAt = &t
	m.touch(u)
	return true, nil
}

func (m *MemoryRepo) ReleaseAccountCreation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.AccountCreationStartedAt = nil
		m.touch(u)
	}
	return nil
}

func (m *MemoryRepo) AttachAccount(_ context.Context, id, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	acct := accountID
	u.StripeAccountID = &acct
	u.OnboardingStatus = entity.OnboardingPending
	u.OnboardingCompletedAt = nil
	u.AccountCreationStartedAt = nil
	m.touch(u)
	return nil
}

func (m *MemoryRepo) TransitionOnboarding(_ context.Context, id string, from, to entity.OnboardingStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.OnboardingStatus != from || !u.HasAccount() {
		return false, nil
	}
	u.OnboardingStatus = to
	if to == entity.OnboardingCompleted {
		t := at
		u.OnboardingCompletedAt = &t
	}
	m.touch(u)
	return true, nil
}

func (m *MemoryRepo) ListStaleReservations(_ context.Context, before time.Time) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.User
	for _, u := range m.users {
		if u.AccountCreationStartedAt != nil && u.AccountCreationStartedAt.Before(before) {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccountCreationStartedAt.Before(*out[j].AccountCreationStartedAt)
	})
	return out, nil
}

func (m *MemoryRepo) Ping(context.Context) error { return nil }

func (m *MemoryRepo) touch(u *entity.User) {
	u.Version++
	u.UpdatedAt = m.now()
}

func clone(u *entity.User) *entity.User {
	cp := *u
	return &cp
}
