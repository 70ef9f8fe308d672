package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tips-go/pkg/utilities"
)

// Store is the Account Store contract shared by the user, onboarding and tip
// services. UserRepo (Postgres) and MemoryRepo implement it.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ReserveAccountCreation(ctx context.Context, id string, expectedVersion int64, at time.Time) (bool, error)
	ReleaseAccountCreation(ctx context.Context, id string) error
	AttachAccount(ctx context.Context, id, accountID string) error
	TransitionOnboarding(ctx context.Context, id string, from, to entity.OnboardingStatus, at time.Time) (bool, error)
	ListStaleReservations(ctx context.Context, before time.Time) ([]*entity.User, error)
	Ping(ctx context.Context) error
}

var (
	_ Store = (*userrepo.UserRepo)(nil)
	_ Store = (*userrepo.MemoryRepo)(nil)
)

// Load fetches a user and turns a missing row into apperr.ErrNotFound.
func Load(ctx context.Context, s Store, id string) (*entity.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("load user %s: %w", id, err)
	}
	return u, nil
}

// UserService handles waiter registration and lookup.
type UserService struct {
	store Store
	newID func() string
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store, newID: utilities.NewSnowflakeID}
}

// Register creates a waiter record. Email is normalized and cannot change afterwards.
func (s *UserService) Register(ctx context.Context, displayName, email, avatarURL string) (*entity.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: displayName is required", apperr.ErrValidation)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	u := &entity.User{
		ID:          s.newID(),
		DisplayName: displayName,
		Email:       email,
	}
	if a := strings.TrimSpace(avatarURL); a != "" {
		u.AvatarURL = &a
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return Load(ctx, s.store, id)
}
