// Package onboarding drives a waiter's connected payment sub-account from
// creation through the provider's hosted onboarding, and reconciles the
// provider's verdict into the waiter's user record.
package onboarding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
)

// accountKeyNamespace scopes the v5 idempotency keys for account creation.
var accountKeyNamespace = uuid.MustParse("6f1c2a9e-3d7b-4c55-9a0e-2b8f4e1d7c30")

// DefaultReservationTTL is how long a creation marker blocks other attempts.
const DefaultReservationTTL = 10 * time.Minute

type Service struct {
	users          user.Store
	provider       payment.Provider
	links          *Links
	logger         *zap.SugaredLogger
	now            func() time.Time
	reservationTTL time.Duration
}

func NewService(users user.Store, provider payment.Provider, links *Links, logger *zap.SugaredLogger) *Service {
	return &Service{
		users:          users,
		provider:       provider,
		links:          links,
		logger:         logger,
		now:            time.Now,
		reservationTTL: DefaultReservationTTL,
	}
}

// WithReservationTTL overrides DefaultReservationTTL.
func (s *Service) WithReservationTTL(d time.Duration) *Service {
	if d > 0 {
		s.reservationTTL = d
	}
	return s
}

// StartResult is what the caller needs to send the waiter to the hosted flow.
type StartResult struct {
	AccountID      string `json:"accountId"`
	OnboardingURL  string `json:"url,omitempty"`
	AlreadyEnabled bool   `json:"alreadyEnabled,omitempty"`
}

// StartOnboarding returns the waiter's sub-account and a hosted onboarding URL.
// An existing sub-account that already accepts charges is returned as is.
// Otherwise a new sub-account is created under a reservation marker, persisted
// as pending, and only then is the onboarding link requested.
func (s *Service) StartOnboarding(ctx context.Context, userID string) (*StartResult, error) {
	u, err := user.Load(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}

	if u.HasAccount() {
		st, err := s.provider.RetrieveAccount(ctx, u.AccountID())
		switch {
		case err != nil:
			s.logger.Warnw("existing account lookup failed, creating a new one",
				"user_id", userID, "account_id", u.AccountID(), "err", err)
		case st.ChargesEnabled:
			return &StartResult{AccountID: u.AccountID(), AlreadyEnabled: true}, nil
		}
	}

	now := s.now()
	if started := u.AccountCreationStartedAt; started != nil && now.Sub(*started) < s.reservationTTL {
		return nil, fmt.Errorf("%w: account setup already in progress for user %s", apperr.ErrConflict, userID)
	}
	reserved, err := s.users.ReserveAccountCreation(ctx, userID, u.Version, now)
	if err != nil {
		return nil, fmt.Errorf("reserve account creation: %w", err)
	}
	if !reserved {
		return nil, fmt.Errorf("%w: user %s changed during account setup", apperr.ErrConflict, userID)
	}

	accountID, err := s.provider.CreateAccount(ctx, payment.CreateAccountInput{
		UserID:         userID,
		Email:          u.Email,
		IdempotencyKey: accountCreationKey(userID, now),
	})
	if err != nil {
		s.logger.Errorw("create payment account failed", "user_id", userID, "err", err)
		if relErr := s.users.ReleaseAccountCreation(ctx, userID); relErr != nil {
			s.logger.Warnw("release creation marker failed", "user_id", userID, "err", relErr)
		}
		return nil, err
	}

	if err := s.users.AttachAccount(ctx, userID, accountID); err != nil {
		// The marker stays set so `tipsctl orphans` can find this user.
		s.logger.Errorw("payment account created but not saved, left orphaned",
			"user_id", userID, "account_id", accountID, "err", err)
		return nil, fmt.Errorf("save payment account: %w", err)
	}
	s.logger.Infow("payment account created", "user_id", userID, "account_id", accountID)

	refreshURL, returnURL, err := s.links.Callbacks(userID)
	if err != nil {
		return nil, fmt.Errorf("build callback urls: %w", err)
	}
	link, err := s.provider.CreateOnboardingLink(ctx, accountID, refreshURL, returnURL)
	if err != nil {
		s.logger.Errorw("create onboarding link failed", "user_id", userID, "account_id", accountID, "err", err)
		return nil, err
	}
	return &StartResult{AccountID: accountID, OnboardingURL: link}, nil
}

// StatusReport is the live provider view of a waiter's sub-account.
type StatusReport struct {
	HasAccount       bool   `json:"hasAccount"`
	IsEnabled        bool   `json:"isEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	AccountID        string `json:"accountId,omitempty"`
}

// CheckStatus reports the provider's state for the waiter's sub-account. It
// never writes: a persisted status is not downgraded here even when the
// provider has since restricted the account.
func (s *Service) CheckStatus(ctx context.Context, userID string) (*StatusReport, error) {
	u, err := user.Load(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasAccount() {
		return &StatusReport{}, nil
	}
	st, err := s.provider.RetrieveAccount(ctx, u.AccountID())
	if err != nil {
		return nil, err
	}
	return &StatusReport{
		HasAccount:       true,
		IsEnabled:        st.Enabled(),
		DetailsSubmitted: st.DetailsSubmitted,
		ChargesEnabled:   st.ChargesEnabled,
		PayoutsEnabled:   st.PayoutsEnabled,
		AccountID:        u.AccountID(),
	}, nil
}

// Completion is the outcome of a return callback.
type Completion struct {
	// Completed means the waiter is fully onboarded; otherwise send them back
	// through the refresh path.
	Completed bool
	// Rejected means the provider refused the account; status is now failed.
	Rejected bool
	Status   payment.AccountStatus
}

// CompleteOnboarding handles the provider's return callback. It is the only
// place a user's onboarding status becomes completed (from pending) or failed.
func (s *Service) CompleteOnboarding(ctx context.Context, userID string) (*Completion, error) {
	u, err := user.Load(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasAccount() {
		return nil, fmt.Errorf("%w: user %s has no payment account", apperr.ErrNotFound, userID)
	}
	st, err := s.provider.RetrieveAccount(ctx, u.AccountID())
	if err != nil {
		return nil, err
	}
	out := &Completion{Status: *st}

	if !st.FullyOnboarded() {
		if st.Rejected() {
			out.Rejected = true
			ok, err := s.users.TransitionOnboarding(ctx, userID, entity.OnboardingPending, entity.OnboardingFailed, s.now())
			if err != nil {
				return nil, fmt.Errorf("mark onboarding failed: %w", err)
			}
			if ok {
				s.logger.Warnw("payment account rejected", "user_id", userID, "account_id", u.AccountID(), "reason", st.DisabledReason)
			}
		}
		return out, nil
	}

	out.Completed = true
	if u.OnboardingStatus == entity.OnboardingCompleted {
		return out, nil
	}
	ok, err := s.users.TransitionOnboarding(ctx, userID, entity.OnboardingPending, entity.OnboardingCompleted, s.now())
	if err != nil {
		return nil, fmt.Errorf("mark onboarding completed: %w", err)
	}
	if ok {
		s.logger.Infow("onboarding completed", "user_id", userID, "account_id", u.AccountID())
	} else {
		s.logger.Warnw("onboarding status not advanced", "user_id", userID, "status", u.OnboardingStatus)
	}
	return out, nil
}

// AccountStatus returns the provider's view of a sub-account by its id.
func (s *Service) AccountStatus(ctx context.Context, accountID string) (*payment.AccountStatus, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, fmt.Errorf("%w: accountId is required", apperr.ErrValidation)
	}
	return s.provider.RetrieveAccount(ctx, accountID)
}

// LoginLink returns a one-time dashboard login URL for a sub-account.
func (s *Service) LoginLink(ctx context.Context, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("%w: stripeAccountId is required", apperr.ErrValidation)
	}
	return s.provider.CreateLoginLink(ctx, accountID)
}

// Orphans lists users whose account creation started before the reservation
// TTL and never finished; each may own a provider account nothing points to.
func (s *Service) Orphans(ctx context.Context) ([]*entity.User, error) {
	return s.users.ListStaleReservations(ctx, s.now().Add(-s.reservationTTL))
}

func accountCreationKey(userID string, reservedAt time.Time) string {
	return uuid.NewSHA1(accountKeyNamespace, []byte(userID+"|"+reservedAt.UTC().Format(time.RFC3339Nano))).String()
}
