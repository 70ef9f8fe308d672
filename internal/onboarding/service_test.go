package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment/paymenttest"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
)

type fixture struct {
	svc      *Service
	users    *userrepo.MemoryRepo
	provider *paymenttest.Provider
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    userrepo.NewMemoryRepo(),
		provider: paymenttest.New(),
		now:      time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
	links := NewLinks("https://tips.example.test", "https://app.example.test", "")
	f.svc = NewService(f.users, f.provider, links, zap.NewNop().Sugar())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), &entity.User{ID: id, DisplayName: "Waiter " + id, Email: id + "@example.com"}))
}

func (f *fixture) user(t *testing.T, id string) *entity.User {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestStartOnboardingCreatesPendingAccount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")

	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.OnboardingURL)
	assert.False(t, res.AlreadyEnabled)
	assert.Equal(t, 1, f.provider.AccountCount())

	u := f.user(t, "u1")
	assert.Equal(t, res.AccountID, u.AccountID())
	assert.Equal(t, entity.OnboardingPending, u.OnboardingStatus)
	assert.Nil(t, u.AccountCreationStartedAt)

	require.Len(t, f.provider.Links, 1)
	link := f.provider.Links[0]
	assert.Equal(t, res.AccountID, link.AccountID)
	assert.Equal(t, "https://tips.example.test/pitchfork-api-tips/onboarding/refresh?userId=u1", link.RefreshURL)
	assert.Equal(t, "https://tips.example.test/pitchfork-api-tips/onboarding/return?userId=u1", link.ReturnURL)

	in := f.provider.CreatedAccounts[0]
	assert.Equal(t, "u1", in.UserID)
	assert.Equal(t, "u1@example.com", in.Email)
	assert.NotEmpty(t, in.IdempotencyKey)
}

func TestStartOnboardingMissingUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.StartOnboarding(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, f.provider.AccountCount())
}

func TestStartOnboardingEnabledAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	first, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	f.provider.Activate(first.AccountID)

	for i := 0; i < 2; i++ {
		res, err := f.svc.StartOnboarding(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, first.AccountID, res.AccountID)
		assert.True(t, res.AlreadyEnabled)
		assert.Empty(t, res.OnboardingURL)
	}
	assert.Equal(t, 1, f.provider.AccountCount())
	assert.Len(t, f.provider.Links, 1)
}

func TestStartOnboardingReplacesAccountThatCannotCharge(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	first, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)

	second, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccountID, second.AccountID)
	assert.Equal(t, 2, f.provider.AccountCount())
	assert.Equal(t, second.AccountID, f.user(t, "u1").AccountID())
}

func TestStartOnboardingProviderRejectsAccount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	f.provider.ErrCreateAccount = errors.New("country not supported")

	_, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.ErrorIs(t, err, apperr.ErrProvider)
	assert.Contains(t, err.Error(), "country not supported")

	u := f.user(t, "u1")
	assert.False(t, u.HasAccount())
	assert.Equal(t, entity.OnboardingAbsent, u.OnboardingStatus)
	assert.Nil(t, u.AccountCreationStartedAt, "marker released after provider failure")
}

func TestStartOnboardingLinkFailureKeepsPendingAccount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	f.provider.ErrLink = errors.New("account link expired")

	_, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.ErrorIs(t, err, apperr.ErrProvider)

	u := f.user(t, "u1")
	assert.True(t, u.HasAccount(), "account is persisted before the link is requested")
	assert.Equal(t, entity.OnboardingPending, u.OnboardingStatus)
}

// blockingProvider parks CreateAccount until released so two onboarding
// requests for one user can be interleaved deterministically.
type blockingProvider struct {
	*paymenttest.Provider
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *blockingProvider) CreateAccount(ctx context.Context, in payment.CreateAccountInput) (string, error) {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.Provider.CreateAccount(ctx, in)
}

func TestConcurrentStartOnboardingCreatesOneAccount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	bp := &blockingProvider{Provider: f.provider, entered: make(chan struct{}), release: make(chan struct{})}
	f.svc.provider = bp

	var wg sync.WaitGroup
	var firstErr error
	var first *StartResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = f.svc.StartOnboarding(context.Background(), "u1")
	}()

	<-bp.entered
	_, err := f.svc.StartOnboarding(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	close(bp.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, 1, f.provider.AccountCount())
	assert.Equal(t, first.AccountID, f.user(t, "u1").AccountID())
}

func TestStaleReservationIsTakenOver(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	u := f.user(t, "u1")
	ok, err := f.users.ReserveAccountCreation(context.Background(), "u1", u.Version, f.now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.StartOnboarding(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	f.now = f.now.Add(DefaultReservationTTL + time.Minute)
	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccountID)
}

type failingAttachStore struct {
	*userrepo.MemoryRepo
}

func (s failingAttachStore) AttachAccount(context.Context, string, string) error {
	return errors.New("connection reset")
}

func TestOrphanedAccountLeavesMarker(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	f.svc.users = failingAttachStore{f.users}

	_, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Equal(t, 1, f.provider.AccountCount())

	orphans, err := f.svc.Orphans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orphans, "marker still inside its TTL")

	f.now = f.now.Add(DefaultReservationTTL + time.Second)
	orphans, err = f.svc.Orphans(context.Background())
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "u1", orphans[0].ID)
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")

	rep, err := f.svc.CheckStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, rep.HasAccount)
	assert.False(t, rep.IsEnabled)

	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	f.provider.SetStatus(payment.AccountStatus{AccountID: res.AccountID, DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: false})

	rep, err = f.svc.CheckStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, rep.HasAccount)
	assert.False(t, rep.IsEnabled)
	assert.True(t, rep.ChargesEnabled)
	assert.False(t, rep.PayoutsEnabled)
	assert.Equal(t, entity.OnboardingPending, f.user(t, "u1").OnboardingStatus, "status checks never write")

	_, err = f.svc.CheckStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompleteOnboarding(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)

	// charges and payouts on, details still missing
	f.provider.SetStatus(payment.AccountStatus{AccountID: res.AccountID, ChargesEnabled: true, PayoutsEnabled: true})
	c, err := f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, c.Completed)
	assert.Equal(t, entity.OnboardingPending, f.user(t, "u1").OnboardingStatus)

	f.provider.Activate(res.AccountID)
	c, err = f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.Completed)
	u := f.user(t, "u1")
	assert.Equal(t, entity.OnboardingCompleted, u.OnboardingStatus)
	require.NotNil(t, u.OnboardingCompletedAt)
	assert.Equal(t, f.now, *u.OnboardingCompletedAt)

	// a second return keeps the original timestamp
	f.now = f.now.Add(time.Hour)
	c, err = f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, c.Completed)
	assert.Equal(t, f.now.Add(-time.Hour), *f.user(t, "u1").OnboardingCompletedAt)
}

func TestCompleteOnboardingRejectedAccountFails(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	f.provider.SetStatus(payment.AccountStatus{AccountID: res.AccountID, DetailsSubmitted: true, DisabledReason: "rejected.fraud"})

	c, err := f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, c.Completed)
	assert.True(t, c.Rejected)
	assert.Equal(t, entity.OnboardingFailed, f.user(t, "u1").OnboardingStatus)
}

func TestCompleteOnboardingWithoutAccount(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	_, err := f.svc.CompleteOnboarding(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompletedStatusIsNotDowngraded(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "u1")
	res, err := f.svc.StartOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	f.provider.Activate(res.AccountID)
	_, err = f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)

	// provider-side compliance hold after the fact
	f.provider.SetStatus(payment.AccountStatus{AccountID: res.AccountID, DetailsSubmitted: true, DisabledReason: "requirements.past_due"})
	rep, err := f.svc.CheckStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, rep.IsEnabled)
	c, err := f.svc.CompleteOnboarding(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, c.Completed)
	assert.Equal(t, entity.OnboardingCompleted, f.user(t, "u1").OnboardingStatus)
}

func TestAccountStatusAndLoginLink(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AccountStatus(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.LoginLink(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f.provider.Activate("acct_9")
	st, err := f.svc.AccountStatus(context.Background(), "acct_9")
	require.NoError(t, err)
	assert.True(t, st.FullyOnboarded())

	u, err := f.svc.LoginLink(context.Background(), "acct_9")
	require.NoError(t, err)
	assert.Contains(t, u, "acct_9")
}
