//go:build integration

package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
)

func TestUserRepoLifecycle(t *testing.T) {
	db := testutil.StartPostgres(t)
	r := repo.NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))
	require.NoError(t, r.EnsureTable(ctx), "EnsureTable is idempotent")

	u := &entity.User{ID: "u1", DisplayName: "Ana", Email: "ana@example.com"}
	require.NoError(t, r.Create(ctx, u))
	assert.Equal(t, int64(1), u.Version)
	assert.False(t, u.CreatedAt.IsZero())

	err := r.Create(ctx, &entity.User{ID: "u2", DisplayName: "Ana", Email: "ANA@example.com"})
	assert.ErrorIs(t, err, repo.ErrDuplicateEmail)

	_, err = r.GetByID(ctx, "missing")
	assert.Error(t, err)

	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	ok, err := r.ReserveAccountCreation(ctx, "u1", 1, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.ReserveAccountCreation(ctx, "u1", 1, at)
	require.NoError(t, err)
	assert.False(t, ok, "stale version loses")

	stale, err := r.ListStaleReservations(ctx, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "u1", stale[0].ID)

	require.NoError(t, r.AttachAccount(ctx, "u1", "acct_1"))
	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", got.AccountID())
	assert.Equal(t, entity.OnboardingPending, got.OnboardingStatus)
	assert.Nil(t, got.AccountCreationStartedAt)
	assert.Equal(t, int64(3), got.Version)

	stale, err = r.ListStaleReservations(ctx, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	ok, err = r.TransitionOnboarding(ctx, "u1", entity.OnboardingPending, entity.OnboardingCompleted, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.TransitionOnboarding(ctx, "u1", entity.OnboardingPending, entity.OnboardingFailed, at)
	require.NoError(t, err)
	assert.False(t, ok, "completed is never left")

	got, err = r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.OnboardingCompleted, got.OnboardingStatus)
	require.NotNil(t, got.OnboardingCompletedAt)
	assert.True(t, got.OnboardingCompletedAt.Equal(at))

	assert.Error(t, r.AttachAccount(ctx, "missing", "acct_2"))
	assert.NoError(t, r.Ping(ctx))
}

func TestUserRepoReleaseAccountCreation(t *testing.T) {
	db := testutil.StartPostgres(t)
	r := repo.NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, r.EnsureTable(ctx))
	require.NoError(t, r.Create(ctx, &entity.User{ID: "u1", DisplayName: "Ana", Email: "ana@example.com"}))

	ok, err := r.ReserveAccountCreation(ctx, "u1", 1, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, r.ReleaseAccountCreation(ctx, "u1"))

	got, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got.AccountCreationStartedAt)
	assert.False(t, got.HasAccount())
	assert.Equal(t, entity.OnboardingAbsent, got.OnboardingStatus)
}
