package entity

import "time"

// OnboardingStatus tracks a waiter's payment sub-account through hosted onboarding.
// The empty value means no sub-account exists yet.
type OnboardingStatus string

const (
	OnboardingAbsent    OnboardingStatus = ""
	OnboardingPending   OnboardingStatus = "pending"
	OnboardingCompleted OnboardingStatus = "completed"
	OnboardingFailed    OnboardingStatus = "failed"
)

// User represents a row in the `users` table: one waiter and their payment linkage.
type User struct {
	ID          string  `db:"id" json:"id"`
	DisplayName string  `db:"display_name" json:"displayName"`
	Email       string  `db:"email" json:"email"`
	AvatarURL   *string `db:"avatar_url" json:"avatarUrl,omitempty"`

	StripeAccountID       *string          `db:"stripe_account_id" json:"stripeAccountId,omitempty"`
	OnboardingStatus      OnboardingStatus `db:"onboarding_status" json:"onboardingStatus,omitempty"`
	OnboardingCompletedAt *time.Time       `db:"onboarding_completed_at" json:"onboardingCompletedAt,omitempty"`
	// AccountCreationStartedAt marks a sub-account creation in flight. A value
	// that outlives its request points at a possibly orphaned provider account.
	AccountCreationStartedAt *time.Time `db:"account_creation_started_at" json:"-"`

	Version   int64     `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// HasAccount reports whether a sub-account id is linked.
func (u *User) HasAccount() bool {
	return u.StripeAccountID != nil && *u.StripeAccountID != ""
}

// AccountID returns the linked sub-account id or "".
func (u *User) AccountID() string {
	if u.StripeAccountID == nil {
		return ""
	}
	return *u.StripeAccountID
}
