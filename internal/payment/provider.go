// Package payment talks to the hosted payments platform that owns the waiters'
// connected sub-accounts, and holds the money rules (tip bounds, platform fee)
// applied before a payment intent is requested.
package payment

import (
	"context"
	"strings"
)

// AccountStatus is the provider's live view of a connected sub-account.
type AccountStatus struct {
	AccountID        string
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
	// DisabledReason is empty while the account is usable or under review.
	DisabledReason string
}

// Enabled is the "can take tips and pay them out" view used by status checks.
func (s AccountStatus) Enabled() bool {
	return s.ChargesEnabled && s.PayoutsEnabled
}

// FullyOnboarded requires details, charges and payouts.
func (s AccountStatus) FullyOnboarded() bool {
	return s.DetailsSubmitted && s.ChargesEnabled && s.PayoutsEnabled
}

// Rejected reports a terminal provider-side rejection ("rejected.fraud", ...).
func (s AccountStatus) Rejected() bool {
	return strings.HasPrefix(s.DisabledReason, "rejected")
}

type CreateAccountInput struct {
	UserID         string
	Email          string
	IdempotencyKey string
}

type CreateIntentInput struct {
	WaiterID       string
	AmountMinor    int64
	FeeMinor       int64
	Destination    string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

// Provider is the subset of the payments platform the tips service uses.
type Provider interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (accountID string, err error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (url string, err error)
	RetrieveAccount(ctx context.Context, accountID string) (*AccountStatus, error)
	CreateLoginLink(ctx context.Context, accountID string) (url string, err error)
	CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*Intent, error)
}
