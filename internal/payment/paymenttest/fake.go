// Package paymenttest provides an in-memory payment.Provider for tests and
// local runs without provider credentials.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
)

// Provider records every call and keeps account state in a map.
type Provider struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]*payment.AccountStatus

	// Err* force the matching call to fail with a provider error.
	ErrCreateAccount error
	ErrLink          error
	ErrRetrieve      error
	ErrIntent        error

	CreatedAccounts []payment.CreateAccountInput
	Links           []Link
	Intents         []payment.CreateIntentInput
	LoginLinks      []string
}

type Link struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

func New() *Provider {
	return &Provider{accounts: map[string]*payment.AccountStatus{}}
}

// SetStatus overwrites the live state of an account, creating it if needed.
func (p *Provider) SetStatus(st payment.AccountStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := st
	p.accounts[st.AccountID] = &cp
}

// Activate marks an account as fully onboarded.
func (p *Provider) Activate(accountID string) {
	p.SetStatus(payment.AccountStatus{AccountID: accountID, DetailsSubmitted: true, ChargesEnabled: true, PayoutsEnabled: true})
}

func (p *Provider) CreateAccount(_ context.Context, in payment.CreateAccountInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ErrCreateAccount != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrProvider, p.ErrCreateAccount)
	}
	p.seq++
	id := fmt.Sprintf("acct_test_%d", p.seq)
	p.accounts[id] = &payment.AccountStatus{AccountID: id}
	p.CreatedAccounts = append(p.CreatedAccounts, in)
	return id, nil
}

func (p *Provider) CreateOnboardingLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ErrLink != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrProvider, p.ErrLink)
	}
	p.Links = append(p.Links, Link{AccountID: accountID, RefreshURL: refreshURL, ReturnURL: returnURL})
	return "https://connect.example.test/setup/" + accountID, nil
}

func (p *Provider) RetrieveAccount(_ context.Context, accountID string) (*payment.AccountStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ErrRetrieve != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrProvider, p.ErrRetrieve)
	}
	st, ok := p.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: No such account: '%s'", apperr.ErrProvider, accountID)
	}
	cp := *st
	return &cp, nil
}

func (p *Provider) CreateLoginLink(_ context.Context, accountID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return "", fmt.Errorf("%w: No such account: '%s'", apperr.ErrProvider, accountID)
	}
	p.LoginLinks = append(p.LoginLinks, accountID)
	return "https://connect.example.test/express/" + accountID, nil
}

func (p *Provider) CreatePaymentIntent(_ context.Context, in payment.CreateIntentInput) (*payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ErrIntent != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrProvider, p.ErrIntent)
	}
	p.Intents = append(p.Intents, in)
	id := fmt.Sprintf("pi_test_%d", len(p.Intents))
	return &payment.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

// AccountCount is the number of accounts created through CreateAccount.
func (p *Provider) AccountCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CreatedAccounts)
}

var _ payment.Provider = (*Provider)(nil)
