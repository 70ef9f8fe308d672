package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
)

// StripeConfig fixes the shape of every connected account this service creates.
type StripeConfig struct {
	SecretKey    string
	Country      string
	Currency     string
	BusinessType string
	// BackendURL overrides the API base URL (tests, stripe-mock).
	BackendURL string
}

// StripeProvider implements Provider on top of a per-instance Stripe client;
// the package-level stripe.Key is never touched.
type StripeProvider struct {
	api    *client.API
	cfg    StripeConfig
	logger *zap.SugaredLogger
}

func NewStripeProvider(cfg StripeConfig, logger *zap.SugaredLogger) *StripeProvider {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	backendCfg := &stripe.BackendConfig{
		LeveledLogger: logger,
		// retries are left to the caller
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BackendURL != "" {
		backendCfg.URL = stripe.String(cfg.BackendURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}
	return &StripeProvider{api: client.New(cfg.SecretKey, backends), cfg: cfg, logger: logger}
}

func (p *StripeProvider) CreateAccount(ctx context.Context, in CreateAccountInput) (string, error) {
	params := &stripe.AccountParams{
		Type:         stripe.String(string(stripe.AccountTypeExpress)),
		Country:      stripe.String(p.cfg.Country),
		BusinessType: stripe.String(p.cfg.BusinessType),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if in.Email != "" {
		params.Email = stripe.String(in.Email)
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return "", providerError("create account", err)
	}
	return acct.ID, nil
}

func (p *StripeProvider) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx
	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", providerError("create account link", err)
	}
	return link.URL, nil
}

func (p *StripeProvider) RetrieveAccount(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := p.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, providerError("retrieve account", err)
	}
	st := &AccountStatus{
		AccountID:        acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	if acct.Requirements != nil {
		st.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return st, nil
}

func (p *StripeProvider) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.LoginLinkParams{Account: stripe.String(accountID)}
	params.Context = ctx
	link, err := p.api.LoginLinks.New(params)
	if err != nil {
		return "", providerError("create login link", err)
	}
	return link.URL, nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, in CreateIntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(in.AmountMinor),
		Currency:             stripe.String(p.cfg.Currency),
		ApplicationFeeAmount: stripe.Int64(in.FeeMinor),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(in.Destination),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("waiter_id", in.WaiterID)
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, providerError("create payment intent", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// providerError keeps Stripe's own message so callers can see why a call was refused.
func providerError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return fmt.Errorf("%w: %s", apperr.ErrProvider, se.Msg)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrProvider, op, err)
}
