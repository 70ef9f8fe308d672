// Package tip turns a customer's tip for a waiter into a payment intent whose
// platform fee is kept and whose remainder goes to the waiter's sub-account.
package tip

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/user"
)

type Service struct {
	users    user.Store
	provider payment.Provider
	bounds   payment.TipBounds
	fees     payment.FeeModel
	logger   *zap.SugaredLogger
}

func NewService(users user.Store, provider payment.Provider, bounds payment.TipBounds, fees payment.FeeModel, logger *zap.SugaredLogger) *Service {
	return &Service{users: users, provider: provider, bounds: bounds, fees: fees, logger: logger}
}

// Intent is returned to the payment collection surface.
type Intent struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"paymentIntentId"`
	AmountMinor  int64  `json:"amount"`
	FeeMinor     int64  `json:"applicationFee"`
	Destination  string `json:"-"`
}

// ValidateAmount reports whether amount is an acceptable tip.
func (s *Service) ValidateAmount(amount decimal.Decimal) bool {
	return s.bounds.Validate(amount)
}

// CreateTipIntent checks the amount, the waiter and the waiter's live
// sub-account, then requests an intent split between platform and waiter.
// The charge itself is confirmed client-side against the returned secret.
func (s *Service) CreateTipIntent(ctx context.Context, waiterID string, amount decimal.Decimal) (*Intent, error) {
	if !s.bounds.Validate(amount) {
		return nil, fmt.Errorf("%w: amount must be between %s and %s", apperr.ErrValidation, s.bounds.Min, s.bounds.Max)
	}
	u, err := user.Load(ctx, s.users, waiterID)
	if err != nil {
		return nil, err
	}
	if !u.HasAccount() {
		return nil, fmt.Errorf("%w: waiter %s has no payment account", apperr.ErrNotFound, waiterID)
	}
	st, err := s.provider.RetrieveAccount(ctx, u.AccountID())
	if err != nil {
		return nil, err
	}
	if !st.ChargesEnabled {
		return nil, fmt.Errorf("%w: waiter %s cannot accept payments yet", apperr.ErrNotReady, waiterID)
	}

	amountMinor := payment.ToMinorUnits(amount)
	fee := s.fees.ApplicationFee(amountMinor)
	pi, err := s.provider.CreatePaymentIntent(ctx, payment.CreateIntentInput{
		WaiterID:       waiterID,
		AmountMinor:    amountMinor,
		FeeMinor:       fee,
		Destination:    u.AccountID(),
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		s.logger.Errorw("create payment intent failed", "waiter_id", waiterID, "amount", amountMinor, "err", err)
		return nil, err
	}
	s.logger.Infow("tip intent created", "waiter_id", waiterID, "intent_id", pi.ID, "amount", amountMinor, "fee", fee)
	return &Intent{
		ClientSecret: pi.ClientSecret,
		IntentID:     pi.ID,
		AmountMinor:  amountMinor,
		FeeMinor:     fee,
		Destination:  u.AccountID(),
	}, nil
}
