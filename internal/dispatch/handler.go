// Package dispatch is the single POST entry point the tipping pages call. It
// throttles each action per client address and routes to the onboarding and
// tip services.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/onboarding"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-tips-go/internal/tip"
)

type Action string

const (
	ActionCreateAccount Action = "create-connect-account"
	ActionCheckStatus   Action = "check-account-status"
	ActionCreateIntent  Action = "create-payment-intent"
	ActionLoginLink     Action = "create-login-link"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreateAccount, ActionCheckStatus, ActionCreateIntent, ActionLoginLink:
		return true
	}
	return false
}

// Policies holds the rate limits per class of action.
type Policies struct {
	Default ratelimit.Policy
	Account ratelimit.Policy
	Payment ratelimit.Policy
}

// For picks the policy for an action: payment creation and account mutation
// are stricter than reads.
func (p Policies) For(a Action) ratelimit.Policy {
	switch a {
	case ActionCreateIntent:
		return p.Payment
	case ActionCreateAccount:
		return p.Account
	default:
		return p.Default
	}
}

// Request is the dispatch body. Amount is in major currency units.
type Request struct {
	Action          Action              `json:"action"`
	WaiterID        string              `json:"waiterId"`
	Amount          decimal.NullDecimal `json:"amount"`
	StripeAccountID string              `json:"stripeAccountId"`
}

// ErrorResponse is the one error object every failure answers with.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

type Handler struct {
	limiter    *ratelimit.Limiter
	policies   Policies
	onboarding *onboarding.Service
	tips       *tip.Service
	logger     *zap.SugaredLogger
}

func NewHandler(limiter *ratelimit.Limiter, policies Policies, ob *onboarding.Service, tips *tip.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{limiter: limiter, policies: policies, onboarding: ob, tips: tips, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, req, fmt.Errorf("%w: invalid payload", apperr.ErrValidation))
		return
	}
	if !req.Action.Valid() {
		h.fail(w, req, fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, req.Action))
		return
	}

	addr := ratelimit.ClientAddress(r)
	res := h.limiter.Check(r.Context(), addr, string(req.Action), h.policies.For(req.Action))
	retryAfter := res.RetryAfter(h.limiter.Now())
	ratelimit.SetHeaders(w, res, retryAfter)
	if !res.Allowed {
		h.logger.Infow("request throttled", "action", req.Action, "client", addr, "retry_after", retryAfter)
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:      fmt.Sprintf("too many requests, retry in %d seconds", retryAfter),
			Code:       apperr.Code(apperr.ErrRateLimited),
			RetryAfter: retryAfter,
		})
		return
	}

	body, err := h.dispatch(r, req)
	if err != nil {
		h.fail(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) dispatch(r *http.Request, req Request) (any, error) {
	ctx := r.Context()
	waiterID := strings.TrimSpace(req.WaiterID)
	if req.Action != ActionLoginLink && waiterID == "" {
		return nil, fmt.Errorf("%w: waiterId is required", apperr.ErrValidation)
	}

	switch req.Action {
	case ActionCreateAccount:
		return h.onboarding.StartOnboarding(ctx, waiterID)
	case ActionCheckStatus:
		return h.onboarding.CheckStatus(ctx, waiterID)
	case ActionCreateIntent:
		if !req.Amount.Valid {
			return nil, fmt.Errorf("%w: amount is required", apperr.ErrValidation)
		}
		return h.tips.CreateTipIntent(ctx, waiterID, req.Amount.Decimal)
	case ActionLoginLink:
		url, err := h.onboarding.LoginLink(ctx, req.StripeAccountID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"url": url}, nil
	}
	return nil, fmt.Errorf("%w: unknown action %q", apperr.ErrValidation, req.Action)
}

func (h *Handler) fail(w http.ResponseWriter, req Request, err error) {
	status := apperr.Status(err)
	kv := []any{"action", req.Action, "waiter_id", req.WaiterID, "status", status, "err", err}
	if req.StripeAccountID != "" {
		kv = append(kv, "account_id", req.StripeAccountID)
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorw("request failed", kv...)
	} else {
		h.logger.Warnw("request rejected", kv...)
	}
	writeJSON(w, status, ErrorResponse{Error: apperr.Message(err), Code: apperr.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
