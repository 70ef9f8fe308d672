package onboarding

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
)

// Handler serves the hosted onboarding callbacks and the status endpoint.
type Handler struct {
	svc    *Service
	links  *Links
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, links *Links, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, links: links, logger: logger}
}

// Return is the provider's return_url. A fully onboarded waiter is marked
// completed and sent to the dashboard; anyone else goes through Refresh.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Redirect(w, r, h.links.EntryURL("", "missing_user"), http.StatusFound)
		return
	}
	if err := h.links.VerifyState(userID, r.URL.Query().Get("state")); err != nil {
		h.logger.Warnw("onboarding return with bad state", "user_id", userID, "err", err)
		http.Redirect(w, r, h.links.RefreshURL(userID), http.StatusFound)
		return
	}
	res, err := h.svc.CompleteOnboarding(r.Context(), userID)
	if err != nil {
		h.logger.Errorw("complete onboarding failed", "user_id", userID, "err", err)
		http.Redirect(w, r, h.links.EntryURL(userID, "onboarding_error"), http.StatusFound)
		return
	}
	switch {
	case res.Completed:
		http.Redirect(w, r, h.links.DashboardURL(), http.StatusFound)
	case res.Rejected:
		http.Redirect(w, r, h.links.EntryURL(userID, "onboarding_rejected"), http.StatusFound)
	default:
		http.Redirect(w, r, h.links.RefreshURL(userID), http.StatusFound)
	}
}

// Refresh is the provider's refresh_url: the waiter left or was bounced out of
// the hosted flow. Nothing is written; the waiter goes back to the entry page.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	h.logger.Debugw("onboarding refresh", "user_id", userID)
	http.Redirect(w, r, h.links.EntryURL(userID, "onboarding_incomplete"), http.StatusFound)
}

// StatusRequest is the body of the onboarding status endpoint.
type StatusRequest struct {
	AccountID string `json:"accountId"`
}

type accountStatusView struct {
	DetailsSubmitted bool   `json:"detailsSubmitted"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DisabledReason   string `json:"disabledReason,omitempty"`
}

// StatusResponse mirrors what the onboarding pages poll for.
type StatusResponse struct {
	Success          bool              `json:"success"`
	IsFullyOnboarded bool              `json:"isFullyOnboarded"`
	AccountStatus    accountStatusView `json:"accountStatus"`
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	st, err := h.svc.AccountStatus(r.Context(), req.AccountID)
	if err != nil {
		status := apperr.Status(err)
		if status == http.StatusInternalServerError || errors.Is(err, apperr.ErrProvider) {
			h.logger.Warnw("account status failed", "account_id", req.AccountID, "err", err)
		}
		writeJSON(w, status, map[string]any{"success": false, "error": apperr.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Success:          true,
		IsFullyOnboarded: st.FullyOnboarded(),
		AccountStatus: accountStatusView{
			DetailsSubmitted: st.DetailsSubmitted,
			ChargesEnabled:   st.ChargesEnabled,
			PayoutsEnabled:   st.PayoutsEnabled,
			DisabledReason:   st.DisabledReason,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
