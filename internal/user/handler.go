package user

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
)

// Handler exposes HTTP endpoints for waiter registration and lookup.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRequest request body for the registration endpoint.
type RegisterRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatarUrl"`
}

// RegisterResponse response body containing the new user id.
type RegisterResponse struct {
	ID string `json:"id"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.svc.Register(r.Context(), req.DisplayName, req.Email, req.AvatarURL)
	if err != nil {
		h.logger.Warnw("register failed", "err", err)
		writeJSON(w, apperr.Status(err), map[string]string{"error": apperr.Message(err)})
		return
	}
	h.logger.Infow("user registered", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, RegisterResponse{ID: u.ID})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if apperr.Status(err) == http.StatusInternalServerError {
			h.logger.Errorw("get user failed", "err", err)
		}
		writeJSON(w, apperr.Status(err), map[string]string{"error": apperr.Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
