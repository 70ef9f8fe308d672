package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tips-go/internal/apperr"
	userrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
)

func TestRegisterNormalizesEmail(t *testing.T) {
	svc := NewUserService(userrepo.NewMemoryRepo())
	u, err := svc.Register(context.Background(), "  Ana ", " Ana@Example.COM ", "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Ana", u.DisplayName)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Nil(t, u.AvatarURL)
	assert.False(t, u.HasAccount())

	got, err := svc.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
}

func TestRegisterValidation(t *testing.T) {
	svc := NewUserService(userrepo.NewMemoryRepo())
	_, err := svc.Register(context.Background(), "", "a@b.co", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Register(context.Background(), "Ana", "not-an-email", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewUserService(userrepo.NewMemoryRepo())
	_, err := svc.Register(context.Background(), "Ana", "ana@example.com", "")
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), "Ana 2", "ANA@example.com", "")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestGetMissingUser(t *testing.T) {
	svc := NewUserService(userrepo.NewMemoryRepo())
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHandlerRegisterAndGet(t *testing.T) {
	h := NewHandler(NewUserService(userrepo.NewMemoryRepo()), zap.NewNop().Sugar())
	r := chi.NewRouter()
	r.Post("/users", h.Register)
	r.Get("/users/{id}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{"displayName":"Bo","email":"bo@example.com"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"user missing"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
