package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/rbac"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

func sampleAccount() *model.Account {
	return &model.Account{
		ID:        "0b7c1a7e-6c1f-4f0a-9a55-1f4c2d6e8a01",
		UID:       "kc-ana",
		Email:     "a@x.com",
		FullName:  "Ana",
		Role:      rbac.RoleUser,
		CreatedAt: time.Date(2025, 11, 9, 12, 0, 0, 0, time.UTC),
	}
}

func newAuthHandler(t *testing.T) (*AuthHandler, *mockAccountService) {
	t.Helper()
	svc := &mockAccountService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return NewAuthHandler(svc, newTestStore(t), 1<<20, testLogger()), svc
}

func TestAuthHandler_Register(t *testing.T) {
	h, svc := newAuthHandler(t)
	svc.On("Register", mock.Anything, service.RegisterInput{
		Email: "a@x.com", Password: "secret1", FullName: "Ana",
	}).Return(sampleAccount(), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"a@x.com","password":"secret1","fullName":"Ana"}`))
	rec := serve(http.MethodPost, "/auth/register", h.Register, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, false, body["isBlocked"])
	assert.Equal(t, "Ana", body["fullName"])
	assert.NotContains(t, body, "password")
}

func TestAuthHandler_RegisterErrors(t *testing.T) {
	h, svc := newAuthHandler(t)
	svc.On("Register", mock.Anything, mock.Anything).Return(nil, service.ErrConflict).Once()

	req := httptest.NewRequest(http.MethodPost, "/auth/register",
		strings.NewReader(`{"email":"a@x.com","password":"secret1","fullName":"Ana"}`))
	rec := serve(http.MethodPost, "/auth/register", h.Register, req)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeError(t, rec).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`not json`))
	rec = serve(http.MethodPost, "/auth/register", h.Register, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Me(t *testing.T) {
	h, svc := newAuthHandler(t)
	svc.On("Me", mock.Anything, "kc-ana").Return(sampleAccount(), nil).Once()
	svc.On("Me", mock.Anything, "kc-ghost").Return(nil, service.ErrNotFound).Once()

	rec := serve(http.MethodGet, "/auth/me", h.Me,
		asUser(httptest.NewRequest(http.MethodGet, "/auth/me", http.NoBody), "kc-ana"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"uid":"kc-ana"`)
	assert.Contains(t, rec.Body.String(), `"photoURL":null`)

	rec = serve(http.MethodGet, "/auth/me", h.Me,
		asUser(httptest.NewRequest(http.MethodGet, "/auth/me", http.NoBody), "kc-ghost"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	h, svc := newAuthHandler(t)
	acc := sampleAccount()
	acc.Phone = "11 5555-0000"
	svc.On("UpdateProfile", mock.Anything, "kc-ana",
		mock.MatchedBy(func(p *string) bool { return p != nil && *p == "11 5555-0000" }),
	).Return(acc, nil).Once()

	req := asUser(httptest.NewRequest(http.MethodPut, "/auth/profile",
		strings.NewReader(`{"phone":"11 5555-0000"}`)), "kc-ana")
	rec := serve(http.MethodPut, "/auth/profile", h.UpdateProfile, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phone":"11 5555-0000"`)
}

func TestAuthHandler_UpdatePhoto(t *testing.T) {
	h, svc := newAuthHandler(t)
	acc := sampleAccount()
	photo := "profiles/profile-1-abc.png"
	acc.PhotoURL = &photo

	svc.On("UpdatePhoto", mock.Anything, "kc-ana",
		mock.MatchedBy(func(f *attachment.TempFile) bool { return f != nil && f.Size == 3 }),
	).Return(acc, nil).Once()

	body, contentType := multipartBody(t, nil, ProfilePhotoField, "me.png", "png")
	req := asUser(httptest.NewRequest(http.MethodPost, "/auth/profile/photo", body), "kc-ana")
	req.Header.Set("Content-Type", contentType)
	rec := serve(http.MethodPost, "/auth/profile/photo", h.UpdatePhoto, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), photo)
}
