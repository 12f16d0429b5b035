package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/rbac"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/keycloak"
)

func newAccountService(t *testing.T, accounts ...model.Account) (*AccountService, *mockIDP, *fakeAccountRepo) {
	t.Helper()
	idp := &mockIDP{}
	t.Cleanup(func() { idp.AssertExpectations(t) })
	repo := newFakeAccountRepo(accounts...)
	return NewAccountService(idp, repo, newTestStore(t), testLogger()), idp, repo
}

func TestAccountService_Register(t *testing.T) {
	svc, idp, repo := newAccountService(t)

	idp.On("CreateUser", mock.Anything, keycloak.NewUser{
		Email:    "Ana@Example.com",
		Password: "segredo1",
		FullName: "Ana Souza",
	}).Return("kc-ana", nil).Once()

	acc, err := svc.Register(context.Background(), RegisterInput{
		Email:    " Ana@Example.com ",
		Password: "segredo1",
		FullName: "Ana Souza",
		Phone:    "+55 11 99999-0000",
	})
	require.NoError(t, err)

	assert.Equal(t, "kc-ana", acc.UID)
	assert.Equal(t, "ana@example.com", acc.Email)
	assert.Equal(t, rbac.RoleUser, acc.Role)
	assert.False(t, acc.IsBlocked)
	assert.Equal(t, "+55 11 99999-0000", acc.Phone)

	stored := repo.get(acc.ID)
	assert.Equal(t, "kc-ana", stored.UID)
}

func TestAccountService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name      string
		in        RegisterInput
		wantField string
	}{
		{"нет email", RegisterInput{Password: "segredo1", FullName: "Ana"}, "email"},
		{"некорректный email", RegisterInput{Email: "ana", Password: "segredo1", FullName: "Ana"}, "email"},
		{"email с именем", RegisterInput{Email: "Ana <ana@x.com>", Password: "segredo1", FullName: "Ana"}, "email"},
		{"нет пароля", RegisterInput{Email: "ana@x.com", FullName: "Ana"}, "password"},
		{"короткий пароль", RegisterInput{Email: "ana@x.com", Password: "12345", FullName: "Ana"}, "password"},
		{"нет имени", RegisterInput{Email: "ana@x.com", Password: "segredo1"}, "fullName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Identity Provider не должен вызываться: mock без ожиданий
			// упадёт на любом вызове.
			svc, _, _ := newAccountService(t)

			_, err := svc.Register(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestAccountService_RegisterIDPErrors(t *testing.T) {
	tests := []struct {
		name    string
		idpErr  error
		wantErr error
	}{
		{"email занят", &keycloak.APIError{Op: "создание", StatusCode: http.StatusConflict}, ErrConflict},
		{"Keycloak недоступен", errors.New("connection refused"), ErrIDPUnavailable},
		{"ошибка Keycloak", &keycloak.APIError{Op: "создание", StatusCode: http.StatusInternalServerError}, ErrIDPUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, idp, repo := newAccountService(t)
			idp.On("CreateUser", mock.Anything, mock.Anything).Return("", tt.idpErr).Once()

			_, err := svc.Register(context.Background(), RegisterInput{
				Email: "ana@x.com", Password: "segredo1", FullName: "Ana",
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, repo.accounts)
		})
	}
}

func TestAccountService_RegisterRollsBackIDPUser(t *testing.T) {
	svc, idp, repo := newAccountService(t)
	repo.createErr = errors.New("база недоступна")

	idp.On("CreateUser", mock.Anything, mock.Anything).Return("kc-ana", nil).Once()
	idp.On("DeleteUser", mock.Anything, "kc-ana").Return(nil).Once()

	_, err := svc.Register(context.Background(), RegisterInput{
		Email: "ana@x.com", Password: "segredo1", FullName: "Ana",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func TestAccountService_MeAndProfile(t *testing.T) {
	ana := model.Account{ID: "a1", UID: uidAna, Email: "ana@x.com", FullName: "Ana", Role: rbac.RoleUser}
	svc, _, _ := newAccountService(t, ana)
	ctx := context.Background()

	acc, err := svc.Me(ctx, uidAna)
	require.NoError(t, err)
	assert.Equal(t, "ana@x.com", acc.Email)

	_, err = svc.Me(ctx, "kc-unknown")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Me(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	acc, err = svc.UpdateProfile(ctx, uidAna, strPtr(" 11 5555-0000 "))
	require.NoError(t, err)
	assert.Equal(t, "11 5555-0000", acc.Phone)

	acc, err = svc.UpdateProfile(ctx, uidAna, nil)
	require.NoError(t, err)
	assert.Equal(t, "11 5555-0000", acc.Phone)

	_, err = svc.UpdateProfile(ctx, uidAna, strPtr("123456789012345678901234567890123"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccountService_UpdatePhotoReplacesOld(t *testing.T) {
	ana := model.Account{ID: "a1", UID: uidAna, Email: "ana@x.com", Role: rbac.RoleUser, CreatedAt: time.Now()}
	svc, _, _ := newAccountService(t, ana)
	ctx := context.Background()

	first, err := svc.UpdatePhoto(ctx, uidAna, receive(t, svc.attachments, "p1"))
	require.NoError(t, err)
	require.NotNil(t, first.PhotoURL)
	oldPhoto := *first.PhotoURL
	assert.True(t, svc.attachments.Exists(oldPhoto))

	tmp := receive(t, svc.attachments, "p2")
	second, err := svc.UpdatePhoto(ctx, uidAna, tmp)
	require.NoError(t, err)
	require.NotNil(t, second.PhotoURL)

	assert.NotEqual(t, oldPhoto, *second.PhotoURL)
	assert.True(t, svc.attachments.Exists(*second.PhotoURL))
	assert.False(t, svc.attachments.Exists(oldPhoto))
	assertTempGone(t, tmp.Path)
}

func TestAccountService_UpdatePhotoErrors(t *testing.T) {
	ana := model.Account{ID: "a1", UID: uidAna, Email: "ana@x.com", Role: rbac.RoleUser}
	svc, _, repo := newAccountService(t, ana)
	ctx := context.Background()

	_, err := svc.UpdatePhoto(ctx, uidAna, nil)
	assert.ErrorIs(t, err, ErrValidation)

	tmp := receive(t, svc.attachments, "p")
	_, err = svc.UpdatePhoto(ctx, "kc-unknown", tmp)
	assert.ErrorIs(t, err, ErrNotFound)
	assertTempGone(t, tmp.Path)

	repo.updatePicErr = errors.New("база недоступна")
	_, err = svc.UpdatePhoto(ctx, uidAna, receive(t, svc.attachments, "p"))
	require.Error(t, err)
	assert.Nil(t, repo.get("a1").PhotoURL)
}
