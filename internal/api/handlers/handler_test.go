package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/middleware"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *attachment.Store {
	t.Helper()
	root := t.TempDir()
	store, err := attachment.New(root, root+"/.incoming")
	require.NoError(t, err)
	return store
}

// asUser добавляет в запрос claims вызывающего.
func asUser(r *http.Request, uid string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &middleware.AuthClaims{Subject: uid}))
}

// serve прогоняет запрос через chi-роутер, чтобы URLParam работал.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// multipartBody собирает multipart-форму с полями и необязательным файлом.
func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

// --- mocks ---

type mockInvoiceService struct{ mock.Mock }

func (m *mockInvoiceService) List(ctx context.Context, uid string) ([]*model.InvoiceRecord, error) {
	args := m.Called(ctx, uid)
	recs, _ := args.Get(0).([]*model.InvoiceRecord)
	return recs, args.Error(1)
}

func (m *mockInvoiceService) Create(ctx context.Context, uid string, in service.InvoiceInput, file *attachment.TempFile) (*model.InvoiceRecord, error) {
	args := m.Called(ctx, uid, in, file)
	rec, _ := args.Get(0).(*model.InvoiceRecord)
	return rec, args.Error(1)
}

func (m *mockInvoiceService) Update(ctx context.Context, uid, id string, in service.InvoiceInput, file *attachment.TempFile) (*model.InvoiceRecord, error) {
	args := m.Called(ctx, uid, id, in, file)
	rec, _ := args.Get(0).(*model.InvoiceRecord)
	return rec, args.Error(1)
}

func (m *mockInvoiceService) Delete(ctx context.Context, uid, id string) error {
	return m.Called(ctx, uid, id).Error(0)
}

type mockAccountService struct{ mock.Mock }

func (m *mockAccountService) Register(ctx context.Context, in service.RegisterInput) (*model.Account, error) {
	args := m.Called(ctx, in)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *mockAccountService) Me(ctx context.Context, uid string) (*model.Account, error) {
	args := m.Called(ctx, uid)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *mockAccountService) UpdateProfile(ctx context.Context, uid string, phone *string) (*model.Account, error) {
	args := m.Called(ctx, uid, phone)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *mockAccountService) UpdatePhoto(ctx context.Context, uid string, file *attachment.TempFile) (*model.Account, error) {
	args := m.Called(ctx, uid, file)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

type mockAdminService struct{ mock.Mock }

func (m *mockAdminService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]*model.Account)
	return list, args.Error(1)
}

func (m *mockAdminService) ChangePassword(ctx context.Context, id, pw string) error {
	return m.Called(ctx, id, pw).Error(0)
}

func (m *mockAdminService) Block(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}

func (m *mockAdminService) Unblock(ctx context.Context, id string) (*model.Account, error) {
	args := m.Called(ctx, id)
	acc, _ := args.Get(0).(*model.Account)
	return acc, args.Error(1)
}
