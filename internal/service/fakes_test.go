package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/keycloak"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

// newTestStore создаёт хранилище вложений во временном каталоге.
func newTestStore(t *testing.T) *attachment.Store {
	t.Helper()
	root := t.TempDir()
	store, err := attachment.New(root, root+"/.incoming")
	require.NoError(t, err)
	return store
}

// receive кладёт во временную область файл с указанным содержимым.
func receive(t *testing.T, store *attachment.Store, content string) *attachment.TempFile {
	t.Helper()
	tmp, err := store.Receive(strings.NewReader(content), "nota.jpg")
	require.NoError(t, err)
	return tmp
}

// --- invoice repository ---

type fakeInvoiceRepo struct {
	mu        sync.Mutex
	records   map[string]model.InvoiceRecord
	createErr error
	updateErr error
	deleteErr error
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{records: make(map[string]model.InvoiceRecord)}
}

func (f *fakeInvoiceRepo) Create(_ context.Context, rec *model.InvoiceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*model.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeInvoiceRepo) ListByOwner(_ context.Context, ownerUID string) ([]*model.InvoiceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.InvoiceRecord, 0)
	for _, rec := range f.records {
		if rec.OwnerUID == ownerUID {
			r := rec
			result = append(result, &r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IssuanceDate.After(result[j].IssuanceDate)
	})
	return result, nil
}

func (f *fakeInvoiceRepo) Update(_ context.Context, rec *model.InvoiceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.records[rec.ID]; !ok {
		return repository.ErrNotFound
	}
	rec.UpdatedAt = time.Now().UTC()
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeInvoiceRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeInvoiceRepo) get(id string) (model.InvoiceRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

// --- account repository ---

type fakeAccountRepo struct {
	mu           sync.Mutex
	accounts     map[string]model.Account
	createErr    error
	setBlockErr  error
	updatePicErr error
}

func newFakeAccountRepo(accounts ...model.Account) *fakeAccountRepo {
	f := &fakeAccountRepo{accounts: make(map[string]model.Account)}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccountRepo) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.accounts {
		if existing.UID == a.UID || existing.Email == a.Email {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	f.accounts[a.ID] = *a
	return nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAccountRepo) GetByUID(_ context.Context, uid string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.UID == uid {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepo) List(_ context.Context) ([]*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]*model.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		acc := a
		result = append(result, &acc)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (f *fakeAccountRepo) SetBlocked(_ context.Context, id string, blocked bool) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setBlockErr != nil {
		return nil, f.setBlockErr
	}
	a, ok := f.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.IsBlocked = blocked
	f.accounts[id] = a
	return &a, nil
}

func (f *fakeAccountRepo) UpdatePhone(_ context.Context, uid, phone string) (*model.Account, error) {
	return f.mutateByUID(uid, func(a *model.Account) { a.Phone = phone }, nil)
}

func (f *fakeAccountRepo) UpdatePhoto(_ context.Context, uid string, photoURL *string) (*model.Account, error) {
	return f.mutateByUID(uid, func(a *model.Account) { a.PhotoURL = photoURL }, f.updatePicErr)
}

func (f *fakeAccountRepo) mutateByUID(uid string, fn func(*model.Account), failWith error) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if failWith != nil {
		return nil, failWith
	}
	for id, a := range f.accounts {
		if a.UID == uid {
			fn(&a)
			f.accounts[id] = a
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountRepo) get(id string) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

// --- identity provider ---

type mockIDP struct {
	mock.Mock
}

func (m *mockIDP) CreateUser(ctx context.Context, u keycloak.NewUser) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *mockIDP) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockIDP) ResetPassword(ctx context.Context, id, password string) error {
	return m.Called(ctx, id, password).Error(0)
}

func (m *mockIDP) SetUserEnabled(ctx context.Context, id string, enabled bool) error {
	return m.Called(ctx, id, enabled).Error(0)
}
