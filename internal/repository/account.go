package repository

import (
	"context"
	"fmt"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
)

// AccountRepository — хранилище аккаунтов (таблица accounts).
type AccountRepository interface {
	// Create сохраняет новый аккаунт. ErrConflict при дубликате uid или email.
	Create(ctx context.Context, a *model.Account) error
	// GetByID возвращает аккаунт по внутреннему ID.
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByUID возвращает аккаунт по uid субъекта Keycloak.
	GetByUID(ctx context.Context, uid string) (*model.Account, error)
	// List возвращает все аккаунты, новые первыми.
	List(ctx context.Context) ([]*model.Account, error)
	// SetBlocked устанавливает флаг блокировки и возвращает обновлённый аккаунт.
	SetBlocked(ctx context.Context, id string, blocked bool) (*model.Account, error)
	// UpdatePhone меняет телефон аккаунта с указанным uid.
	UpdatePhone(ctx context.Context, uid, phone string) (*model.Account, error)
	// UpdatePhoto меняет ссылку на фото профиля аккаунта с указанным uid.
	UpdatePhoto(ctx context.Context, uid string, photoURL *string) (*model.Account, error)
}

type accountRepo struct {
	db DBTX
}

// NewAccountRepository создаёт репозиторий аккаунтов.
func NewAccountRepository(db DBTX) AccountRepository {
	return &accountRepo{db: db}
}

const accountColumns = `id, uid, email, full_name, phone, photo_url, role, is_blocked, created_at, updated_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(
		&a.ID, &a.UID, &a.Email, &a.FullName, &a.Phone, &a.PhotoURL,
		&a.Role, &a.IsBlocked, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func (r *accountRepo) Create(ctx context.Context, a *model.Account) error {
	query := `
		INSERT INTO accounts (id, uid, email, full_name, phone, photo_url, role, is_blocked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.UID, a.Email, a.FullName, a.Phone, a.PhotoURL, a.Role, a.IsBlocked,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания аккаунта: %w", err)
	}
	return nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns), id)
}

func (r *accountRepo) GetByUID(ctx context.Context, uid string) (*model.Account, error) {
	return r.getOne(ctx, fmt.Sprintf(`SELECT %s FROM accounts WHERE uid = $1`, accountColumns), uid)
}

func (r *accountRepo) List(ctx context.Context) ([]*model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts ORDER BY created_at DESC`, accountColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка аккаунтов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования аккаунта: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *accountRepo) SetBlocked(ctx context.Context, id string, blocked bool) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts SET is_blocked = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, accountColumns)
	return r.getOne(ctx, query, id, blocked)
}

func (r *accountRepo) UpdatePhone(ctx context.Context, uid, phone string) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts SET phone = $2, updated_at = NOW()
		WHERE uid = $1
		RETURNING %s`, accountColumns)
	return r.getOne(ctx, query, uid, phone)
}

func (r *accountRepo) UpdatePhoto(ctx context.Context, uid string, photoURL *string) (*model.Account, error) {
	query := fmt.Sprintf(`
		UPDATE accounts SET photo_url = $2, updated_at = NOW()
		WHERE uid = $1
		RETURNING %s`, accountColumns)
	return r.getOne(ctx, query, uid, photoURL)
}

// getOne выполняет запрос, возвращающий одну строку аккаунта.
func (r *accountRepo) getOne(ctx context.Context, query string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения аккаунта: %w", err)
	}
	return a, nil
}
