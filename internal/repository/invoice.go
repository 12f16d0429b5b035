package repository

import (
	"context"
	"fmt"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
)

// InvoiceRepository — хранилище записей notas fiscais (таблица invoice_records).
type InvoiceRepository interface {
	// Create сохраняет новую запись.
	Create(ctx context.Context, rec *model.InvoiceRecord) error
	// GetByID возвращает запись по ID.
	GetByID(ctx context.Context, id string) (*model.InvoiceRecord, error)
	// ListByOwner возвращает записи владельца, по дате эмиссии от новых к старым.
	ListByOwner(ctx context.Context, ownerUID string) ([]*model.InvoiceRecord, error)
	// Update перезаписывает изменяемые поля записи. Владелец не меняется.
	Update(ctx context.Context, rec *model.InvoiceRecord) error
	// Delete удаляет запись по ID.
	Delete(ctx context.Context, id string) error
}

type invoiceRepo struct {
	db DBTX
}

// NewInvoiceRepository создаёт репозиторий записей.
func NewInvoiceRepository(db DBTX) InvoiceRepository {
	return &invoiceRepo{db: db}
}

const invoiceColumns = `id, access_key, nf_number, issuer_name, COALESCE(issuer_tax_id, ''),
	issuance_date, total_value::float8, photo_url, owner_uid, created_at, updated_at`

func scanInvoice(row interface{ Scan(dest ...any) error }) (*model.InvoiceRecord, error) {
	rec := &model.InvoiceRecord{}
	err := row.Scan(
		&rec.ID, &rec.AccessKey, &rec.NFNumber, &rec.IssuerName, &rec.IssuerTaxID,
		&rec.IssuanceDate, &rec.TotalValue, &rec.PhotoURL, &rec.OwnerUID,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// nullIfEmpty преобразует пустую строку в NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *invoiceRepo) Create(ctx context.Context, rec *model.InvoiceRecord) error {
	query := `
		INSERT INTO invoice_records
			(id, access_key, nf_number, issuer_name, issuer_tax_id,
			 issuance_date, total_value, photo_url, owner_uid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.AccessKey, rec.NFNumber, rec.IssuerName, nullIfEmpty(rec.IssuerTaxID),
		rec.IssuanceDate, rec.TotalValue, rec.PhotoURL, rec.OwnerUID,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id string) (*model.InvoiceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoice_records WHERE id = $1`, invoiceColumns)

	rec, err := scanInvoice(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

func (r *invoiceRepo) ListByOwner(ctx context.Context, ownerUID string) ([]*model.InvoiceRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM invoice_records
		WHERE owner_uid = $1
		ORDER BY issuance_date DESC, created_at DESC`, invoiceColumns)

	rows, err := r.db.Query(ctx, query, ownerUID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	result := make([]*model.InvoiceRecord, 0)
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *invoiceRepo) Update(ctx context.Context, rec *model.InvoiceRecord) error {
	query := `
		UPDATE invoice_records SET
			access_key = $2,
			nf_number = $3,
			issuer_name = $4,
			issuer_tax_id = $5,
			issuance_date = $6,
			total_value = $7,
			photo_url = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.AccessKey, rec.NFNumber, rec.IssuerName, nullIfEmpty(rec.IssuerTaxID),
		rec.IssuanceDate, rec.TotalValue, rec.PhotoURL,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	return nil
}

func (r *invoiceRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM invoice_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
