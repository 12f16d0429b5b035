// Пакет service — бизнес-логика notas-api.
// invoices.go — сервис записей notas fiscais: владение, валидация,
// координация размещения вложений с сохранением записи.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// Имена полей записи во входных данных.
const (
	FieldAccessKey    = "access_key"
	FieldNFNumber     = "nf_number"
	FieldIssuerName   = "issuer_name"
	FieldIssuerTaxID  = "issuer_tax_id"
	FieldIssuanceDate = "issuance_date"
	FieldTotalValue   = "total_value"
)

// Ограничения колонок invoice_records.
const (
	// MaxAccessKeyLength — access_key VARCHAR(64).
	MaxAccessKeyLength = 64
	// MaxTotalValue — верхняя граница NUMERIC(14, 2), не включая.
	MaxTotalValue = 1e12
)

// InvoiceInput — поля записи из запроса. nil означает «поле не передано».
type InvoiceInput struct {
	AccessKey    *string
	NFNumber     *string
	IssuerName   *string
	IssuerTaxID  *string
	IssuanceDate *string
	TotalValue   *string
}

// InvoiceService — операции над записями notas fiscais.
// Изменять и удалять запись может только её владелец.
type InvoiceService struct {
	repo        repository.InvoiceRepository
	attachments *attachment.Store
	logger      *slog.Logger
}

// NewInvoiceService создаёт сервис записей.
func NewInvoiceService(
	repo repository.InvoiceRepository,
	attachments *attachment.Store,
	logger *slog.Logger,
) *InvoiceService {
	return &InvoiceService{
		repo:        repo,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "invoice_service")),
	}
}

// List возвращает записи вызывающего, по дате эмиссии от новых к старым.
func (s *InvoiceService) List(ctx context.Context, callerUID string) ([]*model.InvoiceRecord, error) {
	if callerUID == "" {
		return nil, ErrUnauthenticated
	}

	records, err := s.repo.ListByOwner(ctx, callerUID)
	if err != nil {
		return nil, mapRepoErr("получение списка записей", err)
	}
	return records, nil
}

// Create создаёт запись, владельцем которой становится вызывающий.
// file может быть nil. Временный файл удаляется при любом исходе.
func (s *InvoiceService) Create(
	ctx context.Context,
	callerUID string,
	in InvoiceInput,
	file *attachment.TempFile,
) (*model.InvoiceRecord, error) {
	defer s.discard(file)

	if callerUID == "" {
		return nil, ErrUnauthenticated
	}

	required := []struct {
		name string
		val  *string
	}{
		{FieldAccessKey, in.AccessKey},
		{FieldNFNumber, in.NFNumber},
		{FieldIssuerName, in.IssuerName},
		{FieldIssuanceDate, in.IssuanceDate},
		{FieldTotalValue, in.TotalValue},
	}
	for _, f := range required {
		if f.val == nil || strings.TrimSpace(*f.val) == "" {
			return nil, validationErr(f.name, "обязательно")
		}
	}

	accessKey, err := parseAccessKey(*in.AccessKey)
	if err != nil {
		return nil, err
	}
	value, err := parseTotalValue(*in.TotalValue)
	if err != nil {
		return nil, err
	}
	date, err := parseIssuanceDate(*in.IssuanceDate)
	if err != nil {
		return nil, err
	}

	rec := &model.InvoiceRecord{
		ID:           uuid.NewString(),
		AccessKey:    accessKey,
		NFNumber:     strings.TrimSpace(*in.NFNumber),
		IssuerName:   strings.TrimSpace(*in.IssuerName),
		IssuanceDate: date,
		TotalValue:   value,
		OwnerUID:     callerUID,
	}
	if in.IssuerTaxID != nil {
		rec.IssuerTaxID = strings.TrimSpace(*in.IssuerTaxID)
	}

	if file != nil {
		rel, err := s.attachments.Place(file.Path, date)
		if err != nil {
			return nil, fmt.Errorf("размещение вложения: %w", err)
		}
		rec.PhotoURL = &rel
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		if rec.PhotoURL != nil {
			s.removeAttachment(*rec.PhotoURL)
		}
		return nil, mapRepoErr("создание записи", err)
	}

	s.logger.Info("Запись создана",
		slog.String("record_id", rec.ID),
		slog.String("owner_uid", callerUID),
		slog.Bool("attachment", rec.PhotoURL != nil),
	)
	return rec, nil
}

// Update частично обновляет запись. Непереданные поля сохраняют значения.
// Новое вложение заменяет старое; старый файл удаляется после сохранения записи.
func (s *InvoiceService) Update(
	ctx context.Context,
	callerUID, id string,
	in InvoiceInput,
	file *attachment.TempFile,
) (*model.InvoiceRecord, error) {
	defer s.discard(file)

	rec, err := s.getOwned(ctx, callerUID, id)
	if err != nil {
		return nil, err
	}

	if err := applyInput(rec, in); err != nil {
		return nil, err
	}

	var oldPhoto, newPhoto string
	if file != nil {
		newPhoto, err = s.attachments.Place(file.Path, rec.IssuanceDate)
		if err != nil {
			return nil, fmt.Errorf("размещение вложения: %w", err)
		}
		if rec.HasAttachment() {
			oldPhoto = *rec.PhotoURL
		}
		rec.PhotoURL = &newPhoto
	}

	if err := s.repo.Update(ctx, rec); err != nil {
		if newPhoto != "" {
			s.removeAttachment(newPhoto)
		}
		return nil, mapRepoErr("обновление записи", err)
	}

	if oldPhoto != "" {
		s.removeAttachment(oldPhoto)
	}

	s.logger.Info("Запись обновлена",
		slog.String("record_id", rec.ID),
		slog.Bool("attachment_replaced", newPhoto != ""),
	)
	return rec, nil
}

// Delete удаляет запись и её вложение. Отсутствующий файл не считается ошибкой.
func (s *InvoiceService) Delete(ctx context.Context, callerUID, id string) error {
	rec, err := s.getOwned(ctx, callerUID, id)
	if err != nil {
		return err
	}

	if rec.HasAttachment() {
		if err := s.attachments.Delete(*rec.PhotoURL); err != nil {
			return fmt.Errorf("удаление вложения: %w", err)
		}
	}

	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		return mapRepoErr("удаление записи", err)
	}

	s.logger.Info("Запись удалена", slog.String("record_id", rec.ID))
	return nil
}

// getOwned загружает запись и проверяет, что вызывающий — её владелец.
// Некорректный ID не отличается от отсутствующей записи.
func (s *InvoiceService) getOwned(ctx context.Context, callerUID, id string) (*model.InvoiceRecord, error) {
	if callerUID == "" {
		return nil, ErrUnauthenticated
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("получение записи", err)
	}
	if !rec.OwnedBy(callerUID) {
		s.logger.Warn("Попытка доступа к чужой записи",
			slog.String("record_id", id),
			slog.String("caller_uid", callerUID),
		)
		return nil, ErrForbidden
	}
	return rec, nil
}

// applyInput переносит переданные поля в запись. Обязательные поля
// не могут стать пустыми; пустой CNPJ очищает значение.
func applyInput(rec *model.InvoiceRecord, in InvoiceInput) error {
	text := []struct {
		name string
		val  *string
		dst  *string
	}{
		{FieldAccessKey, in.AccessKey, &rec.AccessKey},
		{FieldNFNumber, in.NFNumber, &rec.NFNumber},
		{FieldIssuerName, in.IssuerName, &rec.IssuerName},
	}
	for _, f := range text {
		if f.val == nil {
			continue
		}
		v := strings.TrimSpace(*f.val)
		if v == "" {
			return validationErr(f.name, "не может быть пустым")
		}
		*f.dst = v
	}
	if in.AccessKey != nil {
		if _, err := parseAccessKey(rec.AccessKey); err != nil {
			return err
		}
	}

	if in.IssuerTaxID != nil {
		rec.IssuerTaxID = strings.TrimSpace(*in.IssuerTaxID)
	}

	if in.TotalValue != nil {
		v, err := parseTotalValue(*in.TotalValue)
		if err != nil {
			return err
		}
		rec.TotalValue = v
	}
	if in.IssuanceDate != nil {
		d, err := parseIssuanceDate(*in.IssuanceDate)
		if err != nil {
			return err
		}
		rec.IssuanceDate = d
	}
	return nil
}

// parseAccessKey проверяет длину ключа доступа.
func parseAccessKey(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", validationErr(FieldAccessKey, "обязательно")
	}
	if utf8.RuneCountInString(s) > MaxAccessKeyLength {
		return "", validationErr(FieldAccessKey, fmt.Sprintf("не длиннее %d символов", MaxAccessKeyLength))
	}
	return s, nil
}

// parseTotalValue разбирает неотрицательную сумму. Допускается десятичная запятая.
// Результат округлён до копеек так же, как его сохранит NUMERIC(14, 2).
func parseTotalValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, validationErr(FieldTotalValue, "обязательно")
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, validationErr(FieldTotalValue, "должно быть числом")
	}
	if v < 0 {
		return 0, validationErr(FieldTotalValue, "не может быть отрицательным")
	}
	v = roundCents(v)
	if v >= MaxTotalValue {
		return 0, validationErr(FieldTotalValue, "слишком большое")
	}
	return v, nil
}

// roundCents округляет неотрицательное v до двух знаков, половину от нуля,
// по десятичной записи числа (150.005 → 150.01), как это делает PostgreSQL.
func roundCents(v float64) float64 {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(v, 'f', -1, 64))
	if !ok {
		return v
	}
	r.Mul(r, big.NewRat(100, 1))

	// floor((2·num + den) / (2·den))
	num := new(big.Int).Lsh(r.Num(), 1)
	num.Add(num, r.Denom())
	den := new(big.Int).Lsh(r.Denom(), 1)
	cents, _ := new(big.Rat).SetFrac(new(big.Int).Quo(num, den), big.NewInt(100)).Float64()
	return cents
}

// parseIssuanceDate разбирает календарную дату (YYYY-MM-DD или RFC 3339).
// Время отбрасывается, результат — полночь UTC.
func parseIssuanceDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, validationErr(FieldIssuanceDate, "обязательно")
	}

	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, validationErr(FieldIssuanceDate, "должно быть датой в формате YYYY-MM-DD")
		}
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// discard удаляет временный файл запроса. Ошибка только логируется.
func (s *InvoiceService) discard(file *attachment.TempFile) {
	if file == nil {
		return
	}
	if err := s.attachments.Discard(file.Path); err != nil {
		s.logger.Warn("Не удалось удалить временный файл",
			slog.String("path", file.Path),
			slog.String("error", err.Error()),
		)
	}
}

// removeAttachment удаляет размещённый файл. Ошибка только логируется.
func (s *InvoiceService) removeAttachment(rel string) {
	if err := s.attachments.Delete(rel); err != nil {
		s.logger.Warn("Не удалось удалить вложение",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}
