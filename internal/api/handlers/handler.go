// Пакет handlers — HTTP-обработчики notas-api.
// handler.go — общие функции: JSON-ответы, отображение ошибок сервисов,
// приём файлов из multipart-запросов.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// multipartMemory — часть multipart-формы, хранимая в памяти; остальное уходит на диск.
const multipartMemory = 8 << 20

// FileReceiver принимает загруженный файл во временную область.
// Реализуется *attachment.Store.
type FileReceiver interface {
	Receive(reader io.Reader, originalName string) (*attachment.TempFile, error)
}

// messageResponse — ответ-подтверждение.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Серверные ошибки логируются с деталями; клиент получает короткое сообщение.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, "Требуется аутентификация")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Доступ запрещён")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ресурс не найден")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Ресурс уже существует")
	case errors.Is(err, service.ErrIDPUnavailable):
		logger.Error(op, slog.String("error", err.Error()))
		apierrors.IDPUnavailable(w, "Identity Provider недоступен")
	case errors.Is(err, attachment.ErrMissing),
		errors.Is(err, attachment.ErrPlacementFailed),
		errors.Is(err, attachment.ErrInvalidPath):
		logger.Error(op, slog.String("error", err.Error()))
		apierrors.AttachmentError(w, "Ошибка сохранения файла")
	default:
		logger.Error(op, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// parseMultipart разбирает multipart-форму с ограничением размера тела.
// Возвращает false, если ответ с ошибкой уже записан.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxSize int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.ValidationError(w, "Размер запроса превышает допустимый")
			return false
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return false
	}
	return true
}

// receiveFile переносит файл поля field во временную область.
// Отсутствие файла — не ошибка: возвращается nil.
func receiveFile(r *http.Request, files FileReceiver, field string) (*attachment.TempFile, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return files.Receive(file, header.Filename)
}

// --- Маппинг domain → API ---

// recordResponse — запись notas fiscais в ответе API.
type recordResponse struct {
	ID           string    `json:"id"`
	AccessKey    string    `json:"access_key"`
	NFNumber     string    `json:"nf_number"`
	IssuerName   string    `json:"issuer_name"`
	IssuerTaxID  *string   `json:"issuer_tax_id"`
	IssuanceDate string    `json:"issuance_date"`
	TotalValue   float64   `json:"total_value"`
	FotoURL      *string   `json:"foto_url"`
	OwnerUID     string    `json:"owner_uid"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func mapRecord(rec *model.InvoiceRecord) recordResponse {
	resp := recordResponse{
		ID:           rec.ID,
		AccessKey:    rec.AccessKey,
		NFNumber:     rec.NFNumber,
		IssuerName:   rec.IssuerName,
		IssuanceDate: rec.IssuanceDate.Format(time.DateOnly),
		TotalValue:   rec.TotalValue,
		OwnerUID:     rec.OwnerUID,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	if rec.IssuerTaxID != "" {
		taxID := rec.IssuerTaxID
		resp.IssuerTaxID = &taxID
	}
	if rec.HasAttachment() {
		photo := *rec.PhotoURL
		resp.FotoURL = &photo
	}
	return resp
}

// accountResponse — аккаунт в ответе API. Учётные данные не хранятся и не отдаются.
type accountResponse struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone"`
	PhotoURL  *string   `json:"photoURL"`
	Role      string    `json:"role"`
	IsBlocked bool      `json:"isBlocked"`
	CreatedAt time.Time `json:"createdAt"`
}

func mapAccount(a *model.Account) accountResponse {
	resp := accountResponse{
		ID:        a.ID,
		UID:       a.UID,
		Email:     a.Email,
		FullName:  a.FullName,
		Phone:     a.Phone,
		Role:      a.Role,
		IsBlocked: a.IsBlocked,
		CreatedAt: a.CreatedAt,
	}
	if a.PhotoURL != nil && *a.PhotoURL != "" {
		photo := *a.PhotoURL
		resp.PhotoURL = &photo
	}
	return resp
}
