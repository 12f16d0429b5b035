// invoices.go — обработчики /notas: список, создание, изменение, удаление
// записей вызывающего. Поля принимаются из multipart-формы (с необязательным
// файлом foto) или из JSON-тела.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/middleware"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// InvoiceFileField — имя поля multipart с фотографией записи.
const InvoiceFileField = "foto"

// InvoiceService — операции над записями, нужные обработчикам.
type InvoiceService interface {
	List(ctx context.Context, callerUID string) ([]*model.InvoiceRecord, error)
	Create(ctx context.Context, callerUID string, in service.InvoiceInput, file *attachment.TempFile) (*model.InvoiceRecord, error)
	Update(ctx context.Context, callerUID, id string, in service.InvoiceInput, file *attachment.TempFile) (*model.InvoiceRecord, error)
	Delete(ctx context.Context, callerUID, id string) error
}

// fieldAliases — допустимые имена полей записи; первое имя основное.
var fieldAliases = []struct {
	names []string
	set   func(in *service.InvoiceInput, v *string)
}{
	{[]string{service.FieldAccessKey, "chave_acesso"}, func(in *service.InvoiceInput, v *string) { in.AccessKey = v }},
	{[]string{service.FieldNFNumber, "numero_nf"}, func(in *service.InvoiceInput, v *string) { in.NFNumber = v }},
	{[]string{service.FieldIssuerName, "emitente_nome"}, func(in *service.InvoiceInput, v *string) { in.IssuerName = v }},
	{[]string{service.FieldIssuerTaxID, "emitente_cnpj"}, func(in *service.InvoiceInput, v *string) { in.IssuerTaxID = v }},
	{[]string{service.FieldIssuanceDate, "data_emissao"}, func(in *service.InvoiceInput, v *string) { in.IssuanceDate = v }},
	{[]string{service.FieldTotalValue, "valor_total"}, func(in *service.InvoiceInput, v *string) { in.TotalValue = v }},
}

// InvoiceHandler — обработчик /notas.
type InvoiceHandler struct {
	invoices      InvoiceService
	files         FileReceiver
	maxUploadSize int64
	logger        *slog.Logger
}

// NewInvoiceHandler создаёт обработчик записей.
func NewInvoiceHandler(invoices InvoiceService, files FileReceiver, maxUploadSize int64, logger *slog.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoices:      invoices,
		files:         files,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "invoice_handler")),
	}
}

// List — GET /notas.
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.invoices.List(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка получения списка записей", err)
		return
	}

	items := make([]recordResponse, len(records))
	for i, rec := range records {
		items[i] = mapRecord(rec)
	}
	writeJSON(w, http.StatusOK, items)
}

// Create — POST /notas.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, file, ok := h.readInput(w, r)
	if !ok {
		return
	}

	rec, err := h.invoices.Create(r.Context(), middleware.SubjectFromContext(r.Context()), in, file)
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка создания записи", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapRecord(rec))
}

// Update — PUT /notas/{id}. Непереданные поля не меняются.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, file, ok := h.readInput(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := h.invoices.Update(r.Context(), middleware.SubjectFromContext(r.Context()), id, in, file)
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка обновления записи", err)
		return
	}
	writeJSON(w, http.StatusOK, mapRecord(rec))
}

// Delete — DELETE /notas/{id}.
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.invoices.Delete(r.Context(), middleware.SubjectFromContext(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, "Ошибка удаления записи", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Запись удалена"})
}

// readInput читает поля записи и необязательный файл.
// Файл принимается последним, после разбора всех полей.
func (h *InvoiceHandler) readInput(w http.ResponseWriter, r *http.Request) (service.InvoiceInput, *attachment.TempFile, bool) {
	var in service.InvoiceInput

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if !parseMultipart(w, r, h.maxUploadSize) {
			return in, nil, false
		}
		defer r.MultipartForm.RemoveAll()

		applyFields(&in, func(name string) (string, bool) {
			vals, ok := r.MultipartForm.Value[name]
			if !ok || len(vals) == 0 {
				return "", false
			}
			return vals[0], true
		})

		file, err := receiveFile(r, h.files, InvoiceFileField)
		if err != nil {
			h.logger.Error("Ошибка приёма файла", slog.String("error", err.Error()))
			apierrors.AttachmentError(w, "Ошибка приёма файла")
			return in, nil, false
		}
		return in, file, true

	case "application/json", "":
		fields, err := decodeJSONFields(http.MaxBytesReader(w, r.Body, h.maxUploadSize))
		if err != nil {
			apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
			return in, nil, false
		}
		applyFields(&in, func(name string) (string, bool) {
			v, ok := fields[name]
			return v, ok
		})
		return in, nil, true

	default:
		apierrors.ValidationError(w, fmt.Sprintf("Неподдерживаемый Content-Type %q", mediaType))
		return in, nil, false
	}
}

// applyFields заполняет InvoiceInput. Основное имя поля приоритетнее псевдонима.
func applyFields(in *service.InvoiceInput, lookup func(name string) (string, bool)) {
	for _, f := range fieldAliases {
		for _, name := range f.names {
			if v, ok := lookup(name); ok {
				f.set(in, &v)
				break
			}
		}
	}
}

// decodeJSONFields читает JSON-объект; значения-строки и числа приводятся
// к строкам, null означает «поле не передано».
func decodeJSONFields(body io.Reader) (map[string]string, error) {
	var raw map[string]any
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case string:
			fields[k] = val
		case json.Number:
			fields[k] = val.String()
		default:
			return nil, fmt.Errorf("поле %s должно быть строкой или числом", k)
		}
	}
	return fields, nil
}
