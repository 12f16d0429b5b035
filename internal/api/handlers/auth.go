// auth.go — обработчики /auth: регистрация, текущий аккаунт, профиль.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/middleware"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// ProfilePhotoField — имя поля multipart с фото профиля.
const ProfilePhotoField = "photo"

// maxJSONBody — предел размера JSON-тела запросов /auth.
const maxJSONBody = 1 << 20

// AccountService — операции самообслуживания аккаунта.
type AccountService interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Account, error)
	Me(ctx context.Context, callerUID string) (*model.Account, error)
	UpdateProfile(ctx context.Context, callerUID string, phone *string) (*model.Account, error)
	UpdatePhoto(ctx context.Context, callerUID string, file *attachment.TempFile) (*model.Account, error)
}

// AuthHandler — обработчик /auth.
type AuthHandler struct {
	accounts      AccountService
	files         FileReceiver
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAuthHandler создаёт обработчик /auth.
func NewAuthHandler(accounts AccountService, files FileReceiver, maxUploadSize int64, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:      accounts,
		files:         files,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "auth_handler")),
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // входное поле запроса
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
}

type profileRequest struct {
	Phone *string `json:"phone"`
}

// Register — POST /auth/register. Не требует токена.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	acc, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка регистрации", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapAccount(acc))
}

// Me — GET /auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	acc, err := h.accounts.Me(r.Context(), middleware.SubjectFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка получения аккаунта", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// UpdateProfile — PUT /auth/profile. Меняется только телефон.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	acc, err := h.accounts.UpdateProfile(r.Context(), middleware.SubjectFromContext(r.Context()), req.Phone)
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка обновления профиля", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// UpdatePhoto — POST /auth/profile/photo, multipart с полем photo.
func (h *AuthHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r, h.maxUploadSize) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, err := receiveFile(r, h.files, ProfilePhotoField)
	if err != nil {
		h.logger.Error("Ошибка приёма файла", slog.String("error", err.Error()))
		apierrors.AttachmentError(w, "Ошибка приёма файла")
		return
	}

	acc, err := h.accounts.UpdatePhoto(r.Context(), middleware.SubjectFromContext(r.Context()), file)
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка обновления фото профиля", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}
