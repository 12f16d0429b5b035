// admin.go — обработчики /admin/users. Доступ проверяет AdminGuard.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
)

// AdminService — административные операции над аккаунтами.
type AdminService interface {
	ListAccounts(ctx context.Context) ([]*model.Account, error)
	ChangePassword(ctx context.Context, id, newPassword string) error
	Block(ctx context.Context, id string) (*model.Account, error)
	Unblock(ctx context.Context, id string) (*model.Account, error)
}

// AdminHandler — обработчик /admin/users.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler создаёт обработчик /admin/users.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With(slog.String("component", "admin_handler")),
	}
}

type passwordRequest struct {
	NewPassword string `json:"newPassword"` //nolint:gosec // входное поле запроса
}

// ListUsers — GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.admin.ListAccounts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка получения списка аккаунтов", err)
		return
	}

	items := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		items[i] = mapAccount(a)
	}
	writeJSON(w, http.StatusOK, items)
}

// ChangePassword — PUT /admin/users/{id}/password.
func (h *AdminHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.admin.ChangePassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		writeServiceError(w, h.logger, "Ошибка смены пароля", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Пароль изменён"})
}

// Block — PUT /admin/users/{id}/block.
func (h *AdminHandler) Block(w http.ResponseWriter, r *http.Request) {
	acc, err := h.admin.Block(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка блокировки аккаунта", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}

// Unblock — PUT /admin/users/{id}/unblock.
func (h *AdminHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	acc, err := h.admin.Unblock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "Ошибка разблокировки аккаунта", err)
		return
	}
	writeJSON(w, http.StatusOK, mapAccount(acc))
}
