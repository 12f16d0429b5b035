// admin_accounts.go — административные операции над аккаунтами:
// список, смена пароля, блокировка и разблокировка.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/rbac"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
)

// AdminAccountService — управление аккаунтами для администраторов.
// Состояние блокировки согласуется между БД и Keycloak: сначала меняется
// Keycloak, при ошибке записи в БД изменение Keycloak откатывается.
type AdminAccountService struct {
	idp      IdentityProvider
	accounts repository.AccountRepository
	logger   *slog.Logger

	// forgetAccess сбрасывает кэш прав доступа по uid; может быть nil.
	forgetAccess func(uid string)
}

// NewAdminAccountService создаёт сервис управления аккаунтами.
func NewAdminAccountService(
	idp IdentityProvider,
	accounts repository.AccountRepository,
	logger *slog.Logger,
) *AdminAccountService {
	return &AdminAccountService{
		idp:      idp,
		accounts: accounts,
		logger:   logger.With(slog.String("component", "admin_accounts_service")),
	}
}

// SetAccessInvalidator подключает сброс кэша прав доступа (AdminGuard.Forget).
// Вызывается после каждого изменения блокировки.
func (s *AdminAccountService) SetAccessInvalidator(forget func(uid string)) {
	s.forgetAccess = forget
}

// ListAccounts возвращает все аккаунты, новые первыми.
func (s *AdminAccountService) ListAccounts(ctx context.Context) ([]*model.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, mapRepoErr("получение списка аккаунтов", err)
	}
	return accounts, nil
}

// ChangePassword задаёт новый пароль аккаунта в Keycloak. БД не меняется.
func (s *AdminAccountService) ChangePassword(ctx context.Context, id, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return validationErr("newPassword", fmt.Sprintf("должно содержать не менее %d символов", MinPasswordLength))
	}

	acc, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.idp.ResetPassword(ctx, acc.UID, newPassword); err != nil {
		return mapIDPErr("смена пароля", err)
	}

	s.logger.Info("Пароль аккаунта изменён администратором", slog.String("account_id", acc.ID))
	return nil
}

// Block блокирует аккаунт. Аккаунт администратора заблокировать нельзя.
func (s *AdminAccountService) Block(ctx context.Context, id string) (*model.Account, error) {
	acc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rbac.CanBlock(acc.Role) {
		s.logger.Warn("Попытка заблокировать администратора", slog.String("account_id", acc.ID))
		return nil, ErrForbidden
	}

	return s.setBlocked(ctx, acc, true)
}

// Unblock снимает блокировку. Повторная разблокировка не является ошибкой.
func (s *AdminAccountService) Unblock(ctx context.Context, id string) (*model.Account, error) {
	acc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.setBlocked(ctx, acc, false)
}

// setBlocked применяет состояние сначала в Keycloak, затем в БД.
func (s *AdminAccountService) setBlocked(ctx context.Context, acc *model.Account, blocked bool) (*model.Account, error) {
	if err := s.idp.SetUserEnabled(ctx, acc.UID, !blocked); err != nil {
		return nil, mapIDPErr("изменение статуса пользователя", err)
	}

	updated, err := s.accounts.SetBlocked(ctx, acc.ID, blocked)
	if err != nil {
		if rbErr := s.idp.SetUserEnabled(ctx, acc.UID, blocked); rbErr != nil {
			s.logger.Error("Не удалось откатить статус пользователя в Keycloak",
				slog.String("account_id", acc.ID),
				slog.Bool("blocked", blocked),
				slog.String("error", rbErr.Error()),
			)
		}
		return nil, mapRepoErr("изменение статуса аккаунта", err)
	}

	if s.forgetAccess != nil {
		s.forgetAccess(acc.UID)
	}

	s.logger.Info("Статус блокировки аккаунта изменён",
		slog.String("account_id", acc.ID),
		slog.Bool("blocked", blocked),
	)
	return updated, nil
}

// get загружает аккаунт по ID; некорректный ID не отличается от отсутствующего.
func (s *AdminAccountService) get(ctx context.Context, id string) (*model.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("получение аккаунта", err)
	}
	return acc, nil
}
