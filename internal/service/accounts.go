// accounts.go — регистрация и профиль текущего пользователя.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/rbac"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/keycloak"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// MinPasswordLength — минимальная длина пароля.
const MinPasswordLength = 6

const maxPhoneLength = 32

// IdentityProvider — операции Identity Provider, нужные сервисам.
// Реализуется *keycloak.Client.
type IdentityProvider interface {
	CreateUser(ctx context.Context, u keycloak.NewUser) (string, error)
	DeleteUser(ctx context.Context, id string) error
	ResetPassword(ctx context.Context, id, password string) error
	SetUserEnabled(ctx context.Context, id string, enabled bool) error
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Email    string
	Password string //nolint:gosec // передаётся в Keycloak и нигде не хранится
	FullName string
	Phone    string
}

// AccountService — регистрация и самообслуживание аккаунта.
type AccountService struct {
	idp         IdentityProvider
	accounts    repository.AccountRepository
	attachments *attachment.Store
	logger      *slog.Logger
}

// NewAccountService создаёт сервис аккаунтов.
func NewAccountService(
	idp IdentityProvider,
	accounts repository.AccountRepository,
	attachments *attachment.Store,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		idp:         idp,
		accounts:    accounts,
		attachments: attachments,
		logger:      logger.With(slog.String("component", "account_service")),
	}
}

// Register создаёт пользователя в Keycloak, затем аккаунт в БД с ролью user.
// Если аккаунт не удалось сохранить, пользователь Keycloak удаляется.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	email := strings.TrimSpace(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	phone := strings.TrimSpace(in.Phone)

	switch {
	case email == "":
		return nil, validationErr("email", "обязательно")
	case !validEmail(email):
		return nil, validationErr("email", "должно быть корректным адресом")
	case in.Password == "":
		return nil, validationErr("password", "обязательно")
	case utf8.RuneCountInString(in.Password) < MinPasswordLength:
		return nil, validationErr("password", fmt.Sprintf("должно содержать не менее %d символов", MinPasswordLength))
	case fullName == "":
		return nil, validationErr("fullName", "обязательно")
	case utf8.RuneCountInString(phone) > maxPhoneLength:
		return nil, validationErr("phone", "слишком длинное")
	}

	subject, err := s.idp.CreateUser(ctx, keycloak.NewUser{
		Email:    email,
		Password: in.Password,
		FullName: fullName,
	})
	if err != nil {
		return nil, mapIDPErr("создание пользователя", err)
	}

	acc := &model.Account{
		ID:       uuid.NewString(),
		UID:      subject,
		Email:    strings.ToLower(email),
		FullName: fullName,
		Phone:    phone,
		Role:     rbac.RoleUser,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if delErr := s.idp.DeleteUser(ctx, subject); delErr != nil {
			s.logger.Error("Не удалось откатить пользователя Keycloak",
				slog.String("uid", subject),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, mapRepoErr("создание аккаунта", err)
	}

	s.logger.Info("Пользователь зарегистрирован",
		slog.String("account_id", acc.ID),
		slog.String("uid", subject),
	)
	return acc, nil
}

// Me возвращает аккаунт вызывающего.
func (s *AccountService) Me(ctx context.Context, callerUID string) (*model.Account, error) {
	if callerUID == "" {
		return nil, ErrUnauthenticated
	}

	acc, err := s.accounts.GetByUID(ctx, callerUID)
	if err != nil {
		return nil, mapRepoErr("получение аккаунта", err)
	}
	return acc, nil
}

// UpdateProfile меняет телефон вызывающего. nil — без изменений.
func (s *AccountService) UpdateProfile(ctx context.Context, callerUID string, phone *string) (*model.Account, error) {
	if callerUID == "" {
		return nil, ErrUnauthenticated
	}
	if phone == nil {
		return s.Me(ctx, callerUID)
	}

	p := strings.TrimSpace(*phone)
	if utf8.RuneCountInString(p) > maxPhoneLength {
		return nil, validationErr("phone", "слишком длинное")
	}

	acc, err := s.accounts.UpdatePhone(ctx, callerUID, p)
	if err != nil {
		return nil, mapRepoErr("обновление профиля", err)
	}
	return acc, nil
}

// UpdatePhoto заменяет фото профиля вызывающего. Старый файл удаляется.
func (s *AccountService) UpdatePhoto(ctx context.Context, callerUID string, file *attachment.TempFile) (*model.Account, error) {
	if file != nil {
		defer func() {
			if err := s.attachments.Discard(file.Path); err != nil {
				s.logger.Warn("Не удалось удалить временный файл",
					slog.String("path", file.Path),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if callerUID == "" {
		return nil, ErrUnauthenticated
	}
	if file == nil {
		return nil, validationErr("photo", "обязательно")
	}

	current, err := s.accounts.GetByUID(ctx, callerUID)
	if err != nil {
		return nil, mapRepoErr("получение аккаунта", err)
	}

	rel, err := s.attachments.PlaceProfile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("размещение фото профиля: %w", err)
	}

	updated, err := s.accounts.UpdatePhoto(ctx, callerUID, &rel)
	if err != nil {
		s.deleteQuietly(rel)
		return nil, mapRepoErr("обновление фото профиля", err)
	}

	if current.PhotoURL != nil && *current.PhotoURL != "" {
		s.deleteQuietly(*current.PhotoURL)
	}
	return updated, nil
}

func (s *AccountService) deleteQuietly(rel string) {
	if err := s.attachments.Delete(rel); err != nil {
		s.logger.Warn("Не удалось удалить файл",
			slog.String("path", rel),
			slog.String("error", err.Error()),
		)
	}
}

// validEmail проверяет, что строка — одиночный адрес без отображаемого имени.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
