// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/keycloak"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
)

var (
	// ErrUnauthenticated — вызывающий не аутентифицирован.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrForbidden — операция запрещена для вызывающего или для цели.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// validationErr формирует ошибку валидации с именем поля.
func validationErr(field, reason string) error {
	return fmt.Errorf("%w: поле %s %s", ErrValidation, field, reason)
}

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// mapIDPErr переводит ошибки Keycloak в ошибки сервиса.
func mapIDPErr(op string, err error) error {
	switch {
	case errors.Is(err, keycloak.ErrConflict):
		return ErrConflict
	case errors.Is(err, keycloak.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %s: %v", ErrIDPUnavailable, op, err)
	}
}
