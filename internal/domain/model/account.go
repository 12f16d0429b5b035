// Пакет model — доменные модели сервиса notas-api.
package model

import "time"

// Account — пользователь приложения.
// Хранится в таблице accounts; учётные данные живут только в Keycloak.
type Account struct {
	// ID — внутренний UUID аккаунта
	ID string
	// UID — идентификатор субъекта в Keycloak (sub), неизменяем
	UID string
	// Email — адрес электронной почты (уникален)
	Email string
	// FullName — отображаемое имя
	FullName string
	// Phone — телефон, пустая строка если не задан
	Phone string
	// PhotoURL — относительный путь фото профиля, nil если нет
	PhotoURL *string
	// Role — роль в приложении (user, admin)
	Role string
	// IsBlocked — заблокирован ли аккаунт администратором
	IsBlocked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
