// Пакет rbac — роли аккаунтов и правила административного доступа.
// Роли: user (по умолчанию) и admin. Администратор защищён от блокировки.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// IsAdmin сообщает, даёт ли роль доступ к административным операциям.
// Неизвестная роль доступа не даёт.
func IsAdmin(role string) bool {
	return roleWeight[role] >= roleWeight[RoleAdmin]
}

// CanAccessAdmin — доступ к /admin: роль admin и аккаунт не заблокирован.
func CanAccessAdmin(role string, blocked bool) bool {
	return IsAdmin(role) && !blocked
}

// CanBlock сообщает, можно ли заблокировать аккаунт с указанной ролью.
// Аккаунт администратора заблокировать нельзя, независимо от того, кто вызывает операцию.
func CanBlock(targetRole string) bool {
	return !IsAdmin(targetRole)
}
