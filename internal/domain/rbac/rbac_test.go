package rbac

import "testing"

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleUser, false},
		{"", false},
		{"superuser", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsAdmin(tt.role); got != tt.want {
				t.Errorf("IsAdmin(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestCanAccessAdmin(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		blocked bool
		want    bool
	}{
		{"активный admin", RoleAdmin, false, true},
		{"заблокированный admin", RoleAdmin, true, false},
		{"обычный пользователь", RoleUser, false, false},
		{"неизвестная роль", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccessAdmin(tt.role, tt.blocked); got != tt.want {
				t.Errorf("CanAccessAdmin(%q, %v) = %v, хотели %v", tt.role, tt.blocked, got, tt.want)
			}
		})
	}
}

// TestCanBlock — администратор защищён от блокировки, остальные роли нет.
func TestCanBlock(t *testing.T) {
	if CanBlock(RoleAdmin) {
		t.Error("CanBlock(admin) = true, хотели false")
	}
	if !CanBlock(RoleUser) {
		t.Error("CanBlock(user) = false, хотели true")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{RoleUser, RoleAdmin} {
		if !IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = false, хотели true", role)
		}
	}
	for _, role := range []string{"", "readonly", "ADMIN"} {
		if IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = true, хотели false", role)
		}
	}
}
