// admin.go — проверка административной роли по таблице accounts.
// Роль берётся из БД, а не из JWT: роль admin назначается в notas-api.
// Результаты кэшируются в expirable LRU, чтобы не читать БД на каждый запрос.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/model"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/domain/rbac"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
)

var accessCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nf_admin_access_cache_total",
		Help: "Обращения к кэшу ролей при admin-проверке (hit/miss).",
	},
	[]string{"result"},
)

// AccountLookup — поиск аккаунта по uid. Реализуется repository.AccountRepository.
type AccountLookup interface {
	GetByUID(ctx context.Context, uid string) (*model.Account, error)
}

type accessEntry struct {
	role    string
	blocked bool
}

// AdminGuard пропускает только незаблокированные аккаунты с ролью admin.
type AdminGuard struct {
	accounts AccountLookup
	cache    *expirable.LRU[string, accessEntry]
	logger   *slog.Logger
}

// NewAdminGuard создаёт проверку роли. size и ttl задают кэш ролей.
func NewAdminGuard(accounts AccountLookup, size int, ttl time.Duration, logger *slog.Logger) *AdminGuard {
	return &AdminGuard{
		accounts: accounts,
		cache:    expirable.NewLRU[string, accessEntry](size, nil, ttl),
		logger:   logger.With(slog.String("component", "admin_guard")),
	}
}

// Middleware возвращает HTTP middleware. Должен использоваться после JWTAuth.Middleware().
func (g *AdminGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := SubjectFromContext(r.Context())
			if uid == "" {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			entry, err := g.lookup(r.Context(), uid)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				apierrors.Forbidden(w, "Недостаточно прав: аккаунт не найден")
				return
			case err != nil:
				g.logger.Error("Ошибка проверки роли",
					slog.String("uid", uid),
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Ошибка проверки прав доступа")
				return
			}

			if !rbac.CanAccessAdmin(entry.role, entry.blocked) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль admin")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Forget удаляет uid из кэша (после изменения роли или блокировки).
func (g *AdminGuard) Forget(uid string) {
	g.cache.Remove(uid)
}

func (g *AdminGuard) lookup(ctx context.Context, uid string) (accessEntry, error) {
	if entry, ok := g.cache.Get(uid); ok {
		accessCacheTotal.WithLabelValues("hit").Inc()
		return entry, nil
	}
	accessCacheTotal.WithLabelValues("miss").Inc()

	acc, err := g.accounts.GetByUID(ctx, uid)
	if err != nil {
		return accessEntry{}, err
	}

	entry := accessEntry{role: acc.Role, blocked: acc.IsBlocked}
	g.cache.Add(uid, entry)
	return entry, nil
}
