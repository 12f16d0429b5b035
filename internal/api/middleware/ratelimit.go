// ratelimit.go — ограничение частоты запросов по адресу клиента.
// Применяется к /auth/register: регистрация не требует токена.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
)

const (
	limiterCacheSize = 10000
	limiterIdleTTL   = 10 * time.Minute
)

// RateLimiter — token bucket на каждый адрес клиента.
// Лимитеры неактивных адресов вытесняются из LRU по TTL.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewRateLimiter создаёт ограничитель: perSecond запросов в секунду, burst — запас.
func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterCacheSize, nil, limiterIdleTTL),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		logger:   logger.With(slog.String("component", "rate_limiter")),
	}
}

// limiter возвращает bucket адреса; поиск и создание под одной блокировкой,
// иначе параллельные первые запросы получили бы разные bucket.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters.Add(key, l)
	return l
}

// Handler — HTTP middleware. При превышении лимита отвечает 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.limiter(key).Allow() {
			rl.logger.Warn("Превышен лимит запросов",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			apierrors.RateLimited(w, "Слишком много запросов, повторите позже")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey — IP без порта из RemoteAddr. Заголовки прокси учитываются,
// только если роутер включил chi middleware.RealIP (NF_TRUST_PROXY_HEADERS).
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
