// Пакет server — HTTP-сервер notas-api с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/errors"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/handlers"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/middleware"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/config"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

// Handlers — обработчики, подключаемые к маршрутам.
type Handlers struct {
	Health   *handlers.HealthHandler
	Invoices *handlers.InvoiceHandler
	Auth     *handlers.AuthHandler
	Admin    *handlers.AdminHandler
}

// Guards — middleware доступа.
type Guards struct {
	// JWT — проверка Bearer-токена; обязателен.
	JWT *middleware.JWTAuth
	// Admin — проверка роли admin для /admin.
	Admin *middleware.AdminGuard
	// RegisterLimit — лимит /auth/register; nil — без ограничения.
	RegisterLimit *middleware.RateLimiter
}

// RouterConfig — параметры роутера, не связанные с обработчиками.
type RouterConfig struct {
	// UploadDir раздаётся через /uploads.
	UploadDir string
	// TrustProxyHeaders включает chi middleware.RealIP: адрес клиента берётся
	// из X-Forwarded-For / X-Real-IP. Только за доверенным обратным прокси.
	TrustProxyHeaders bool
}

// Server — HTTP-сервер notas-api.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers, g Guards) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler: NewRouter(logger, h, g, RouterConfig{
			UploadDir:         cfg.UploadDir,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер.
func NewRouter(logger *slog.Logger, h Handlers, g Guards, rc RouterConfig) http.Handler {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	if rc.TrustProxyHeaders {
		router.Use(chimw.RealIP)
	}
	router.Use(chimw.Recoverer)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	// Публичные маршруты.
	router.Get("/health/live", h.Health.Live)
	router.Get("/health/ready", h.Health.Ready)
	router.Get("/metrics", h.Health.Metrics)
	router.Get("/uploads/*", uploadsHandler(rc.UploadDir))

	router.Group(func(r chi.Router) {
		if g.RegisterLimit != nil {
			r.Use(g.RegisterLimit.Handler)
		}
		r.Post("/auth/register", h.Auth.Register)
	})

	// Маршруты с аутентификацией.
	router.Group(func(r chi.Router) {
		r.Use(g.JWT.Middleware())

		r.Get("/auth/me", h.Auth.Me)
		r.Put("/auth/profile", h.Auth.UpdateProfile)
		r.Post("/auth/profile/photo", h.Auth.UpdatePhoto)

		r.Route("/notas", func(r chi.Router) {
			r.Get("/", h.Invoices.List)
			r.Post("/", h.Invoices.Create)
			r.Put("/{id}", h.Invoices.Update)
			r.Delete("/{id}", h.Invoices.Delete)
		})

		r.Route("/admin/users", func(r chi.Router) {
			r.Use(g.Admin.Middleware())

			r.Get("/", h.Admin.ListUsers)
			r.Put("/{id}/password", h.Admin.ChangePassword)
			r.Put("/{id}/block", h.Admin.Block)
			r.Put("/{id}/unblock", h.Admin.Unblock)
		})
	})

	return router
}

var (
	bucketPath  = regexp.MustCompile(`^\d{4}/\d{2}/[^/]+$`)
	profilePath = regexp.MustCompile(`^` + attachment.ProfilesDir + `/[^/]+$`)
)

// uploadsHandler раздаёт размещённые вложения. Доступны только пути
// YYYY/MM/{файл} и profiles/{файл}; временный каталог и листинги закрыты.
func uploadsHandler(root string) http.HandlerFunc {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(root)))

	return func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(r.URL.Path, "/uploads/")
		base := rel[strings.LastIndex(rel, "/")+1:]
		if !(bucketPath.MatchString(rel) || profilePath.MatchString(rel)) || strings.HasPrefix(base, ".") {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		fs.ServeHTTP(w, r)
	}
}

// Run запускает сервер и ожидает SIGINT/SIGTERM, затем выполняет graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
