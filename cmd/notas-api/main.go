// Точка входа notas-api — сервис учёта notas fiscais.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и Keycloak, собирает сервисы и HTTP-обработчики, запускает фоновые
// задачи (очистка временных файлов, topologymetrics) и HTTP-сервер.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/handlers"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/api/middleware"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/config"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/database"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/keycloak"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/repository"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/server"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/service"
	"github.com/Erick-Valente-Sprogis/ProjetoAndroid/internal/storage/attachment"
)

const serviceID = "notas-api"

func main() {
	// 1. Конфигурация и логирование
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("notas-api запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("notas-api завершился с ошибкой", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("notas-api остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// 2. Миграции и пул соединений
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		return fmt.Errorf("миграции БД: %w", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для проверки PostgreSQL в topologymetrics.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 3. HTTP-клиент для Keycloak (JWKS и Admin API)
	var httpClient *http.Client
	if cfg.CACertPath != "" {
		httpClient, err = buildHTTPClientWithCA(cfg.CACertPath)
		if err != nil {
			return fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}
		logger.Info("CA-сертификат загружен", slog.String("path", cfg.CACertPath))
	}

	kcClient := keycloak.New(
		cfg.KeycloakURL,
		cfg.KeycloakRealm,
		cfg.KeycloakClientID,
		cfg.KeycloakClientSecret,
		httpClient, // nil — стандартный пул CA
		logger,
	)
	logger.Info("Keycloak клиент создан",
		slog.String("url", cfg.KeycloakURL),
		slog.String("realm", cfg.KeycloakRealm),
	)

	// 4. Хранилище вложений и репозитории
	store, err := attachment.New(cfg.UploadDir, cfg.UploadTempDir)
	if err != nil {
		return fmt.Errorf("инициализация хранилища вложений: %w", err)
	}

	accountRepo := repository.NewAccountRepository(pool)
	invoiceRepo := repository.NewInvoiceRepository(pool)

	// 5. Сервисы
	invoiceSvc := service.NewInvoiceService(invoiceRepo, store, logger)
	accountSvc := service.NewAccountService(kcClient, accountRepo, store, logger)
	adminSvc := service.NewAdminAccountService(kcClient, accountRepo, logger)

	// 6. Фоновые задачи
	if cfg.TempSweepSchedule != "" {
		janitor, err := service.NewTempJanitor(store, cfg.TempSweepSchedule, cfg.TempMaxAge, logger)
		if err != nil {
			return fmt.Errorf("очистка временных файлов: %w", err)
		}
		janitor.Start()
		defer janitor.Stop()
	} else {
		logger.Info("Очистка временных файлов отключена (NF_TEMP_SWEEP_SCHEDULE=off)")
	}

	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:       serviceID,
		Group:           cfg.DephealthGroup,
		DB:              pgDB,
		PostgresURL:     cfg.DatabaseURL(),
		KeycloakJWKSURL: cfg.JWTJWKSURL,
		CheckInterval:   cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
	} else {
		defer dephealthSvc.Stop()
	}

	// 7. Middleware доступа
	jwtAuth, err := middleware.NewJWTAuth(
		cfg.JWTJWKSURL,
		httpClient,
		cfg.JWTIssuer,
		cfg.JWKSRefreshInterval,
		cfg.JWTLeeway,
		logger,
	)
	if err != nil {
		return fmt.Errorf("JWT middleware: %w", err)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	adminGuard := middleware.NewAdminGuard(accountRepo, cfg.AccountCacheSize, cfg.AccountCacheTTL, logger)
	// Блокировка и разблокировка сразу видны admin-проверке.
	adminSvc.SetAccessInvalidator(adminGuard.Forget)

	guards := server.Guards{
		JWT:   jwtAuth,
		Admin: adminGuard,
	}
	if cfg.RegisterRate > 0 {
		guards.RegisterLimit = middleware.NewRateLimiter(cfg.RegisterRate, cfg.RegisterBurst, logger)
	}

	// 8. Обработчики и HTTP-сервер
	h := server.Handlers{
		Health:   handlers.NewHealthHandler(database.NewReadinessChecker(pool), kcClient),
		Invoices: handlers.NewInvoiceHandler(invoiceSvc, store, cfg.MaxUploadSize, logger),
		Auth:     handlers.NewAuthHandler(accountSvc, store, cfg.MaxUploadSize, logger),
		Admin:    handlers.NewAdminHandler(adminSvc, logger),
	}

	return server.New(cfg, logger, h, guards).Run()
}

// buildHTTPClientWithCA создаёт HTTP-клиент с дополнительным CA-сертификатом.
func buildHTTPClientWithCA(caCertPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("в файле нет PEM-сертификатов")
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}
