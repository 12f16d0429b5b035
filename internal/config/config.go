// Пакет config — загрузка и валидация конфигурации сервиса notas-api
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации notas-api.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Keycloak ---

	// URL Keycloak без trailing slash
	KeycloakURL string
	// Имя realm в Keycloak
	KeycloakRealm string
	// Client ID для доступа к Keycloak Admin API
	KeycloakClientID string
	// Client Secret для доступа к Keycloak Admin API
	KeycloakClientSecret string
	// Путь к CA-сертификату Keycloak (опционально)
	CACertPath string

	// --- JWT ---

	// Issuer JWT (авто-вычисляется из KeycloakURL, если не задан)
	JWTIssuer string
	// URL JWKS endpoint (авто-вычисляется из KeycloakURL, если не задан)
	JWTJWKSURL string
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration
	// Допуск расхождения часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- Вложения ---

	// Корневой каталог вложений (раздаётся через /uploads)
	UploadDir string
	// Временный каталог для принятых файлов; должен быть на той же ФС, что и UploadDir
	UploadTempDir string
	// Максимальный размер multipart-запроса в байтах
	MaxUploadSize int64
	// Расписание очистки временного каталога (формат robfig/cron); пусто — отключено
	TempSweepSchedule string
	// Возраст, после которого временный файл считается брошенным
	TempMaxAge time.Duration

	// --- Кэш и ограничения ---

	// Размер кэша ролей аккаунтов для admin-проверки
	AccountCacheSize int
	// TTL записи в кэше ролей
	AccountCacheTTL time.Duration
	// Лимит регистраций с одного адреса (токенов в секунду); 0 — без ограничения
	RegisterRate float64
	// Размер burst для лимита регистраций
	RegisterBurst int
	// Доверять X-Forwarded-For / X-Real-IP (сервис за обратным прокси)
	TrustProxyHeaders bool

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// NF_PORT — порт HTTP-сервера (по умолчанию 3000)
	cfg.Port, err = getEnvInt("NF_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("NF_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("NF_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("NF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("NF_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("NF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("NF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("NF_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("NF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("NF_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("NF_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("NF_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("NF_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("NF_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("NF_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Keycloak ---

	if cfg.KeycloakURL, err = getEnvRequired("NF_KEYCLOAK_URL"); err != nil {
		return nil, err
	}
	cfg.KeycloakURL = strings.TrimRight(cfg.KeycloakURL, "/")

	cfg.KeycloakRealm = getEnvDefault("NF_KEYCLOAK_REALM", "notas")

	if cfg.KeycloakClientID, err = getEnvRequired("NF_KEYCLOAK_CLIENT_ID"); err != nil {
		return nil, err
	}
	if cfg.KeycloakClientSecret, err = getEnvRequired("NF_KEYCLOAK_CLIENT_SECRET"); err != nil {
		return nil, err
	}

	cfg.CACertPath = getEnvDefault("NF_CA_CERT_PATH", "")

	// --- JWT ---

	cfg.JWTIssuer = getEnvDefault("NF_JWT_ISSUER",
		fmt.Sprintf("%s/realms/%s", cfg.KeycloakURL, cfg.KeycloakRealm))
	cfg.JWTJWKSURL = getEnvDefault("NF_JWT_JWKS_URL",
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", cfg.KeycloakURL, cfg.KeycloakRealm))

	cfg.JWKSRefreshInterval, err = getEnvDuration("NF_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("NF_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("NF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NF_JWT_LEEWAY: %w", err)
	}

	// --- Вложения ---

	cfg.UploadDir = filepath.Clean(getEnvDefault("NF_UPLOAD_DIR", "./uploads"))
	// Временный каталог по умолчанию внутри UploadDir — гарантирует одну ФС для rename
	cfg.UploadTempDir = filepath.Clean(getEnvDefault("NF_UPLOAD_TEMP_DIR", filepath.Join(cfg.UploadDir, ".incoming")))

	maxUpload, err := getEnvInt("NF_MAX_UPLOAD_SIZE", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("NF_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("NF_MAX_UPLOAD_SIZE: значение должно быть положительным, получено %d", maxUpload)
	}
	cfg.MaxUploadSize = int64(maxUpload)

	cfg.TempSweepSchedule = getEnvDefault("NF_TEMP_SWEEP_SCHEDULE", "@every 1h")
	if os.Getenv("NF_TEMP_SWEEP_SCHEDULE") == "off" {
		cfg.TempSweepSchedule = ""
	}
	cfg.TempMaxAge, err = getEnvDuration("NF_TEMP_MAX_AGE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("NF_TEMP_MAX_AGE: %w", err)
	}

	// --- Кэш и ограничения ---

	cfg.AccountCacheSize, err = getEnvInt("NF_ACCOUNT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("NF_ACCOUNT_CACHE_SIZE: %w", err)
	}
	if cfg.AccountCacheSize < 1 {
		return nil, fmt.Errorf("NF_ACCOUNT_CACHE_SIZE: значение должно быть >= 1, получено %d", cfg.AccountCacheSize)
	}
	cfg.AccountCacheTTL, err = getEnvDuration("NF_ACCOUNT_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NF_ACCOUNT_CACHE_TTL: %w", err)
	}

	cfg.RegisterRate, err = getEnvFloat("NF_REGISTER_RATE", 1)
	if err != nil {
		return nil, fmt.Errorf("NF_REGISTER_RATE: %w", err)
	}
	if cfg.RegisterRate < 0 {
		return nil, fmt.Errorf("NF_REGISTER_RATE: значение не может быть отрицательным")
	}
	cfg.RegisterBurst, err = getEnvInt("NF_REGISTER_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("NF_REGISTER_BURST: %w", err)
	}
	if cfg.RegisterBurst < 1 {
		return nil, fmt.Errorf("NF_REGISTER_BURST: значение должно быть >= 1, получено %d", cfg.RegisterBurst)
	}

	cfg.TrustProxyHeaders, err = getEnvBool("NF_TRUST_PROXY_HEADERS", false)
	if err != nil {
		return nil, fmt.Errorf("NF_TRUST_PROXY_HEADERS: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("NF_DEPHEALTH_GROUP", "notas")
	cfg.DephealthCheckInterval, err = getEnvDuration("NF_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NF_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("NF_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NF_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL в формате postgres://.
// Используется для меток topologymetrics и как основа URL миграций.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение %q", val)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
