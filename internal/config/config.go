// Пакет config — загрузка и валидация конфигурации ContentGuard
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// MaxUploadSize — жёсткий предел размера загружаемого файла (100 МБ).
const MaxUploadSize int64 = 100 * 1024 * 1024

// Config содержит все параметры конфигурации ContentGuard.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Разрешённые CORS origins (пусто — CORS отключён)
	CORSAllowedOrigins []string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Максимальный размер пула подключений
	DBMaxConns int
	// Таймаут одной бизнес-операции с БД
	DBQueryTimeout time.Duration

	// --- JWT ---

	// Issuer выпускаемых токенов
	JWTIssuer string
	// Время жизни access token
	JWTTTL time.Duration
	// Путь к PEM-файлу приватного RSA-ключа (пусто — ключ генерируется при старте)
	JWTSigningKeyPath string
	// URL внешнего JWKS (пусто — проверка по собственному набору ключей)
	JWTJWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Объектное хранилище (MinIO / S3) ---

	// Endpoint хранилища (host:port)
	S3Endpoint string
	// Access key
	S3AccessKey string
	// Secret key
	S3SecretKey string
	// Имя бакета
	S3Bucket string
	// Регион
	S3Region string
	// Использовать TLS
	S3UseSSL bool
	// Время жизни presigned URL
	S3PresignExpiry time.Duration

	// --- Вложения и аудит ---

	// Максимальный размер загружаемого файла в байтах
	UploadMaxSize int64
	// Срок хранения записей аудита
	AuditRetention time.Duration
	// Интервал фоновой очистки аудита (0 — отключена)
	AuditSweepInterval time.Duration

	// --- Кэш сведений о пользователях ---

	// Максимальное количество записей
	UserCacheSize int
	// Время жизни записи
	UserCacheTTL time.Duration

	// --- topologymetrics ---

	// Группа в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// CG_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("CG_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("CG_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CG_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("CG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("CG_LOG_LEVEL: %w", err)
	}

	// CG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("CG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// CG_CORS_ALLOWED_ORIGINS — список origins через запятую
	cfg.CORSAllowedOrigins = parseCSV(getEnvDefault("CG_CORS_ALLOWED_ORIGINS", ""))

	// --- PostgreSQL ---

	// CG_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("CG_DB_HOST")
	if err != nil {
		return nil, err
	}

	// CG_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("CG_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("CG_DB_PORT: %w", err)
	}

	// CG_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("CG_DB_NAME")
	if err != nil {
		return nil, err
	}

	// CG_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("CG_DB_USER")
	if err != nil {
		return nil, err
	}

	// CG_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("CG_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// CG_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("CG_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("CG_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// CG_DB_MAX_CONNS — размер пула (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("CG_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("CG_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 || cfg.DBMaxConns > 100 {
		return nil, fmt.Errorf("CG_DB_MAX_CONNS: значение %d вне допустимого диапазона 1-100", cfg.DBMaxConns)
	}

	// CG_DB_QUERY_TIMEOUT — таймаут операции (по умолчанию 10s)
	cfg.DBQueryTimeout, err = getEnvDuration("CG_DB_QUERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CG_DB_QUERY_TIMEOUT: %w", err)
	}
	if cfg.DBQueryTimeout <= 0 {
		return nil, fmt.Errorf("CG_DB_QUERY_TIMEOUT: значение должно быть положительным")
	}

	// --- JWT ---

	// CG_JWT_ISSUER — issuer токенов (по умолчанию contentguard)
	cfg.JWTIssuer = getEnvDefault("CG_JWT_ISSUER", "contentguard")

	// CG_JWT_TTL — время жизни токена (по умолчанию 1h)
	cfg.JWTTTL, err = getEnvDuration("CG_JWT_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CG_JWT_TTL: %w", err)
	}
	if cfg.JWTTTL < time.Minute || cfg.JWTTTL > 24*time.Hour {
		return nil, fmt.Errorf("CG_JWT_TTL: значение %s вне допустимого диапазона 1m-24h", cfg.JWTTTL)
	}

	// CG_JWT_SIGNING_KEY_PATH — путь к приватному ключу (опционально)
	cfg.JWTSigningKeyPath = getEnvDefault("CG_JWT_SIGNING_KEY_PATH", "")

	// CG_JWT_JWKS_URL — внешний JWKS (опционально)
	cfg.JWTJWKSURL = getEnvDefault("CG_JWT_JWKS_URL", "")
	if cfg.JWTJWKSURL != "" {
		if _, err := url.ParseRequestURI(cfg.JWTJWKSURL); err != nil {
			return nil, fmt.Errorf("CG_JWT_JWKS_URL: некорректный URL %q", cfg.JWTJWKSURL)
		}
	}

	// CG_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("CG_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CG_JWT_LEEWAY: %w", err)
	}

	// --- Объектное хранилище ---

	// CG_S3_ENDPOINT — обязательный
	cfg.S3Endpoint, err = getEnvRequired("CG_S3_ENDPOINT")
	if err != nil {
		return nil, err
	}
	// minio-go ожидает host:port без схемы
	cfg.S3Endpoint = strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "http://"), "https://")
	cfg.S3Endpoint = strings.TrimRight(cfg.S3Endpoint, "/")

	// CG_S3_ACCESS_KEY — обязательный
	cfg.S3AccessKey, err = getEnvRequired("CG_S3_ACCESS_KEY")
	if err != nil {
		return nil, err
	}

	// CG_S3_SECRET_KEY — обязательный
	cfg.S3SecretKey, err = getEnvRequired("CG_S3_SECRET_KEY")
	if err != nil {
		return nil, err
	}

	// CG_S3_BUCKET — бакет (по умолчанию social-media-compliance)
	cfg.S3Bucket = getEnvDefault("CG_S3_BUCKET", "social-media-compliance")

	// CG_S3_REGION — регион (по умолчанию us-east-1)
	cfg.S3Region = getEnvDefault("CG_S3_REGION", "us-east-1")

	// CG_S3_USE_SSL — TLS к хранилищу (по умолчанию false)
	cfg.S3UseSSL, err = getEnvBool("CG_S3_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("CG_S3_USE_SSL: %w", err)
	}

	// CG_S3_PRESIGN_EXPIRY — время жизни presigned URL (по умолчанию 7 дней)
	cfg.S3PresignExpiry, err = getEnvDuration("CG_S3_PRESIGN_EXPIRY", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CG_S3_PRESIGN_EXPIRY: %w", err)
	}
	if cfg.S3PresignExpiry < time.Second || cfg.S3PresignExpiry > 7*24*time.Hour {
		return nil, fmt.Errorf("CG_S3_PRESIGN_EXPIRY: значение %s вне допустимого диапазона 1s-168h", cfg.S3PresignExpiry)
	}

	// --- Вложения и аудит ---

	// CG_UPLOAD_MAX_SIZE — предел размера файла (по умолчанию и максимум 100 МБ)
	maxSize, err := getEnvInt("CG_UPLOAD_MAX_SIZE", int(MaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("CG_UPLOAD_MAX_SIZE: %w", err)
	}
	cfg.UploadMaxSize = int64(maxSize)
	if cfg.UploadMaxSize < 1 || cfg.UploadMaxSize > MaxUploadSize {
		return nil, fmt.Errorf("CG_UPLOAD_MAX_SIZE: значение %d вне допустимого диапазона 1-%d", cfg.UploadMaxSize, MaxUploadSize)
	}

	// CG_AUDIT_RETENTION — срок хранения аудита (по умолчанию 90 дней)
	cfg.AuditRetention, err = getEnvDuration("CG_AUDIT_RETENTION", 90*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CG_AUDIT_RETENTION: %w", err)
	}
	if cfg.AuditRetention < 24*time.Hour {
		return nil, fmt.Errorf("CG_AUDIT_RETENTION: значение %s меньше минимального 24h", cfg.AuditRetention)
	}

	// CG_AUDIT_SWEEP_INTERVAL — интервал очистки (по умолчанию 24h, 0 — отключена)
	cfg.AuditSweepInterval, err = getEnvDuration("CG_AUDIT_SWEEP_INTERVAL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("CG_AUDIT_SWEEP_INTERVAL: %w", err)
	}
	if cfg.AuditSweepInterval < 0 {
		return nil, fmt.Errorf("CG_AUDIT_SWEEP_INTERVAL: значение не может быть отрицательным")
	}

	// --- Кэш пользователей ---

	// CG_USER_CACHE_SIZE — размер кэша (по умолчанию 1000)
	cfg.UserCacheSize, err = getEnvInt("CG_USER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("CG_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 1 || cfg.UserCacheSize > 100000 {
		return nil, fmt.Errorf("CG_USER_CACHE_SIZE: значение %d вне допустимого диапазона 1-100000", cfg.UserCacheSize)
	}

	// CG_USER_CACHE_TTL — TTL записи (по умолчанию 5m)
	cfg.UserCacheTTL, err = getEnvDuration("CG_USER_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("CG_USER_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	// CG_DEPHEALTH_GROUP — группа (по умолчанию contentguard)
	cfg.DephealthGroup = getEnvDefault("CG_DEPHEALTH_GROUP", "contentguard")

	// CG_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("CG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	// CG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("CG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("CG_SHUTDOWN_TIMEOUT: %w", err)
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

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// S3URL возвращает базовый URL объектного хранилища.
func (c *Config) S3URL() string {
	scheme := "http"
	if c.S3UseSSL {
		scheme = "https"
	}
	return scheme + "://" + c.S3Endpoint
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
