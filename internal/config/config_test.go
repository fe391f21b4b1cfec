package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"CG_DB_HOST":       "localhost",
		"CG_DB_NAME":       "contentguard",
		"CG_DB_USER":       "contentguard",
		"CG_DB_PASSWORD":   "secret",
		"CG_S3_ENDPOINT":   "minio.local:9000",
		"CG_S3_ACCESS_KEY": "minio",
		"CG_S3_SECRET_KEY": "minio-secret",
	}
}

// resetEnvs очищает обязательные переменные перед установкой нового набора.
func resetEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k := range minimalEnvs() {
		os.Unsetenv(k)
	}
	setEnvs(t, envs)
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, ожидается 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидается 5432", cfg.DBPort)
	}
	if cfg.DBSSLMode != "disable" {
		t.Errorf("DBSSLMode = %q, ожидается disable", cfg.DBSSLMode)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d, ожидается 10", cfg.DBMaxConns)
	}
	if cfg.DBQueryTimeout != 10*time.Second {
		t.Errorf("DBQueryTimeout = %v, ожидается 10s", cfg.DBQueryTimeout)
	}
	if cfg.JWTIssuer != "contentguard" {
		t.Errorf("JWTIssuer = %q, ожидается contentguard", cfg.JWTIssuer)
	}
	if cfg.JWTTTL != time.Hour {
		t.Errorf("JWTTTL = %v, ожидается 1h", cfg.JWTTTL)
	}
	if cfg.JWTJWKSURL != "" {
		t.Errorf("JWTJWKSURL = %q, ожидается пустой", cfg.JWTJWKSURL)
	}
	if cfg.S3Bucket != "social-media-compliance" {
		t.Errorf("S3Bucket = %q, ожидается social-media-compliance", cfg.S3Bucket)
	}
	if cfg.S3Region != "us-east-1" {
		t.Errorf("S3Region = %q, ожидается us-east-1", cfg.S3Region)
	}
	if cfg.S3UseSSL {
		t.Error("S3UseSSL = true, ожидается false")
	}
	if cfg.S3PresignExpiry != 7*24*time.Hour {
		t.Errorf("S3PresignExpiry = %v, ожидается 168h", cfg.S3PresignExpiry)
	}
	if cfg.UploadMaxSize != MaxUploadSize {
		t.Errorf("UploadMaxSize = %d, ожидается %d", cfg.UploadMaxSize, MaxUploadSize)
	}
	if cfg.AuditRetention != 90*24*time.Hour {
		t.Errorf("AuditRetention = %v, ожидается 2160h", cfg.AuditRetention)
	}
	if cfg.AuditSweepInterval != 24*time.Hour {
		t.Errorf("AuditSweepInterval = %v, ожидается 24h", cfg.AuditSweepInterval)
	}
	if cfg.UserCacheSize != 1000 || cfg.UserCacheTTL != 5*time.Minute {
		t.Errorf("UserCache = %d/%v, ожидается 1000/5m", cfg.UserCacheSize, cfg.UserCacheTTL)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Errorf("CORSAllowedOrigins = %v, ожидается nil", cfg.CORSAllowedOrigins)
	}
	if cfg.DephealthGroup != "contentguard" {
		t.Errorf("DephealthGroup = %q, ожидается contentguard", cfg.DephealthGroup)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval = %v, ожидается 15s", cfg.DephealthCheckInterval)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	envs := minimalEnvs()
	envs["CG_PORT"] = "9090"
	envs["CG_LOG_LEVEL"] = "debug"
	envs["CG_LOG_FORMAT"] = "text"
	envs["CG_DB_PORT"] = "5433"
	envs["CG_DB_SSL_MODE"] = "require"
	envs["CG_DB_MAX_CONNS"] = "25"
	envs["CG_JWT_TTL"] = "15m"
	envs["CG_JWT_JWKS_URL"] = "https://auth.example.com/.well-known/jwks.json"
	envs["CG_S3_USE_SSL"] = "true"
	envs["CG_S3_PRESIGN_EXPIRY"] = "1h"
	envs["CG_UPLOAD_MAX_SIZE"] = "1048576"
	envs["CG_AUDIT_RETENTION"] = "720h"
	envs["CG_AUDIT_SWEEP_INTERVAL"] = "0s"
	envs["CG_CORS_ALLOWED_ORIGINS"] = "http://localhost:3000, https://app.example.com"
	envs["CG_SHUTDOWN_TIMEOUT"] = "10s"
	setEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, ожидается 9090", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, ожидается Debug", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, ожидается text", cfg.LogFormat)
	}
	if cfg.DBPort != 5433 || cfg.DBSSLMode != "require" || cfg.DBMaxConns != 25 {
		t.Errorf("DB = %d/%s/%d, ожидается 5433/require/25", cfg.DBPort, cfg.DBSSLMode, cfg.DBMaxConns)
	}
	if cfg.JWTTTL != 15*time.Minute {
		t.Errorf("JWTTTL = %v, ожидается 15m", cfg.JWTTTL)
	}
	if cfg.JWTJWKSURL != "https://auth.example.com/.well-known/jwks.json" {
		t.Errorf("JWTJWKSURL = %q", cfg.JWTJWKSURL)
	}
	if !cfg.S3UseSSL {
		t.Error("S3UseSSL = false, ожидается true")
	}
	if cfg.S3URL() != "https://minio.local:9000" {
		t.Errorf("S3URL() = %q, ожидается https://minio.local:9000", cfg.S3URL())
	}
	if cfg.S3PresignExpiry != time.Hour {
		t.Errorf("S3PresignExpiry = %v, ожидается 1h", cfg.S3PresignExpiry)
	}
	if cfg.UploadMaxSize != 1048576 {
		t.Errorf("UploadMaxSize = %d, ожидается 1048576", cfg.UploadMaxSize)
	}
	if cfg.AuditRetention != 720*time.Hour {
		t.Errorf("AuditRetention = %v, ожидается 720h", cfg.AuditRetention)
	}
	if cfg.AuditSweepInterval != 0 {
		t.Errorf("AuditSweepInterval = %v, ожидается 0", cfg.AuditSweepInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://app.example.com" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, ожидается 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_S3EndpointScheme(t *testing.T) {
	envs := minimalEnvs()
	envs["CG_S3_ENDPOINT"] = "http://minio.local:9000/"
	resetEnvs(t, envs)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if cfg.S3Endpoint != "minio.local:9000" {
		t.Errorf("S3Endpoint = %q, ожидается minio.local:9000", cfg.S3Endpoint)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	for missing := range minimalEnvs() {
		t.Run(missing, func(t *testing.T) {
			envs := minimalEnvs()
			delete(envs, missing)
			resetEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"порт ниже диапазона", "CG_PORT", "0"},
		{"порт выше диапазона", "CG_PORT", "70000"},
		{"порт не число", "CG_PORT", "abc"},
		{"уровень логирования", "CG_LOG_LEVEL", "verbose"},
		{"формат логов", "CG_LOG_FORMAT", "xml"},
		{"ssl mode", "CG_DB_SSL_MODE", "prefer"},
		{"размер пула", "CG_DB_MAX_CONNS", "0"},
		{"таймаут запроса", "CG_DB_QUERY_TIMEOUT", "0s"},
		{"ttl токена слишком мал", "CG_JWT_TTL", "10s"},
		{"ttl токена слишком велик", "CG_JWT_TTL", "48h"},
		{"jwks url", "CG_JWT_JWKS_URL", "not a url"},
		{"use ssl", "CG_S3_USE_SSL", "maybe"},
		{"presign больше 7 дней", "CG_S3_PRESIGN_EXPIRY", "200h"},
		{"размер загрузки больше 100 МБ", "CG_UPLOAD_MAX_SIZE", "104857601"},
		{"размер загрузки 0", "CG_UPLOAD_MAX_SIZE", "0"},
		{"срок хранения аудита", "CG_AUDIT_RETENTION", "1h"},
		{"интервал очистки отрицательный", "CG_AUDIT_SWEEP_INTERVAL", "-1h"},
		{"размер кэша", "CG_USER_CACHE_SIZE", "0"},
		{"длительность", "CG_SHUTDOWN_TIMEOUT", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := minimalEnvs()
			envs[tt.key] = tt.value
			resetEnvs(t, envs)

			_, err := Load()
			if err == nil {
				t.Errorf("Load() не вернул ошибку при %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "db.example.com",
		DBPort:     5432,
		DBName:     "contentguard",
		DBUser:     "user",
		DBPassword: "pass",
		DBSSLMode:  "disable",
	}
	expected := "host=db.example.com port=5432 dbname=contentguard user=user password=pass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", dsn, expected)
	}
	if u := cfg.DatabaseURL(); u != "postgres://db.example.com:5432/contentguard" {
		t.Errorf("DatabaseURL() = %q", u)
	}
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: format,
			}
			if logger := SetupLogger(cfg); logger == nil {
				t.Error("SetupLogger() вернул nil")
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b", []string{"a", "b"}},
		{"a,,b,", []string{"a", "b"}},
		{" a , b , c ", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseCSV(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseCSV(%q) = %v, ожидается %v", tt.input, result, tt.expected)
			}
			for i, v := range result {
				if v != tt.expected[i] {
					t.Errorf("parseCSV(%q)[%d] = %q, ожидается %q", tt.input, i, v, tt.expected[i])
				}
			}
		})
	}
}
