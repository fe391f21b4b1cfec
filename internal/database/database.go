// Пакет database — пул подключений к PostgreSQL (pgxpool), миграции схемы
// (golang-migrate, embedded FS) и проверка готовности для /health/ready.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/contentguard/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	applicationName = "contentguard"

	// Параметры ожидания PostgreSQL при старте: 5 попыток, пауза удваивается.
	connectAttempts  = 5
	connectBackoff   = 500 * time.Millisecond
	maxConnectPause  = 8 * time.Second
	pingTimeout      = 3 * time.Second
	maxConnIdleTime  = 5 * time.Minute
	healthCheckEvery = 30 * time.Second
)

// ErrDirtySchema — предыдущая миграция прервана, схема требует ручного исправления.
var ErrDirtySchema = errors.New("схема БД в состоянии dirty")

// poolConfig собирает конфигурацию пула из настроек сервиса.
// statement_timeout ограничивает запрос на стороне сервера тем же
// таймаутом, что и контекст операции в репозиториях.
func poolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MinConns = min(2, poolCfg.MaxConns)
	poolCfg.MaxConnIdleTime = maxConnIdleTime
	poolCfg.HealthCheckPeriod = healthCheckEvery

	params := poolCfg.ConnConfig.RuntimeParams
	params["application_name"] = applicationName
	if cfg.DBQueryTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.DBQueryTimeout.Milliseconds(), 10)
	}
	return poolCfg, nil
}

// Connect создаёт пул подключений и дожидается доступности PostgreSQL.
// База, поднимающаяся одновременно с сервисом, получает несколько попыток.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	err = retry(ctx, logger, connectAttempts, connectBackoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
		slog.Int("min_conns", int(poolCfg.MinConns)),
	)
	return pool, nil
}

// retry вызывает fn до attempts раз, удваивая паузу между попытками.
// Возвращает последнюю ошибку fn или ошибку контекста.
func retry(ctx context.Context, logger *slog.Logger, attempts int, pause time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn("PostgreSQL недоступен, повтор",
			slog.Int("attempt", attempt),
			slog.Duration("pause", pause),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ожидание PostgreSQL прервано: %w", ctx.Err())
		case <-time.After(pause):
		}
		pause = min(pause*2, maxConnectPause)
	}
	return fmt.Errorf("%d попыток: %w", attempts, err)
}

// migrationURL формирует URL для драйвера pgx5 golang-migrate.
// Учётные данные экранируются: пароль может содержать @, : и /.
func migrationURL(cfg *config.Config) string {
	u := url.URL{
		Scheme: "pgx5",
		User:   url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:   fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:   "/" + cfg.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.DBSSLMode)
	q.Set("x-migrations-table", "schema_migrations")
	u.RawQuery = q.Encode()
	return u.String()
}

// Migrate применяет SQL-миграции из embedded FS.
// Схема в состоянии dirty не трогается: возвращается ErrDirtySchema.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrationURL(cfg))
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return err
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(from)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка применения миграций с версии %d: %w", from, err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return err
	}
	logger.Info("Миграции применены",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
	)
	return nil
}

// schemaVersion возвращает текущую версию схемы; 0 для пустой базы.
func schemaVersion(m *migrate.Migrate) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("%w: версия %d", ErrDirtySchema, version)
	}
	return version, nil
}

// ReadinessChecker — проверка готовности PostgreSQL для /health/ready.
type ReadinessChecker struct {
	ping  func(ctx context.Context) error
	stats func() (acquired, total int32)
}

// NewReadinessChecker создаёт проверку готовности для пула.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{
		ping: pool.Ping,
		stats: func() (int32, int32) {
			s := pool.Stat()
			return s.AcquiredConns(), s.MaxConns()
		},
	}
}

// CheckReady возвращает "fail", если PostgreSQL не отвечает на ping,
// и "degraded", если все подключения пула заняты.
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}

	acquired, total := c.stats()
	if total > 0 && acquired >= total {
		return "degraded", fmt.Sprintf("пул подключений исчерпан: %d/%d", acquired, total)
	}
	return "ok", fmt.Sprintf("подключений занято: %d/%d", acquired, total)
}
