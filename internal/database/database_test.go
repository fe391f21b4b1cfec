package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/contentguard/internal/config"
)

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
// Возвращает конфиг и функцию для очистки.
func setupTestDB(t *testing.T) *config.Config {
	t.Helper()

	if os.Getenv("CG_TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: CG_TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("contentguard_test"),
		postgres.WithUsername("contentguard"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Создаём конфиг с минимальными значениями
	t.Setenv("CG_DB_HOST", host)
	t.Setenv("CG_DB_PORT", port.Port())
	t.Setenv("CG_DB_NAME", "contentguard_test")
	t.Setenv("CG_DB_USER", "contentguard")
	t.Setenv("CG_DB_PASSWORD", "test-password")
	t.Setenv("CG_DB_SSL_MODE", "disable")
	t.Setenv("CG_S3_ENDPOINT", "localhost:9000")
	t.Setenv("CG_S3_ACCESS_KEY", "test")
	t.Setenv("CG_S3_SECRET_KEY", "test-secret")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	return cfg
}

// TestConnect проверяет подключение к PostgreSQL через pgxpool.
func TestConnect(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	// Проверяем ping
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pool.Ping() вернул ошибку: %v", err)
	}
}

// TestMigrate проверяет применение миграций.
func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}

	// Повторное применение — должно быть без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	// Проверяем, что таблицы созданы
	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	tables := []string{
		"organizations",
		"users",
		"posts",
		"approval_workflows",
		"approval_steps",
		"assets",
		"licenses",
		"audit_logs",
	}

	for _, table := range tables {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	// Уникальность workflow на пост обеспечивается индексом
	var indexExists bool
	err = pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_indexes WHERE indexname = 'uq_approval_workflows_post')`,
	).Scan(&indexExists)
	if err != nil {
		t.Fatalf("Ошибка проверки индекса: %v", err)
	}
	if !indexExists {
		t.Error("Индекс uq_approval_workflows_post не создан")
	}
}

// TestReadinessChecker проверяет ReadinessChecker.
func TestReadinessChecker(t *testing.T) {
	cfg := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	checker := NewReadinessChecker(pool)

	// Проверяем готовность — должен вернуть "ok"
	status, msg := checker.CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q; ожидали status = %q",
			status, msg, "ok")
	}
}

func unitConfig() *config.Config {
	return &config.Config{
		DBHost:         "db.internal",
		DBPort:         5433,
		DBName:         "contentguard",
		DBUser:         "cg",
		DBPassword:     "p@ss:w/rd",
		DBSSLMode:      "require",
		DBMaxConns:     8,
		DBQueryTimeout: 7 * time.Second,
	}
}

// TestPoolConfig проверяет параметры пула без подключения к БД.
func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name     string
		maxConns int
		wantMin  int32
	}{
		{"обычный пул", 8, 2},
		{"пул из одного подключения", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := unitConfig()
			cfg.DBPassword = "secret"
			cfg.DBMaxConns = tt.maxConns

			poolCfg, err := poolConfig(cfg)
			if err != nil {
				t.Fatalf("poolConfig: %v", err)
			}
			if poolCfg.MaxConns != int32(tt.maxConns) || poolCfg.MinConns != tt.wantMin {
				t.Errorf("MaxConns=%d MinConns=%d", poolCfg.MaxConns, poolCfg.MinConns)
			}
			if poolCfg.MaxConnIdleTime != maxConnIdleTime || poolCfg.HealthCheckPeriod != healthCheckEvery {
				t.Errorf("MaxConnIdleTime=%v HealthCheckPeriod=%v", poolCfg.MaxConnIdleTime, poolCfg.HealthCheckPeriod)
			}
			params := poolCfg.ConnConfig.RuntimeParams
			if params["application_name"] != applicationName {
				t.Errorf("application_name = %q", params["application_name"])
			}
			if params["statement_timeout"] != "7000" {
				t.Errorf("statement_timeout = %q, ожидалось 7000", params["statement_timeout"])
			}
			if poolCfg.ConnConfig.Host != "db.internal" || poolCfg.ConnConfig.Port != 5433 {
				t.Errorf("host=%s port=%d", poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port)
			}
		})
	}
}

// TestMigrationURL проверяет экранирование учётных данных.
func TestMigrationURL(t *testing.T) {
	raw := migrationURL(unitConfig())

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	if u.Scheme != "pgx5" || u.Host != "db.internal:5433" || u.Path != "/contentguard" {
		t.Errorf("scheme=%s host=%s path=%s", u.Scheme, u.Host, u.Path)
	}
	if pass, _ := u.User.Password(); u.User.Username() != "cg" || pass != "p@ss:w/rd" {
		t.Errorf("user=%s password=%s", u.User.Username(), pass)
	}
	if got := u.Query().Get("sslmode"); got != "require" {
		t.Errorf("sslmode = %q", got)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRetry проверяет повторные попытки подключения.
func TestRetry(t *testing.T) {
	errDown := errors.New("connection refused")

	t.Run("успех после двух отказов", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), discardLogger(), 5, time.Millisecond, func(context.Context) error {
			calls++
			if calls < 3 {
				return errDown
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("исчерпание попыток", func(t *testing.T) {
		calls := 0
		err := retry(context.Background(), discardLogger(), 3, time.Millisecond, func(context.Context) error {
			calls++
			return errDown
		})
		if !errors.Is(err, errDown) || calls != 3 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("отмена контекста", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := retry(ctx, discardLogger(), 5, time.Hour, func(context.Context) error {
			calls++
			cancel()
			return errDown
		})
		if !errors.Is(err, context.Canceled) || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})
}

// TestReadinessChecker_States проверяет статусы без реальной БД.
func TestReadinessChecker_States(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		acquired int32
		total    int32
		want     string
	}{
		{"БД недоступна", errors.New("timeout"), 0, 10, "fail"},
		{"есть свободные подключения", nil, 3, 10, "ok"},
		{"пул исчерпан", nil, 10, 10, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &ReadinessChecker{
				ping:  func(context.Context) error { return tt.pingErr },
				stats: func() (int32, int32) { return tt.acquired, tt.total },
			}
			status, msg := c.CheckReady()
			if status != tt.want {
				t.Errorf("status = %q (%s), ожидали %q", status, msg, tt.want)
			}
		})
	}
}
