// Точка входа ContentGuard — платформы контроля публикаций в социальных сетях.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL
// и объектному хранилищу, создаёт сервисный слой и API handlers,
// запускает фоновые задачи (очистка журнала аудита, topologymetrics)
// и HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/contentguard/internal/api/handlers"
	"github.com/bigkaa/contentguard/internal/api/middleware"
	"github.com/bigkaa/contentguard/internal/api/openapi"
	"github.com/bigkaa/contentguard/internal/auth"
	"github.com/bigkaa/contentguard/internal/config"
	"github.com/bigkaa/contentguard/internal/database"
	"github.com/bigkaa/contentguard/internal/repository"
	"github.com/bigkaa/contentguard/internal/server"
	"github.com/bigkaa/contentguard/internal/service"
	"github.com/bigkaa/contentguard/internal/storage/objectstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("ContentGuard запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("CG_DEPHEALTH_GROUP") == "" {
		logger.Warn("CG_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
	// через тот же пул и обнаруживает его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Объектное хранилище вложений
	store, err := objectstore.New(objectstore.Config{
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		UseSSL:        cfg.S3UseSSL,
		PresignExpiry: cfg.S3PresignExpiry,
		MaxSize:       cfg.UploadMaxSize,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания клиента объектного хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		// Хранилище может подняться позже: readiness покажет fail,
		// загрузки вернут STORAGE_UNAVAILABLE.
		logger.Warn("Бакет недоступен при старте",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("error", err.Error()),
		)
	}

	// 6. Ключ подписи и выпуск токенов
	signingKey, err := auth.LoadOrGenerateKey(cfg.JWTSigningKeyPath, logger)
	if err != nil {
		logger.Error("Ошибка загрузки ключа подписи", slog.String("error", err.Error()))
		os.Exit(1)
	}
	issuer, err := auth.NewIssuer(ctx, signingKey, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("Ошибка создания issuer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. JWT middleware: внешний JWKS (несколько реплик за общим набором
	// ключей) или собственный набор ключей.
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTJWKSURL != "" {
		jwtAuth, err = middleware.NewRemoteJWTAuth(cfg.JWTJWKSURL, cfg.JWTIssuer, cfg.JWTLeeway, logger)
	} else {
		jwtAuth, err = middleware.NewJWTAuth(issuer.Storage(), cfg.JWTIssuer, cfg.JWTLeeway, logger)
	}
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.String("issuer", cfg.JWTIssuer),
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("kid", auth.KeyID(&signingKey.PublicKey)),
	)

	// 8. Repositories и services
	uow := repository.NewTxRunner(pool)
	userCache := service.NewUserSummaryCache(cfg.UserCacheSize, cfg.UserCacheTTL)

	auditSvc := service.NewAuditService(uow, cfg.AuditRetention, cfg.AuditSweepInterval, logger)
	authSvc, err := service.NewAuthService(uow, issuer, auditSvc, logger)
	if err != nil {
		logger.Error("Ошибка создания сервиса аутентификации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	svcs := handlers.Services{
		Auth:          authSvc,
		Organizations: service.NewOrganizationService(uow, auditSvc, logger),
		Users:         service.NewUserService(uow, auditSvc, userCache, logger),
		Posts:         service.NewPostService(uow, auditSvc, logger),
		Approvals:     service.NewApprovalService(uow, auditSvc, userCache, logger),
		Assets:        service.NewAssetService(uow, store, auditSvc, cfg.UploadMaxSize, logger),
		Audit:         auditSvc,
	}

	// 9. Health и API handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), store)
	apiHandler := handlers.NewAPIHandler(healthHandler, svcs, cfg.UploadMaxSize, logger)

	doc, err := openapi.Load(ctx)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}
	docHandler, err := openapi.Handler(doc)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Фоновые задачи
	auditSvc.Start(ctx)

	// 10.1 topologymetrics — мониторинг зависимостей (PostgreSQL + объектное хранилище)
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthConfig{
		ServiceID:           "contentguard",
		Group:               cfg.DephealthGroup,
		DB:                  pgDB,
		PostgresURL:         cfg.DatabaseURL(),
		ObjectStoreEndpoint: cfg.S3Endpoint,
		ObjectStoreUseSSL:   cfg.S3UseSSL,
		CheckInterval:       cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics",
			slog.String("error", startErr.Error()),
		)
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 11. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Routes{
		API:                apiHandler,
		Authenticate:       jwtAuth.Middleware(),
		JWKS:               issuer.JWKSHandler(),
		OpenAPI:            docHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout:     cfg.DBQueryTimeout,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 12. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	auditSvc.Stop()

	logger.Info("ContentGuard остановлен")
}
