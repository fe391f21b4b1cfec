// Пакет server — HTTP-сервер ContentGuard с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/api/handlers"
	"github.com/bigkaa/contentguard/internal/api/middleware"
	"github.com/bigkaa/contentguard/internal/config"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
)

// Routes — зависимости маршрутизатора.
type Routes struct {
	// API — обработчики бизнес-операций и health endpoints
	API *handlers.APIHandler
	// Authenticate — middleware аутентификации защищённых маршрутов
	Authenticate func(http.Handler) http.Handler
	// JWKS — публичные ключи проверки выпущенных токенов
	JWKS http.Handler
	// OpenAPI — описание API в формате JSON
	OpenAPI http.Handler
	// CORSAllowedOrigins — пусто, CORS отключён
	CORSAllowedOrigins []string
	// RequestTimeout — дедлайн обработки запроса (кроме загрузки файлов)
	RequestTimeout time.Duration
}

// Server — HTTP-сервер ContentGuard.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
func New(cfg *config.Config, logger *slog.Logger, routes Routes) *Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: NewRouter(routes, logger),
		// Загрузка крупных вложений по медленным каналам.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-маршрутизатор. Публичные endpoints: health, metrics,
// JWKS, login и openapi.json; остальное под /api/v1 требует токен.
func NewRouter(routes Routes, logger *slog.Logger) http.Handler {
	h := routes.API
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.RequestID)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))
	if len(routes.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   routes.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})

	// Health и metrics проверяются Kubernetes напрямую.
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	if routes.JWKS != nil {
		router.Method(http.MethodGet, "/.well-known/jwks.json", routes.JWKS)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(routes.RequestTimeout)).Post("/auth/login", h.Login)
		if routes.OpenAPI != nil {
			r.Method(http.MethodGet, "/openapi.json", routes.OpenAPI)
		}

		r.Group(func(r chi.Router) {
			r.Use(routes.Authenticate)

			// Загрузка ограничена размером тела, а не временем.
			r.With(middleware.RequireAtLeast(rbac.RoleCreator)).Post("/assets/upload", h.UploadAsset)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(routes.RequestTimeout))
				mountAuth(r, h)
				mountOrganizations(r, h)
				mountUsers(r, h)
				mountPosts(r, h)
				mountApprovals(r, h)
				mountAssets(r, h)
				mountAudit(r, h)
			})
		})
	})

	return router
}

var (
	superAdmin = middleware.RequireRole(rbac.RoleSuperAdmin)
	orgAdmins  = middleware.RequireRole(rbac.RoleSuperAdmin, rbac.RoleOrganizationAdmin)
	managers   = middleware.RequireAtLeast(rbac.RoleManager)
	creators   = middleware.RequireAtLeast(rbac.RoleCreator)
)

func mountAuth(r chi.Router, h *handlers.APIHandler) {
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me)
}

func mountOrganizations(r chi.Router, h *handlers.APIHandler) {
	r.Get("/organizations", h.ListOrganizations)
	r.With(superAdmin).Post("/organizations", h.CreateOrganization)
	r.Get("/organizations/slug/{slug}", h.GetOrganizationBySlug)
	r.Get("/organizations/{id}", h.GetOrganization)
	r.With(orgAdmins).Patch("/organizations/{id}", h.UpdateOrganization)
	r.With(superAdmin).Delete("/organizations/{id}", h.DeleteOrganization)
	r.With(managers).Get("/organizations/{id}/statistics", h.GetOrganizationStatistics)
	r.With(orgAdmins).Patch("/organizations/{id}/settings", h.UpdateOrganizationSettings)
}

func mountUsers(r chi.Router, h *handlers.APIHandler) {
	r.Get("/users", h.ListUsers)
	r.With(orgAdmins).Post("/users", h.CreateUser)
	r.Get("/users/{id}", h.GetUser)
	r.With(orgAdmins).Patch("/users/{id}", h.UpdateUser)
	r.With(orgAdmins).Delete("/users/{id}", h.DeleteUser)
}

func mountPosts(r chi.Router, h *handlers.APIHandler) {
	r.Get("/posts", h.ListPosts)
	r.With(creators).Post("/posts", h.CreatePost)
	r.Get("/posts/{id}", h.GetPost)
	r.With(creators).Patch("/posts/{id}", h.UpdatePost)
	r.With(creators).Delete("/posts/{id}", h.DeletePost)
	r.With(creators).Post("/posts/{id}/publish", h.PublishPost)
}

func mountApprovals(r chi.Router, h *handlers.APIHandler) {
	r.Get("/approvals", h.ListWorkflows)
	r.With(creators).Post("/approvals/workflows", h.CreateWorkflow)
	r.Get("/approvals/my-approvals", h.ListMyApprovals)
	r.Get("/approvals/{id}", h.GetWorkflow)
	r.Post("/approvals/{id}/approve", h.ApproveStep)
	r.Post("/approvals/{id}/reject", h.RejectStep)
	r.Post("/approvals/{id}/cancel", h.CancelWorkflow)
}

func mountAssets(r chi.Router, h *handlers.APIHandler) {
	r.Get("/assets", h.ListAssets)
	r.Get("/assets/{id}", h.GetAsset)
	r.With(creators).Delete("/assets/{id}", h.DeleteAsset)
	r.With(creators).Patch("/assets/{id}/attach/{postId}", h.AttachAsset)
	r.Post("/assets/{id}/refresh-url", h.RefreshAssetURL)
	r.Get("/assets/{id}/license", h.GetLicense)
	r.With(creators).Put("/assets/{id}/license", h.PutLicense)
	r.With(creators).Delete("/assets/{id}/license", h.DeleteLicense)
}

func mountAudit(r chi.Router, h *handlers.APIHandler) {
	r.With(managers).Get("/audit-logs", h.ListAuditLogs)
	r.With(managers).Get("/audit-logs/recent", h.RecentAuditLogs)
	r.With(managers).Get("/audit-logs/summary", h.AuditSummary)
	r.With(managers).Get("/audit-logs/entity/{entityType}/{entityId}", h.ListEntityAuditLogs)
	r.With(managers).Get("/audit-logs/{id}", h.GetAuditLog)
	r.With(superAdmin).Post("/audit-logs/retention/sweep", h.SweepAuditLogs)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

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
