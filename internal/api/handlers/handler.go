// handler.go — основной обработчик HTTP API ContentGuard.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой;
// здесь же общие функции разбора запросов и отображения ошибок.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/contentguard/internal/api/errors"
	"github.com/bigkaa/contentguard/internal/api/middleware"
	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/service"
)

// maxJSONBody — предел размера JSON-тела запроса.
const maxJSONBody = 1 << 20

// Services — сервисы, которые обслуживает API.
type Services struct {
	Auth          *service.AuthService
	Organizations *service.OrganizationService
	Users         *service.UserService
	Posts         *service.PostService
	Approvals     *service.ApprovalService
	Assets        *service.AssetService
	Audit         *service.AuditService
}

// APIHandler — основной обработчик API ContentGuard.
type APIHandler struct {
	health        *HealthHandler
	svc           Services
	validate      *validator.Validate
	uploadMaxSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// uploadMaxSize — предел размера загружаемого файла (CG_UPLOAD_MAX_SIZE).
func NewAPIHandler(health *HealthHandler, svc Services, uploadMaxSize int64, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:        health,
		svc:           svc,
		validate:      newValidator(),
		uploadMaxSize: uploadMaxSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// newValidator создаёт validator, использующий имена JSON-полей в сообщениях.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeAndValidate разбирает JSON-тело в dst и проверяет теги validate.
// При ошибке ответ уже записан, возвращается false.
func (h *APIHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			apierrors.ValidationError(w, "Пустое тело запроса")
			return false
		}
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		apierrors.ValidationError(w, validationMessage(err))
		return false
	}
	return true
}

// validationMessage формирует читаемое сообщение из ошибок validator.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: нарушено правило %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: нарушено правило %s", field, fe.Tag()))
		}
	}
	return "Ошибка валидации: " + strings.Join(msgs, "; ")
}

// bindQuery разбирает необязательный query-параметр (form, explode) в dest.
func bindQuery(r *http.Request, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		return fmt.Errorf("параметр %s: %w", name, err)
	}
	return nil
}

// bindQueries разбирает несколько query-параметров; возвращает первую ошибку.
func bindQueries(r *http.Request, params map[string]any) error {
	for name, dest := range params {
		if err := bindQuery(r, name, dest); err != nil {
			return err
		}
	}
	return nil
}

// pageParams разбирает page и limit. Значения по умолчанию и верхний
// предел применяет сервисный слой.
func pageParams(r *http.Request) (model.Page, error) {
	var page, limit *int
	if err := bindQueries(r, map[string]any{"page": &page, "limit": &limit}); err != nil {
		return model.Page{}, err
	}
	var p model.Page
	if page != nil {
		if *page < 1 {
			return p, errors.New("параметр page должен быть не меньше 1")
		}
		p.Page = *page
	}
	if limit != nil {
		if *limit < 1 {
			return p, errors.New("параметр limit должен быть не меньше 1")
		}
		p.Limit = *limit
	}
	return p, nil
}

// actorFrom извлекает субъекта, помещённого JWT middleware.
func actorFrom(w http.ResponseWriter, r *http.Request) (rbac.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
	}
	return actor, ok
}

// clientContext формирует сведения о клиенте для журнала аудита.
func clientContext(r *http.Request) service.ClientContext {
	return service.ClientContext{
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}.Normalize()
}

// pathParam возвращает параметр пути chi.
func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
// Внутренние ошибки логируются, клиенту возвращается общее сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, msg)
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, msg)
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, msg)
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, msg)
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, msg)
	case errors.Is(err, service.ErrInvalidTransition):
		apierrors.InvalidTransition(w, msg)
	case errors.Is(err, service.ErrInvalidState):
		apierrors.InvalidState(w, msg)
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Warn("Объектное хранилище недоступно",
			slog.String("path", r.URL.Path),
			slog.String("error", msg),
		)
		apierrors.StorageUnavailable(w, "Объектное хранилище недоступно")
	case errors.Is(err, service.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("Превышено время обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("error", msg),
		)
		apierrors.Timeout(w, "Превышено время ожидания, повторите запрос")
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", msg),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
