// audit.go — журнал аудита: запись событий, выборки и очистка по сроку хранения.
// Запись события не возвращает ошибок вызывающему коду: сбой журнала
// логируется и учитывается в метрике, основная операция не прерывается.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
)

// auditWriteTimeout — предельное время записи одного события.
const auditWriteTimeout = 5 * time.Second

// Параметры выборки последних событий.
const (
	DefaultRecentLimit = 10
)

var auditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cg_audit_write_failures_total",
	Help: "Количество событий аудита, которые не удалось сохранить.",
})

// AuditEvent — событие для записи в журнал.
type AuditEvent struct {
	Action     model.AuditAction
	EntityType string
	EntityID   string
	// Actor — инициатор (nil для системных и неаутентифицированных событий)
	Actor *rbac.Actor
	// OrganizationID — организация события; если не задана, берётся организация инициатора
	OrganizationID *string
	Client         ClientContext
	Metadata       map[string]any
	OldValues      map[string]any
	NewValues      map[string]any
}

// AuditService — сервис журнала аудита.
type AuditService struct {
	uow       UnitOfWork
	retention time.Duration
	interval  time.Duration
	deps      deps
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAuditService создаёт сервис журнала аудита.
// retention — срок хранения записей, interval — период фоновой очистки (0 — отключена).
func NewAuditService(uow UnitOfWork, retention, interval time.Duration, logger *slog.Logger) *AuditService {
	return &AuditService{
		uow:       uow,
		retention: retention,
		interval:  interval,
		deps:      defaultDeps(),
		logger:    logger.With(slog.String("component", "audit_service")),
	}
}

// Record сохраняет событие. Возвращает nil, если запись не удалась.
// Запись выполняется вне транзакции основной операции и не наследует
// отмену контекста запроса.
func (s *AuditService) Record(ctx context.Context, ev AuditEvent) *model.AuditLog {
	client := ev.Client.Normalize()

	entry := &model.AuditLog{
		ID:         s.deps.newID(),
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   strPtr(ev.EntityID),
		IPAddress:  strPtr(client.IPAddress),
		UserAgent:  strPtr(client.UserAgent),
		Metadata:   ev.Metadata,
		OldValues:  ev.OldValues,
		NewValues:  ev.NewValues,
		CreatedAt:  s.deps.now(),
	}
	if ev.Actor != nil {
		entry.UserID = strPtr(ev.Actor.UserID)
		entry.OrganizationID = strPtr(ev.Actor.OrganizationID)
	}
	if ev.OrganizationID != nil {
		entry.OrganizationID = ev.OrganizationID
	}

	if !ev.Action.IsValid() {
		auditWriteFailuresTotal.Inc()
		s.logger.Warn("Неизвестный тип события аудита",
			slog.String("action", string(ev.Action)),
		)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := s.uow.Repos().AuditLogs.Create(writeCtx, entry); err != nil {
		auditWriteFailuresTotal.Inc()
		s.logger.Warn("Не удалось записать событие аудита",
			slog.String("action", string(ev.Action)),
			slog.String("entity_type", ev.EntityType),
			slog.String("entity_id", ev.EntityID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return entry
}

// canReadAudit — журнал доступен ролям не ниже manager.
func canReadAudit(actor rbac.Actor) error {
	if !rbac.AtLeast(actor.Role, rbac.RoleManager) {
		return ErrForbidden
	}
	return nil
}

// scopeFilter перезаписывает фильтр организации для всех ролей, кроме super_admin.
func scopeFilter(actor rbac.Actor, filter model.AuditFilter) model.AuditFilter {
	filter.OrganizationID = rbac.ScopeOrganization(actor, filter.OrganizationID)
	return filter
}

// Query возвращает страницу журнала, новые записи первыми.
func (s *AuditService) Query(ctx context.Context, actor rbac.Actor, filter model.AuditFilter, page model.Page) (*Paginated[*model.AuditLog], error) {
	if err := canReadAudit(actor); err != nil {
		return nil, err
	}
	if filter.Action != nil && !filter.Action.IsValid() {
		return nil, validationErr("неизвестный тип события: %s", *filter.Action)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, validationErr("endDate раньше startDate")
	}

	filter = scopeFilter(actor, filter)
	page = normalizePage(page, DefaultPageLimit)

	repo := s.uow.Repos().AuditLogs
	items, err := repo.List(ctx, filter, page.Limit, page.Offset())
	if err != nil {
		return nil, translateRepoErr(err)
	}
	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return newPaginated(items, total, page), nil
}

// Get возвращает одну запись. Запись другой организации — ErrNotFound.
func (s *AuditService) Get(ctx context.Context, actor rbac.Actor, id string) (*model.AuditLog, error) {
	if err := canReadAudit(actor); err != nil {
		return nil, err
	}
	entry, err := s.uow.Repos().AuditLogs.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if !actor.IsSuperAdmin() {
		if entry.OrganizationID == nil || rbac.Authorize(actor, *entry.OrganizationID) != nil {
			return nil, ErrNotFound
		}
	}
	return entry, nil
}

// ByEntity возвращает историю одной сущности.
func (s *AuditService) ByEntity(ctx context.Context, actor rbac.Actor, entityType, entityID string, page model.Page) (*Paginated[*model.AuditLog], error) {
	if entityType == "" || entityID == "" {
		return nil, validationErr("entityType и entityId обязательны")
	}
	return s.Query(ctx, actor, model.AuditFilter{EntityType: &entityType, EntityID: &entityID}, page)
}

// Recent возвращает последние события организации субъекта
// (для super_admin — по всем организациям, если organizationID не задан).
func (s *AuditService) Recent(ctx context.Context, actor rbac.Actor, organizationID *string, limit int) ([]*model.AuditLog, error) {
	if err := canReadAudit(actor); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	filter := scopeFilter(actor, model.AuditFilter{OrganizationID: organizationID})
	items, err := s.uow.Repos().AuditLogs.List(ctx, filter, limit, 0)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if items == nil {
		items = []*model.AuditLog{}
	}
	return items, nil
}

// Summary возвращает количество событий по типам.
// Диапазон дат применяется, только если заданы обе границы.
func (s *AuditService) Summary(ctx context.Context, actor rbac.Actor, organizationID *string, start, end *time.Time) ([]model.AuditActionCount, error) {
	if err := canReadAudit(actor); err != nil {
		return nil, err
	}
	filter := scopeFilter(actor, model.AuditFilter{OrganizationID: organizationID, StartDate: start, EndDate: end})
	counts, err := s.uow.Repos().AuditLogs.Summary(ctx, filter)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if counts == nil {
		counts = []model.AuditActionCount{}
	}
	return counts, nil
}

// Sweep удаляет записи старше срока хранения и возвращает их количество.
// Очистка сама в журнал не записывается.
func (s *AuditService) Sweep(ctx context.Context) (int64, error) {
	before := s.deps.now().Add(-s.retention)
	removed, err := s.uow.Repos().AuditLogs.DeleteOlderThan(ctx, before)
	if err != nil {
		return 0, translateRepoErr(err)
	}
	s.logger.Info("Очистка журнала аудита завершена",
		slog.Int64("removed", removed),
		slog.Time("before", before),
	)
	return removed, nil
}

// Start запускает фоновую очистку журнала с периодом interval.
// При interval == 0 ничего не делает.
func (s *AuditService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Фоновая очистка журнала аудита отключена")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Фоновая очистка журнала аудита запущена",
			slog.String("interval", s.interval.String()),
			slog.String("retention", s.retention.String()),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Фоновая очистка журнала аудита остановлена")
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("Ошибка очистки журнала аудита", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop останавливает фоновую очистку и дожидается завершения горутины.
func (s *AuditService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}
