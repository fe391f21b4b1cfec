package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// AuditLogRepository — доступ к таблице audit_logs.
// Записи только добавляются; удаление возможно лишь через DeleteOlderThan.
type AuditLogRepository interface {
	// Create добавляет запись журнала.
	Create(ctx context.Context, e *model.AuditLog) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.AuditLog, error)
	// List возвращает записи с фильтрацией, новые первыми.
	List(ctx context.Context, filter model.AuditFilter, limit, offset int) ([]*model.AuditLog, error)
	// Count возвращает количество записей с фильтрацией.
	Count(ctx context.Context, filter model.AuditFilter) (int, error)
	// Summary возвращает количество записей по типам событий.
	Summary(ctx context.Context, filter model.AuditFilter) ([]model.AuditActionCount, error)
	// DeleteOlderThan удаляет записи, созданные раньше before, и возвращает их количество.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

const auditLogColumns = `id, action, entity_type, entity_id, user_id, organization_id,
	ip_address, user_agent, metadata, old_values, new_values, created_at`

type auditLogRepo struct {
	db DBTX
}

// NewAuditLogRepository создаёт репозиторий журнала аудита.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func scanAuditLog(row pgx.Row) (*model.AuditLog, error) {
	e := &model.AuditLog{}
	var action string
	err := row.Scan(
		&e.ID, &action, &e.EntityType, &e.EntityID, &e.UserID, &e.OrganizationID,
		&e.IPAddress, &e.UserAgent, &e.Metadata, &e.OldValues, &e.NewValues, &e.CreatedAt,
	)
	e.Action = model.AuditAction(action)
	return e, err
}

func (r *auditLogRepo) Create(ctx context.Context, e *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, organization_id,
			ip_address, user_agent, metadata, old_values, new_values, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Exec(ctx, query,
		e.ID, string(e.Action), e.EntityType, e.EntityID, e.UserID, e.OrganizationID,
		e.IPAddress, e.UserAgent, e.Metadata, e.OldValues, e.NewValues, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи аудита: %w", err)
	}
	return nil
}

func (r *auditLogRepo) GetByID(ctx context.Context, id string) (*model.AuditLog, error) {
	query := `SELECT ` + auditLogColumns + ` FROM audit_logs WHERE id = $1`

	e, err := scanAuditLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи аудита: %w", err)
	}
	return e, nil
}

// buildAuditWhere строит WHERE-условие для выборки журнала.
// Диапазон дат применяется только при заданных обеих границах.
func buildAuditWhere(filter model.AuditFilter) *whereBuilder {
	b := &whereBuilder{}
	if filter.OrganizationID != nil {
		b.add("organization_id = $%d", *filter.OrganizationID)
	}
	if filter.UserID != nil {
		b.add("user_id = $%d", *filter.UserID)
	}
	if filter.Action != nil {
		b.add("action = $%d", string(*filter.Action))
	}
	if filter.EntityType != nil {
		b.add("entity_type = $%d", *filter.EntityType)
	}
	if filter.EntityID != nil {
		b.add("entity_id = $%d", *filter.EntityID)
	}
	if filter.StartDate != nil && filter.EndDate != nil {
		b.add("created_at >= $%d", *filter.StartDate)
		b.add("created_at <= $%d", *filter.EndDate)
	}
	return b
}

func (r *auditLogRepo) List(ctx context.Context, filter model.AuditFilter, limit, offset int) ([]*model.AuditLog, error) {
	b := buildAuditWhere(filter)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM audit_logs %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, auditLogColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала аудита: %w", err)
	}
	defer rows.Close()

	var result []*model.AuditLog
	for rows.Next() {
		e, err := scanAuditLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи аудита: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *auditLogRepo) Count(ctx context.Context, filter model.AuditFilter) (int, error) {
	where, args := buildAuditWhere(filter).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей аудита: %w", err)
	}
	return count, nil
}

func (r *auditLogRepo) Summary(ctx context.Context, filter model.AuditFilter) ([]model.AuditActionCount, error) {
	where, args := buildAuditWhere(filter).build()

	query := `SELECT action, COUNT(*) FROM audit_logs ` + where + `
		GROUP BY action
		ORDER BY COUNT(*) DESC, action`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сводки аудита: %w", err)
	}
	defer rows.Close()

	var result []model.AuditActionCount
	for rows.Next() {
		var action string
		var c model.AuditActionCount
		if err := rows.Scan(&action, &c.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования сводки аудита: %w", err)
		}
		c.Action = model.AuditAction(action)
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *auditLogRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки журнала аудита: %w", err)
	}
	return tag.RowsAffected(), nil
}
