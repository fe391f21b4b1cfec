package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// OrganizationRepository — интерфейс CRUD для таблицы organizations.
type OrganizationRepository interface {
	// Create создаёт организацию.
	Create(ctx context.Context, org *model.Organization) error
	// GetByID возвращает организацию по UUID.
	GetByID(ctx context.Context, id string) (*model.Organization, error)
	// GetBySlug возвращает организацию по slug.
	GetBySlug(ctx context.Context, slug string) (*model.Organization, error)
	// List возвращает организации с фильтрацией, новые первыми.
	List(ctx context.Context, filters OrganizationFilters, limit, offset int) ([]*model.Organization, error)
	// Count возвращает количество организаций с фильтрацией.
	Count(ctx context.Context, filters OrganizationFilters) (int, error)
	// Update обновляет изменяемые поля организации.
	Update(ctx context.Context, org *model.Organization) error
	// SoftDelete помечает организацию удалённой и неактивной.
	SoftDelete(ctx context.Context, id string) error
	// Statistics возвращает агрегированные показатели организации.
	Statistics(ctx context.Context, id string) (*model.OrganizationStatistics, error)
}

// OrganizationFilters — фильтры списка организаций.
type OrganizationFilters struct {
	// ID — ограничить выборку одной организацией
	ID *string
	// IncludeInactive — включать неактивные организации
	IncludeInactive bool
}

const organizationColumns = `id, name, slug, description, logo_url, website, is_active,
	settings, created_at, updated_at, deleted_at`

type organizationRepo struct {
	db DBTX
}

// NewOrganizationRepository создаёт репозиторий организаций.
func NewOrganizationRepository(db DBTX) OrganizationRepository {
	return &organizationRepo{db: db}
}

func scanOrganization(row pgx.Row) (*model.Organization, error) {
	o := &model.Organization{}
	err := row.Scan(
		&o.ID, &o.Name, &o.Slug, &o.Description, &o.LogoURL, &o.Website, &o.IsActive,
		&o.Settings, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt,
	)
	return o, err
}

func (r *organizationRepo) Create(ctx context.Context, org *model.Organization) error {
	query := `
		INSERT INTO organizations (id, name, slug, description, logo_url, website, is_active, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.Description, org.LogoURL, org.Website,
		org.IsActive, emptyIfNil(org.Settings),
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: организация со slug %q уже существует", ErrConflict, org.Slug)
		}
		return fmt.Errorf("ошибка создания организации: %w", err)
	}
	return nil
}

func (r *organizationRepo) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE id = $1 AND deleted_at IS NULL`

	o, err := scanOrganization(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения организации: %w", err)
	}
	return o, nil
}

func (r *organizationRepo) GetBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE slug = $1 AND deleted_at IS NULL`

	o, err := scanOrganization(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения организации по slug: %w", err)
	}
	return o, nil
}

// buildOrganizationWhere строит WHERE-условие для списка организаций.
func buildOrganizationWhere(filters OrganizationFilters) *whereBuilder {
	b := &whereBuilder{}
	b.raw("deleted_at IS NULL")
	if !filters.IncludeInactive {
		b.raw("is_active = TRUE")
	}
	if filters.ID != nil {
		b.add("id = $%d", *filters.ID)
	}
	return b
}

func (r *organizationRepo) List(ctx context.Context, filters OrganizationFilters, limit, offset int) ([]*model.Organization, error) {
	b := buildOrganizationWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM organizations %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, organizationColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка организаций: %w", err)
	}
	defer rows.Close()

	var result []*model.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования организации: %w", err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *organizationRepo) Count(ctx context.Context, filters OrganizationFilters) (int, error) {
	where, args := buildOrganizationWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM organizations `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта организаций: %w", err)
	}
	return count, nil
}

func (r *organizationRepo) Update(ctx context.Context, org *model.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, slug = $3, description = $4, logo_url = $5, website = $6,
			is_active = $7, settings = $8, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		org.ID, org.Name, org.Slug, org.Description, org.LogoURL, org.Website,
		org.IsActive, emptyIfNil(org.Settings),
	).Scan(&org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: организация со slug %q уже существует", ErrConflict, org.Slug)
		}
		return fmt.Errorf("ошибка обновления организации: %w", err)
	}
	return nil
}

func (r *organizationRepo) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE organizations
		SET is_active = FALSE, deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка удаления организации: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *organizationRepo) Statistics(ctx context.Context, id string) (*model.OrganizationStatistics, error) {
	stats := &model.OrganizationStatistics{
		OrganizationID:    id,
		PostsByStatus:     map[string]int{},
		WorkflowsByStatus: map[string]int{},
	}

	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE organization_id = $1 AND deleted_at IS NULL AND is_active),
			(SELECT COUNT(*) FROM assets WHERE organization_id = $1 AND deleted_at IS NULL)`, id,
	).Scan(&stats.Users, &stats.Assets)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта пользователей и вложений: %w", err)
	}

	if err := r.countByStatus(ctx, `
		SELECT status, COUNT(*) FROM posts
		WHERE organization_id = $1 AND deleted_at IS NULL
		GROUP BY status`, id, stats.PostsByStatus); err != nil {
		return nil, fmt.Errorf("ошибка подсчёта постов: %w", err)
	}
	if err := r.countByStatus(ctx, `
		SELECT status, COUNT(*) FROM approval_workflows
		WHERE organization_id = $1
		GROUP BY status`, id, stats.WorkflowsByStatus); err != nil {
		return nil, fmt.Errorf("ошибка подсчёта workflow: %w", err)
	}
	return stats, nil
}

func (r *organizationRepo) countByStatus(ctx context.Context, query, id string, dst map[string]int) error {
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		dst[status] = n
	}
	return rows.Err()
}
