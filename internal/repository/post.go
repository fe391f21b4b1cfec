package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// PostRepository — интерфейс CRUD для таблицы posts.
type PostRepository interface {
	// Create создаёт пост.
	Create(ctx context.Context, p *model.Post) error
	// GetByID возвращает пост по UUID.
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// GetByIDForUpdate возвращает пост и блокирует строку до конца транзакции.
	GetByIDForUpdate(ctx context.Context, id string) (*model.Post, error)
	// List возвращает посты с фильтрацией, новые первыми.
	List(ctx context.Context, filters PostFilters, limit, offset int) ([]*model.Post, error)
	// Count возвращает количество постов с фильтрацией.
	Count(ctx context.Context, filters PostFilters) (int, error)
	// Update сохраняет изменяемые поля поста, включая статус.
	Update(ctx context.Context, p *model.Post) error
	// UpdateStatus переводит пост из статуса from в to.
	// Если текущий статус отличается от from — ErrStaleState.
	UpdateStatus(ctx context.Context, id, from, to string) error
	// SoftDelete помечает пост удалённым.
	SoftDelete(ctx context.Context, id string) error
}

// PostFilters — фильтры списка постов.
type PostFilters struct {
	OrganizationID *string
	Status         *string
	CreatedBy      *string
	Platform       *string
}

const postColumns = `id, title, content, platform, status, scheduled_at, published_at,
	metadata, organization_id, created_by, created_at, updated_at, deleted_at`

type postRepo struct {
	db DBTX
}

// NewPostRepository создаёт репозиторий постов.
func NewPostRepository(db DBTX) PostRepository {
	return &postRepo{db: db}
}

func scanPost(row pgx.Row) (*model.Post, error) {
	p := &model.Post{}
	err := row.Scan(
		&p.ID, &p.Title, &p.Content, &p.Platform, &p.Status, &p.ScheduledAt, &p.PublishedAt,
		&p.Metadata, &p.OrganizationID, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt,
	)
	return p, err
}

func (r *postRepo) Create(ctx context.Context, p *model.Post) error {
	query := `
		INSERT INTO posts (id, title, content, platform, status, scheduled_at, published_at,
			metadata, organization_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Title, p.Content, p.Platform, p.Status, p.ScheduledAt, p.PublishedAt,
		emptyIfNil(p.Metadata), p.OrganizationID, p.CreatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пост %s уже существует", ErrConflict, p.ID)
		}
		return fmt.Errorf("ошибка создания поста: %w", err)
	}
	return nil
}

func (r *postRepo) GetByID(ctx context.Context, id string) (*model.Post, error) {
	return r.get(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *postRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Post, error) {
	return r.get(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
}

func (r *postRepo) get(ctx context.Context, query, id string) (*model.Post, error) {
	p, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения поста: %w", err)
	}
	return p, nil
}

// buildPostWhere строит WHERE-условие для списка постов.
func buildPostWhere(filters PostFilters) *whereBuilder {
	b := &whereBuilder{}
	b.raw("deleted_at IS NULL")
	if filters.OrganizationID != nil {
		b.add("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.Status != nil {
		b.add("status = $%d", *filters.Status)
	}
	if filters.CreatedBy != nil {
		b.add("created_by = $%d", *filters.CreatedBy)
	}
	if filters.Platform != nil {
		b.add("platform = $%d", *filters.Platform)
	}
	return b
}

func (r *postRepo) List(ctx context.Context, filters PostFilters, limit, offset int) ([]*model.Post, error) {
	b := buildPostWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM posts %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, postColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка постов: %w", err)
	}
	defer rows.Close()

	var result []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования поста: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *postRepo) Count(ctx context.Context, filters PostFilters) (int, error) {
	where, args := buildPostWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта постов: %w", err)
	}
	return count, nil
}

func (r *postRepo) Update(ctx context.Context, p *model.Post) error {
	query := `
		UPDATE posts
		SET title = $2, content = $3, platform = $4, status = $5, scheduled_at = $6,
			published_at = $7, metadata = $8, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Title, p.Content, p.Platform, p.Status, p.ScheduledAt,
		p.PublishedAt, emptyIfNil(p.Metadata),
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления поста: %w", err)
	}
	return nil
}

func (r *postRepo) UpdateStatus(ctx context.Context, id, from, to string) error {
	query := `
		UPDATE posts
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса поста: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: пост %s не в статусе %s", ErrStaleState, id, from)
	}
	return nil
}

func (r *postRepo) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE posts
		SET deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка удаления поста: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
