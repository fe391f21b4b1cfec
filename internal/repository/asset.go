package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// AssetRepository — интерфейс CRUD для таблицы assets.
type AssetRepository interface {
	// Create создаёт запись вложения.
	Create(ctx context.Context, a *model.Asset) error
	// GetByID возвращает вложение по UUID.
	GetByID(ctx context.Context, id string) (*model.Asset, error)
	// List возвращает вложения с фильтрацией, новые первыми.
	List(ctx context.Context, filters AssetFilters, limit, offset int) ([]*model.Asset, error)
	// Count возвращает количество вложений с фильтрацией.
	Count(ctx context.Context, filters AssetFilters) (int, error)
	// AttachToPost устанавливает post_id вложения.
	AttachToPost(ctx context.Context, id, postID string) error
	// UpdateURL сохраняет обновлённую ссылку доступа.
	UpdateURL(ctx context.Context, id, url string) error
	// SoftDelete помечает вложение удалённым.
	SoftDelete(ctx context.Context, id string) error
}

// AssetFilters — фильтры списка вложений.
type AssetFilters struct {
	OrganizationID *string
	Type           *string
	PostID         *string
}

const assetColumns = `id, type, original_name, file_name, storage_path, url, mime_type, size,
	checksum, description, organization_id, post_id, uploaded_by, created_at, updated_at, deleted_at`

type assetRepo struct {
	db DBTX
}

// NewAssetRepository создаёт репозиторий вложений.
func NewAssetRepository(db DBTX) AssetRepository {
	return &assetRepo{db: db}
}

func scanAsset(row pgx.Row) (*model.Asset, error) {
	a := &model.Asset{}
	err := row.Scan(
		&a.ID, &a.Type, &a.OriginalName, &a.FileName, &a.StoragePath, &a.URL, &a.MimeType, &a.Size,
		&a.Checksum, &a.Description, &a.OrganizationID, &a.PostID, &a.UploadedBy,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	return a, err
}

func (r *assetRepo) Create(ctx context.Context, a *model.Asset) error {
	query := `
		INSERT INTO assets (id, type, original_name, file_name, storage_path, url, mime_type,
			size, checksum, description, organization_id, post_id, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.ID, a.Type, a.OriginalName, a.FileName, a.StoragePath, a.URL, a.MimeType,
		a.Size, a.Checksum, a.Description, a.OrganizationID, a.PostID, a.UploadedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: вложение %s уже существует", ErrConflict, a.ID)
		}
		return fmt.Errorf("ошибка создания вложения: %w", err)
	}
	return nil
}

func (r *assetRepo) GetByID(ctx context.Context, id string) (*model.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 AND deleted_at IS NULL`

	a, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения вложения: %w", err)
	}
	return a, nil
}

// buildAssetWhere строит WHERE-условие для списка вложений.
func buildAssetWhere(filters AssetFilters) *whereBuilder {
	b := &whereBuilder{}
	b.raw("deleted_at IS NULL")
	if filters.OrganizationID != nil {
		b.add("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.Type != nil {
		b.add("type = $%d", *filters.Type)
	}
	if filters.PostID != nil {
		b.add("post_id = $%d", *filters.PostID)
	}
	return b
}

func (r *assetRepo) List(ctx context.Context, filters AssetFilters, limit, offset int) ([]*model.Asset, error) {
	b := buildAssetWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM assets %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, assetColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка вложений: %w", err)
	}
	defer rows.Close()

	var result []*model.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вложения: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *assetRepo) Count(ctx context.Context, filters AssetFilters) (int, error) {
	where, args := buildAssetWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM assets `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта вложений: %w", err)
	}
	return count, nil
}

func (r *assetRepo) AttachToPost(ctx context.Context, id, postID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET post_id = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, postID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: пост %s", ErrNotFound, postID)
		}
		return fmt.Errorf("ошибка прикрепления вложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) UpdateURL(ctx context.Context, id, url string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET url = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, url)
	if err != nil {
		return fmt.Errorf("ошибка обновления ссылки вложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE assets SET deleted_at = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка удаления вложения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
