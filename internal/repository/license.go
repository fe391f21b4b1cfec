package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// LicenseRepository — доступ к таблице licenses (1:1 с assets).
type LicenseRepository interface {
	// Upsert создаёт или заменяет лицензию вложения.
	// created = true, если лицензия создана впервые.
	Upsert(ctx context.Context, l *model.License) (created bool, err error)
	// GetByAssetID возвращает лицензию вложения.
	GetByAssetID(ctx context.Context, assetID string) (*model.License, error)
	// DeleteByAssetID удаляет лицензию вложения.
	DeleteByAssetID(ctx context.Context, assetID string) error
}

type licenseRepo struct {
	db DBTX
}

// NewLicenseRepository создаёт репозиторий лицензий.
func NewLicenseRepository(db DBTX) LicenseRepository {
	return &licenseRepo{db: db}
}

func (r *licenseRepo) Upsert(ctx context.Context, l *model.License) (bool, error) {
	// xmax = 0 только у только что вставленной строки
	query := `
		INSERT INTO licenses (id, asset_id, type, holder, provider, license_number, start_date,
			expiration_date, usage_rights, restrictions, terms, document_url, cost, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::numeric, $14)
		ON CONFLICT (asset_id) DO UPDATE
		SET type = EXCLUDED.type, holder = EXCLUDED.holder, provider = EXCLUDED.provider,
			license_number = EXCLUDED.license_number, start_date = EXCLUDED.start_date,
			expiration_date = EXCLUDED.expiration_date, usage_rights = EXCLUDED.usage_rights,
			restrictions = EXCLUDED.restrictions, terms = EXCLUDED.terms,
			document_url = EXCLUDED.document_url, cost = EXCLUDED.cost, notes = EXCLUDED.notes,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`

	var created bool
	err := r.db.QueryRow(ctx, query,
		l.ID, l.AssetID, l.Type, l.Holder, l.Provider, l.LicenseNumber, l.StartDate,
		l.ExpirationDate, l.UsageRights, l.Restrictions, l.Terms, l.DocumentURL, l.Cost, l.Notes,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt, &created)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, fmt.Errorf("%w: вложение %s", ErrNotFound, l.AssetID)
		}
		return false, fmt.Errorf("ошибка сохранения лицензии: %w", err)
	}
	return created, nil
}

func (r *licenseRepo) GetByAssetID(ctx context.Context, assetID string) (*model.License, error) {
	query := `
		SELECT id, asset_id, type, holder, provider, license_number, start_date, expiration_date,
			usage_rights, restrictions, terms, document_url, cost::text, notes, created_at, updated_at
		FROM licenses
		WHERE asset_id = $1`

	l := &model.License{}
	err := r.db.QueryRow(ctx, query, assetID).Scan(
		&l.ID, &l.AssetID, &l.Type, &l.Holder, &l.Provider, &l.LicenseNumber, &l.StartDate,
		&l.ExpirationDate, &l.UsageRights, &l.Restrictions, &l.Terms, &l.DocumentURL,
		&l.Cost, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения лицензии: %w", err)
	}
	return l, nil
}

func (r *licenseRepo) DeleteByAssetID(ctx context.Context, assetID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM licenses WHERE asset_id = $1`, assetID)
	if err != nil {
		return fmt.Errorf("ошибка удаления лицензии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
