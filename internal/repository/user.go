package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// UserRepository — интерфейс CRUD для таблицы users.
type UserRepository interface {
	// Create создаёт пользователя.
	Create(ctx context.Context, u *model.User) error
	// GetByID возвращает пользователя по UUID.
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByEmail возвращает пользователя по email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List возвращает пользователей с фильтрацией.
	List(ctx context.Context, filters UserFilters, limit, offset int) ([]*model.User, error)
	// Count возвращает количество пользователей с фильтрацией.
	Count(ctx context.Context, filters UserFilters) (int, error)
	// Update обновляет профиль, роль, статус и хэш пароля.
	Update(ctx context.Context, u *model.User) error
	// TouchLastLogin фиксирует время последнего входа.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// SoftDelete помечает пользователя удалённым.
	SoftDelete(ctx context.Context, id string) error
	// GetSummaries возвращает краткие сведения о пользователях по списку UUID,
	// включая удалённых (для истории согласований).
	GetSummaries(ctx context.Context, ids []string) ([]model.UserSummary, error)
}

// UserFilters — фильтры списка пользователей.
type UserFilters struct {
	OrganizationID *string
	Role           *string
	IsActive       *bool
}

const userColumns = `id, email, password_hash, first_name, last_name, role, avatar_url,
	organization_id, is_active, is_email_verified, last_login_at, created_at, updated_at, deleted_at`

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.AvatarURL,
		&u.OrganizationID, &u.IsActive, &u.IsEmailVerified, &u.LastLoginAt,
		&u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
	)
	return u, err
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role, avatar_url,
			organization_id, is_active, is_email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.AvatarURL,
		u.OrganizationID, u.IsActive, u.IsEmailVerified,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с email %q уже существует", ErrConflict, u.Email)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: организация %s", ErrNotFound, u.OrganizationID)
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`

	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`

	u, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по email: %w", err)
	}
	return u, nil
}

// buildUserWhere строит WHERE-условие для списка пользователей.
func buildUserWhere(filters UserFilters) *whereBuilder {
	b := &whereBuilder{}
	b.raw("deleted_at IS NULL")
	if filters.OrganizationID != nil {
		b.add("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.Role != nil {
		b.add("role = $%d", *filters.Role)
	}
	if filters.IsActive != nil {
		b.add("is_active = $%d", *filters.IsActive)
	}
	return b
}

func (r *userRepo) List(ctx context.Context, filters UserFilters, limit, offset int) ([]*model.User, error) {
	b := buildUserWhere(filters)
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM users %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, userColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка пользователей: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) Count(ctx context.Context, filters UserFilters) (int, error) {
	where, args := buildUserWhere(filters).build()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (r *userRepo) Update(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5, role = $6,
			avatar_url = $7, is_active = $8, is_email_verified = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.AvatarURL, u.IsActive, u.IsEmailVerified,
	).Scan(&u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: пользователь с email %q уже существует", ErrConflict, u.Email)
		}
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("ошибка обновления времени входа: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET is_active = FALSE, deleted_at = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) GetSummaries(ctx context.Context, ids []string) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, email, first_name, last_name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения сведений о пользователях: %w", err)
	}
	defer rows.Close()

	result := make([]model.UserSummary, 0, len(ids))
	for rows.Next() {
		u := model.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result = append(result, model.UserSummary{ID: u.ID, DisplayName: u.DisplayName(), Email: u.Email})
	}
	return result, rows.Err()
}
