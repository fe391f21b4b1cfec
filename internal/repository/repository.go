// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
// Мягко удалённые записи (deleted_at IS NOT NULL) по умолчанию не возвращаются.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — запись уже существует")
	// ErrStaleState — запись изменена параллельной операцией
	// (условие оптимистичной проверки не выполнено).
	ErrStaleState = errors.New("состояние записи изменилось")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos — набор репозиториев, работающих через одно подключение
// (пул или транзакцию).
type Repos struct {
	Organizations OrganizationRepository
	Users         UserRepository
	Posts         PostRepository
	Approvals     ApprovalRepository
	Assets        AssetRepository
	Licenses      LicenseRepository
	AuditLogs     AuditLogRepository
}

// NewRepos создаёт набор репозиториев поверх db.
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Organizations: NewOrganizationRepository(db),
		Users:         NewUserRepository(db),
		Posts:         NewPostRepository(db),
		Approvals:     NewApprovalRepository(db),
		Assets:        NewAssetRepository(db),
		Licenses:      NewLicenseRepository(db),
		AuditLogs:     NewAuditLogRepository(db),
	}
}

// TxRunner позволяет выполнять операции в транзакции.
type TxRunner struct {
	pool  *pgxpool.Pool
	repos *Repos
}

// NewTxRunner создаёт TxRunner для управления транзакциями.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, repos: NewRepos(pool)}
}

// Repos возвращает репозитории, работающие вне транзакции (через пул).
func (r *TxRunner) Repos() *Repos {
	return r.repos
}

// RunInTx выполняет fn внутри транзакции.
// При ошибке fn — транзакция откатывается.
// При успехе — коммитится.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// InTx выполняет fn с репозиториями, привязанными к одной транзакции.
func (r *TxRunner) InTx(ctx context.Context, fn func(repos *Repos) error) error {
	return r.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(NewRepos(tx))
	})
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyViolation проверяет нарушение внешнего ключа.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

// whereBuilder накапливает условия WHERE и позиционные аргументы.
type whereBuilder struct {
	conditions []string
	args       []any
}

// add добавляет условие; %d в cond заменяется номером аргумента.
func (b *whereBuilder) add(cond string, arg any) {
	b.args = append(b.args, arg)
	b.conditions = append(b.conditions, fmt.Sprintf(cond, len(b.args)))
}

// raw добавляет условие без аргумента.
func (b *whereBuilder) raw(cond string) {
	b.conditions = append(b.conditions, cond)
}

// build возвращает WHERE-часть и аргументы.
func (b *whereBuilder) build() (string, []any) {
	if len(b.conditions) == 0 {
		return "", b.args
	}
	where := "WHERE " + b.conditions[0]
	for _, c := range b.conditions[1:] {
		where += " AND " + c
	}
	return where, b.args
}

// nextArg возвращает номер следующего позиционного аргумента.
func (b *whereBuilder) nextArg() int {
	return len(b.args) + 1
}

// emptyIfNil заменяет nil-карту пустой, чтобы в JSONB NOT NULL попадал {}.
func emptyIfNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
