// Пакет service — бизнес-логика ContentGuard.
//
// Каждая операция получает явного субъекта (rbac.Actor) и контекст клиента.
// Изменения, относящиеся к одной операции, выполняются в одной транзакции
// через UnitOfWork; запись аудита выполняется после фиксации и не влияет
// на результат операции.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/repository"
)

// Параметры постраничной выборки по умолчанию.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// UnitOfWork — доступ к репозиториям вне и внутри транзакции.
// Реализуется repository.TxRunner.
type UnitOfWork interface {
	// Repos возвращает репозитории, работающие вне транзакции.
	Repos() *repository.Repos
	// InTx выполняет fn в транзакции; ошибка fn откатывает все изменения.
	InTx(ctx context.Context, fn func(r *repository.Repos) error) error
}

// ClientContext — сведения о клиенте, попадающие в каждую запись аудита.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// Ограничения длины полей клиента в журнале.
const (
	maxIPAddressLen = 45
	maxUserAgentLen = 500
	unknownAgent    = "Unknown"
)

// Normalize подставляет "Unknown" вместо пустого User-Agent и
// обрезает поля до допустимой длины.
func (c ClientContext) Normalize() ClientContext {
	if c.UserAgent == "" {
		c.UserAgent = unknownAgent
	}
	c.IPAddress = truncate(c.IPAddress, maxIPAddressLen)
	c.UserAgent = truncate(c.UserAgent, maxUserAgentLen)
	return c
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Paginated — страница результатов.
type Paginated[T any] struct {
	Items      []T
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// normalizePage применяет значения по умолчанию и ограничивает размер страницы.
func normalizePage(p model.Page, defaultLimit int) model.Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func newPaginated[T any](items []T, total int, p model.Page) *Paginated[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return &Paginated[T]{Items: items, Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}

// clock и генератор идентификаторов, общие для сервисов.
type deps struct {
	now   func() time.Time
	newID func() string
}

func defaultDeps() deps {
	return deps{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
