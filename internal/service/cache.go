// cache.go — LRU-кэш кратких сведений о пользователях с TTL.
// Используется при построении представлений workflow (имена согласующих).
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_user_cache_hits_total",
		Help: "Общее количество попаданий в кэш сведений о пользователях.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cg_user_cache_misses_total",
		Help: "Общее количество промахов кэша сведений о пользователях.",
	})
)

// UserSummaryCache — кэш model.UserSummary по ID пользователя.
// Каждый экземпляр сервиса имеет собственный in-memory кэш;
// изменения пользователя инвалидируют запись через Invalidate.
type UserSummaryCache struct {
	cache *expirable.LRU[string, model.UserSummary]
}

// NewUserSummaryCache создаёт кэш с указанным максимальным размером и TTL.
func NewUserSummaryCache(maxSize int, ttl time.Duration) *UserSummaryCache {
	return &UserSummaryCache{
		cache: expirable.NewLRU[string, model.UserSummary](maxSize, nil, ttl),
	}
}

// Resolve возвращает сведения о пользователях из списка ids.
// Отсутствующие в кэше записи загружаются одним вызовом load и кэшируются.
// Пользователи, которых load не вернул, в результат не попадают.
func (c *UserSummaryCache) Resolve(
	ctx context.Context,
	ids []string,
	load func(ctx context.Context, ids []string) ([]model.UserSummary, error),
) (map[string]model.UserSummary, error) {
	result := make(map[string]model.UserSummary, len(ids))
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if v, ok := c.cache.Get(id); ok {
			cacheHitsTotal.Inc()
			result[id] = v
			continue
		}
		cacheMissesTotal.Inc()
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return result, nil
	}

	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, u := range loaded {
		c.cache.Add(u.ID, u)
		result[u.ID] = u
	}
	return result, nil
}

// Invalidate удаляет запись пользователя из кэша.
func (c *UserSummaryCache) Invalidate(id string) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *UserSummaryCache) Len() int {
	return c.cache.Len()
}
