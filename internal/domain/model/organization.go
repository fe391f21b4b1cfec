// Пакет model — доменные модели ContentGuard.
// Модели хранят только идентификаторы связанных сущностей;
// связи разрешаются явными запросами в слое repository.
package model

import "time"

// Organization — организация (граница изоляции арендатора).
// Хранится в таблице organizations.
type Organization struct {
	// ID — UUID организации
	ID string
	// Name — отображаемое название
	Name string
	// Slug — уникальный человекочитаемый идентификатор
	Slug string
	// Description — описание (опционально)
	Description *string
	// LogoURL — ссылка на логотип (опционально)
	LogoURL *string
	// Website — сайт организации (опционально)
	Website *string
	// IsActive — активна ли организация
	IsActive bool
	// Settings — произвольные настройки (ключ-значение)
	Settings map[string]any
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время мягкого удаления (nil — запись активна)
	DeletedAt *time.Time
}

// OrganizationStatistics — агрегированные показатели организации.
type OrganizationStatistics struct {
	OrganizationID string
	// Users — количество активных пользователей
	Users int
	// Assets — количество активных вложений
	Assets int
	// PostsByStatus — количество постов по статусам
	PostsByStatus map[string]int
	// WorkflowsByStatus — количество workflow согласования по статусам
	WorkflowsByStatus map[string]int
}
