package model

import "time"

// Статусы поста.
const (
	PostStatusDraft           = "draft"
	PostStatusPendingApproval = "pending_approval"
	PostStatusApproved        = "approved"
	PostStatusRejected        = "rejected"
	PostStatusPublished       = "published"
	PostStatusArchived        = "archived"
)

// Платформы публикации.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTwitter   = "twitter"
	PlatformLinkedIn  = "linkedin"
	PlatformTikTok    = "tiktok"
	PlatformYouTube   = "youtube"
	PlatformOther     = "other"
)

// Post — публикация для социальной сети.
// Хранится в таблице posts.
type Post struct {
	// ID — UUID поста
	ID string
	// Title — заголовок (1..255 символов)
	Title string
	// Content — текст публикации
	Content string
	// Platform — целевая платформа
	Platform string
	// Status — статус жизненного цикла
	Status string
	// ScheduledAt — запланированное время публикации (только хранится)
	ScheduledAt *time.Time
	// PublishedAt — фактическое время публикации
	PublishedAt *time.Time
	// Metadata — произвольные метаданные
	Metadata map[string]any
	// OrganizationID — UUID организации, неизменяем после создания
	OrganizationID string
	// CreatedBy — UUID автора
	CreatedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
}
