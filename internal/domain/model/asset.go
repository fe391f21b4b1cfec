package model

import "time"

// Типы вложений.
const (
	AssetTypeImage    = "image"
	AssetTypeVideo    = "video"
	AssetTypeAudio    = "audio"
	AssetTypeText     = "text"
	AssetTypeDocument = "document"
)

// Типы лицензий.
const (
	LicenseTypeOwned           = "owned"
	LicenseTypeLicensed        = "licensed"
	LicenseTypeCreativeCommons = "creative_commons"
	LicenseTypePublicDomain    = "public_domain"
	LicenseTypeRoyaltyFree     = "royalty_free"
	LicenseTypeRightsManaged   = "rights_managed"
	LicenseTypeOther           = "other"
)

// Asset — загруженный файл (вложение).
// Хранится в таблице assets, содержимое — в объектном хранилище.
type Asset struct {
	// ID — UUID вложения
	ID string
	// Type — image, video, audio, text, document
	Type string
	// OriginalName — имя файла при загрузке
	OriginalName string
	// FileName — имя объекта в хранилище
	FileName string
	// StoragePath — полный путь объекта в бакете
	StoragePath string
	// URL — ссылка для доступа (presigned, ограничена по времени)
	URL string
	// MimeType — MIME-тип
	MimeType string
	// Size — размер в байтах
	Size int64
	// Checksum — SHA-256 (hex) загруженных байтов
	Checksum string
	// Description — описание (опционально)
	Description *string
	// OrganizationID — UUID организации
	OrganizationID string
	// PostID — UUID поста, к которому прикреплено вложение
	PostID *string
	// UploadedBy — UUID загрузившего пользователя
	UploadedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
}

// License — сведения о лицензии вложения (1:1 с Asset).
// Хранится в таблице licenses.
type License struct {
	ID      string
	AssetID string
	// Type — owned, licensed, creative_commons, public_domain, royalty_free, rights_managed, other
	Type           string
	Holder         *string
	Provider       *string
	LicenseNumber  *string
	StartDate      *time.Time
	ExpirationDate *time.Time
	UsageRights    *string
	Restrictions   *string
	Terms          *string
	DocumentURL    *string
	// Cost — стоимость в виде десятичной строки ("120.50")
	Cost      *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
