package model

import "time"

// AuditAction — тип события аудита (закрытое перечисление).
type AuditAction string

// События аудита.
const (
	AuditLogin                       AuditAction = "login"
	AuditLogout                      AuditAction = "logout"
	AuditLoginFailed                 AuditAction = "login_failed"
	AuditPostCreated                 AuditAction = "post_created"
	AuditPostUpdated                 AuditAction = "post_updated"
	AuditPostDeleted                 AuditAction = "post_deleted"
	AuditPostPublished               AuditAction = "post_published"
	AuditPostArchived                AuditAction = "post_archived"
	AuditAssetUploaded               AuditAction = "asset_uploaded"
	AuditAssetDeleted                AuditAction = "asset_deleted"
	AuditAssetAccessed               AuditAction = "asset_accessed"
	AuditApprovalRequested           AuditAction = "approval_requested"
	AuditApprovalApproved            AuditAction = "approval_approved"
	AuditApprovalRejected            AuditAction = "approval_rejected"
	AuditApprovalCancelled           AuditAction = "approval_cancelled"
	AuditUserCreated                 AuditAction = "user_created"
	AuditUserUpdated                 AuditAction = "user_updated"
	AuditUserDeleted                 AuditAction = "user_deleted"
	AuditUserRoleChanged             AuditAction = "user_role_changed"
	AuditOrganizationCreated         AuditAction = "organization_created"
	AuditOrganizationUpdated         AuditAction = "organization_updated"
	AuditOrganizationSettingsChanged AuditAction = "organization_settings_changed"
	AuditLicenseAdded                AuditAction = "license_added"
	AuditLicenseUpdated              AuditAction = "license_updated"
	AuditLicenseExpired              AuditAction = "license_expired"
	AuditDataExported                AuditAction = "data_exported"
)

var auditActions = map[AuditAction]struct{}{
	AuditLogin: {}, AuditLogout: {}, AuditLoginFailed: {},
	AuditPostCreated: {}, AuditPostUpdated: {}, AuditPostDeleted: {}, AuditPostPublished: {}, AuditPostArchived: {},
	AuditAssetUploaded: {}, AuditAssetDeleted: {}, AuditAssetAccessed: {},
	AuditApprovalRequested: {}, AuditApprovalApproved: {}, AuditApprovalRejected: {}, AuditApprovalCancelled: {},
	AuditUserCreated: {}, AuditUserUpdated: {}, AuditUserDeleted: {}, AuditUserRoleChanged: {},
	AuditOrganizationCreated: {}, AuditOrganizationUpdated: {}, AuditOrganizationSettingsChanged: {},
	AuditLicenseAdded: {}, AuditLicenseUpdated: {}, AuditLicenseExpired: {},
	AuditDataExported: {},
}

// IsValid проверяет, входит ли действие в перечисление.
func (a AuditAction) IsValid() bool {
	_, ok := auditActions[a]
	return ok
}

// Типы сущностей в журнале аудита.
const (
	EntityOrganization = "Organization"
	EntityUser         = "User"
	EntityPost         = "Post"
	EntityWorkflow     = "ApprovalWorkflow"
	EntityAsset        = "Asset"
	EntityLicense      = "License"
)

// AuditLog — неизменяемая запись журнала аудита.
// Хранится в таблице audit_logs; удаляется только при очистке по сроку хранения.
type AuditLog struct {
	// ID — UUID записи
	ID string
	// Action — тип события
	Action AuditAction
	// EntityType — тип сущности (Post, ApprovalWorkflow, ...)
	EntityType string
	// EntityID — идентификатор сущности (nil для событий без сущности)
	EntityID *string
	// UserID — инициатор (nil для системных и неаутентифицированных событий)
	UserID *string
	// OrganizationID — организация (nil для событий вне арендатора)
	OrganizationID *string
	// IPAddress — IP клиента (до 45 символов)
	IPAddress *string
	// UserAgent — User-Agent клиента (до 500 символов)
	UserAgent *string
	// Metadata — произвольные сведения о событии
	Metadata map[string]any
	// OldValues — снимок до изменения
	OldValues map[string]any
	// NewValues — снимок после изменения
	NewValues map[string]any
	// CreatedAt — время события
	CreatedAt time.Time
}

// AuditFilter — фильтры выборки журнала аудита.
type AuditFilter struct {
	OrganizationID *string
	UserID         *string
	Action         *AuditAction
	EntityType     *string
	EntityID       *string
	// StartDate и EndDate применяются только вместе
	StartDate *time.Time
	EndDate   *time.Time
}

// AuditActionCount — количество событий одного типа.
type AuditActionCount struct {
	Action AuditAction
	Count  int
}
