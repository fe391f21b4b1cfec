// Пакет rbac — роли платформы и предикат изоляции арендаторов (tenant guard).
// Изоляция организаций обеспечивается только здесь: в БД нет
// разделения по арендаторам, поэтому Authorize вызывается перед любым
// чтением или изменением конкретной записи.
package rbac

import "errors"

// Роли платформы.
const (
	RoleSuperAdmin        = "super_admin"
	RoleOrganizationAdmin = "organization_admin"
	RoleManager           = "manager"
	RoleCreator           = "creator"
	RoleViewer            = "viewer"
)

// ErrAccessDenied — ресурс принадлежит другой организации.
var ErrAccessDenied = errors.New("доступ запрещён")

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleViewer:            1,
	RoleCreator:           2,
	RoleManager:           3,
	RoleOrganizationAdmin: 4,
	RoleSuperAdmin:        5,
}

// Actor — аутентифицированный субъект, от имени которого выполняется операция.
// Передаётся явно в каждую операцию сервисного слоя.
type Actor struct {
	// UserID — UUID пользователя
	UserID string
	// OrganizationID — UUID организации пользователя
	OrganizationID string
	// Role — роль пользователя
	Role string
}

// IsSuperAdmin возвращает true для роли super_admin.
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// HasAnyRole проверяет, совпадает ли роль субъекта с одной из указанных.
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Authorize — tenant guard. super_admin допускается всегда,
// остальные — только к ресурсам собственной организации.
// Чистая функция без побочных эффектов.
func Authorize(actor Actor, resourceOrganizationID string) error {
	if actor.IsSuperAdmin() {
		return nil
	}
	if actor.OrganizationID == "" || actor.OrganizationID != resourceOrganizationID {
		return ErrAccessDenied
	}
	return nil
}

// ScopeOrganization возвращает организацию, которой ограничивается выборка.
// Для super_admin используется запрошенный фильтр (nil — все организации),
// для остальных фильтр всегда перезаписывается собственной организацией.
func ScopeOrganization(actor Actor, requested *string) *string {
	if actor.IsSuperAdmin() {
		return requested
	}
	org := actor.OrganizationID
	return &org
}

// CanAssignRole проверяет, может ли субъект с ролью actorRole назначить роль target.
// super_admin назначает любую роль, organization_admin — любую, кроме super_admin.
func CanAssignRole(actorRole, target string) bool {
	if !IsValidRole(target) {
		return false
	}
	switch actorRole {
	case RoleSuperAdmin:
		return true
	case RoleOrganizationAdmin:
		return target != RoleSuperAdmin
	default:
		return false
	}
}

// AtLeast проверяет, что роль role не ниже min.
func AtLeast(role, minRole string) bool {
	w, ok := roleWeight[role]
	if !ok {
		return false
	}
	return w >= roleWeight[minRole]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}
