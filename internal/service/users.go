// users.go — справочник пользователей.
package service

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/repository"
)

// BcryptCost — стоимость хэширования паролей.
const BcryptCost = 10

const minPasswordLen = 8

// CreateUserInput — данные нового пользователя.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	AvatarURL *string
	// OrganizationID — организация; пустая — организация субъекта
	OrganizationID string
}

// UpdateUserInput — изменяемые поля пользователя. nil — без изменений.
type UpdateUserInput struct {
	Email           *string
	Password        *string
	FirstName       *string
	LastName        *string
	AvatarURL       *string
	Role            *string
	IsActive        *bool
	IsEmailVerified *bool
}

// UserListFilter — фильтры списка пользователей.
type UserListFilter struct {
	OrganizationID *string
	Role           *string
	IsActive       *bool
}

// UserService — сервис пользователей.
type UserService struct {
	uow    UnitOfWork
	audit  *AuditService
	cache  *UserSummaryCache
	deps   deps
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(uow UnitOfWork, audit *AuditService, cache *UserSummaryCache, logger *slog.Logger) *UserService {
	return &UserService{
		uow:    uow,
		audit:  audit,
		cache:  cache,
		deps:   defaultDeps(),
		logger: logger.With(slog.String("component", "user_service")),
	}
}

func canManageUsers(actor rbac.Actor) error {
	if !actor.HasAnyRole(rbac.RoleSuperAdmin, rbac.RoleOrganizationAdmin) {
		return ErrForbidden
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationErr("некорректный email: %q", email)
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return validationErr("пароль должен содержать не менее %d символов", minPasswordLen)
	}
	// bcrypt учитывает только первые 72 байта
	if len(password) > 72 {
		return validationErr("пароль длиннее 72 байт")
	}
	return nil
}

// HashPassword возвращает bcrypt-хэш пароля.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Create создаёт пользователя. super_admin создаёт пользователей в любой
// организации, organization_admin — только в своей и не выше своей роли.
func (s *UserService) Create(ctx context.Context, actor rbac.Actor, client ClientContext, in CreateUserInput) (*model.User, error) {
	if err := canManageUsers(actor); err != nil {
		return nil, err
	}
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if !rbac.IsValidRole(in.Role) {
		return nil, validationErr("недопустимая роль: %q", in.Role)
	}
	if !rbac.CanAssignRole(actor.Role, in.Role) {
		return nil, ErrForbidden
	}
	if in.OrganizationID == "" {
		in.OrganizationID = actor.OrganizationID
	}
	if rbac.Authorize(actor, in.OrganizationID) != nil {
		return nil, ErrForbidden
	}

	repos := s.uow.Repos()
	if _, err := repos.Organizations.GetByID(ctx, in.OrganizationID); err != nil {
		return nil, translateRepoErr(err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:             s.deps.newID(),
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Role:           in.Role,
		AvatarURL:      in.AvatarURL,
		OrganizationID: in.OrganizationID,
		IsActive:       true,
	}
	if err := repos.Users.Create(ctx, u); err != nil {
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditUserCreated,
		EntityType:     model.EntityUser,
		EntityID:       u.ID,
		Actor:          &actor,
		OrganizationID: &u.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"email": u.Email, "role": u.Role},
		NewValues:      userSnapshot(u),
	})
	return u, nil
}

// List возвращает страницу пользователей организации субъекта.
func (s *UserService) List(ctx context.Context, actor rbac.Actor, filter UserListFilter, page model.Page) (*Paginated[*model.User], error) {
	if filter.Role != nil && !rbac.IsValidRole(*filter.Role) {
		return nil, validationErr("недопустимая роль: %q", *filter.Role)
	}
	page = normalizePage(page, DefaultPageLimit)
	filters := repository.UserFilters{
		OrganizationID: rbac.ScopeOrganization(actor, filter.OrganizationID),
		Role:           filter.Role,
		IsActive:       filter.IsActive,
	}

	repo := s.uow.Repos().Users
	items, err := repo.List(ctx, filters, page.Limit, page.Offset())
	if err != nil {
		return nil, translateRepoErr(err)
	}
	total, err := repo.Count(ctx, filters)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return newPaginated(items, total, page), nil
}

// Get возвращает пользователя. Пользователь другой организации — ErrNotFound.
func (s *UserService) Get(ctx context.Context, actor rbac.Actor, id string) (*model.User, error) {
	u, err := s.uow.Repos().Users.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, u.OrganizationID) != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// getManaged загружает пользователя, которым субъект вправе управлять.
func (s *UserService) getManaged(ctx context.Context, actor rbac.Actor, id string) (*model.User, error) {
	if err := canManageUsers(actor); err != nil {
		return nil, err
	}
	u, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if u.Role == rbac.RoleSuperAdmin && !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	return u, nil
}

// Update изменяет пользователя. Смена роли записывается
// отдельным событием user_role_changed.
func (s *UserService) Update(ctx context.Context, actor rbac.Actor, client ClientContext, id string, in UpdateUserInput) (*model.User, error) {
	u, err := s.getManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	old := *u

	if in.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*in.Email))
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		u.Email = email
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if in.Role != nil && *in.Role != u.Role {
		if !rbac.IsValidRole(*in.Role) {
			return nil, validationErr("недопустимая роль: %q", *in.Role)
		}
		if !rbac.CanAssignRole(actor.Role, *in.Role) {
			return nil, ErrForbidden
		}
		u.Role = *in.Role
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.AvatarURL != nil {
		u.AvatarURL = in.AvatarURL
	}
	if in.IsActive != nil {
		if !*in.IsActive && u.ID == actor.UserID {
			return nil, validationErr("нельзя деактивировать собственную учётную запись")
		}
		u.IsActive = *in.IsActive
	}
	if in.IsEmailVerified != nil {
		u.IsEmailVerified = *in.IsEmailVerified
	}

	if err := s.uow.Repos().Users.Update(ctx, u); err != nil {
		return nil, translateRepoErr(err)
	}
	s.cache.Invalidate(u.ID)

	if old.Role != u.Role {
		s.audit.Record(ctx, AuditEvent{
			Action:         model.AuditUserRoleChanged,
			EntityType:     model.EntityUser,
			EntityID:       u.ID,
			Actor:          &actor,
			OrganizationID: &u.OrganizationID,
			Client:         client,
			OldValues:      map[string]any{"role": old.Role},
			NewValues:      map[string]any{"role": u.Role},
		})
	}
	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditUserUpdated,
		EntityType:     model.EntityUser,
		EntityID:       u.ID,
		Actor:          &actor,
		OrganizationID: &u.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"passwordChanged": in.Password != nil},
		OldValues:      userSnapshot(&old),
		NewValues:      userSnapshot(u),
	})
	return u, nil
}

// Delete мягко удаляет пользователя. Удалить себя нельзя.
func (s *UserService) Delete(ctx context.Context, actor rbac.Actor, client ClientContext, id string) error {
	if id == actor.UserID {
		return validationErr("нельзя удалить собственную учётную запись")
	}
	u, err := s.getManaged(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.uow.Repos().Users.SoftDelete(ctx, u.ID); err != nil {
		return translateRepoErr(err)
	}
	s.cache.Invalidate(u.ID)

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditUserDeleted,
		EntityType:     model.EntityUser,
		EntityID:       u.ID,
		Actor:          &actor,
		OrganizationID: &u.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"email": u.Email},
		OldValues:      userSnapshot(u),
	})
	return nil
}

// userSnapshot — снимок пользователя без хэша пароля.
func userSnapshot(u *model.User) map[string]any {
	return map[string]any{
		"id":             u.ID,
		"email":          u.Email,
		"firstName":      u.FirstName,
		"lastName":       u.LastName,
		"role":           u.Role,
		"organizationId": u.OrganizationID,
		"isActive":       u.IsActive,
	}
}
