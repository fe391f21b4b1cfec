// organizations.go — справочник организаций (арендаторов).
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// CreateOrganizationInput — данные новой организации.
type CreateOrganizationInput struct {
	Name        string
	Slug        string
	Description *string
	LogoURL     *string
	Website     *string
	Settings    map[string]any
}

// UpdateOrganizationInput — изменяемые поля организации. nil — без изменений.
type UpdateOrganizationInput struct {
	Name        *string
	Slug        *string
	Description *string
	LogoURL     *string
	Website     *string
	// IsActive может менять только super_admin
	IsActive *bool
}

// OrganizationService — сервис организаций.
type OrganizationService struct {
	uow    UnitOfWork
	audit  *AuditService
	deps   deps
	logger *slog.Logger
}

// NewOrganizationService создаёт сервис организаций.
func NewOrganizationService(uow UnitOfWork, audit *AuditService, logger *slog.Logger) *OrganizationService {
	return &OrganizationService{
		uow:    uow,
		audit:  audit,
		deps:   defaultDeps(),
		logger: logger.With(slog.String("component", "organization_service")),
	}
}

func validateSlug(slug string) error {
	if slug == "" || len(slug) > 100 || !slugPattern.MatchString(slug) {
		return validationErr("slug может содержать только строчные латинские буквы, цифры и дефис")
	}
	return nil
}

// canManageOrganization — super_admin или organization_admin своей организации.
func canManageOrganization(actor rbac.Actor, organizationID string) error {
	if !actor.HasAnyRole(rbac.RoleSuperAdmin, rbac.RoleOrganizationAdmin) {
		return ErrForbidden
	}
	if rbac.Authorize(actor, organizationID) != nil {
		return ErrNotFound
	}
	return nil
}

// Create создаёт организацию. Доступно только super_admin.
func (s *OrganizationService) Create(ctx context.Context, actor rbac.Actor, client ClientContext, in CreateOrganizationInput) (*model.Organization, error) {
	if !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	if in.Name == "" {
		return nil, validationErr("name не может быть пустым")
	}
	if err := validateSlug(in.Slug); err != nil {
		return nil, err
	}

	org := &model.Organization{
		ID:          s.deps.newID(),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		LogoURL:     in.LogoURL,
		Website:     in.Website,
		IsActive:    true,
		Settings:    in.Settings,
	}
	if org.Settings == nil {
		org.Settings = map[string]any{}
	}
	if err := s.uow.Repos().Organizations.Create(ctx, org); err != nil {
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditOrganizationCreated,
		EntityType:     model.EntityOrganization,
		EntityID:       org.ID,
		Actor:          &actor,
		OrganizationID: &org.ID,
		Client:         client,
		Metadata:       map[string]any{"name": org.Name, "slug": org.Slug},
		NewValues:      organizationSnapshot(org),
	})
	return org, nil
}

// List возвращает организации. Для всех ролей, кроме super_admin,
// выборка ограничена собственной организацией.
func (s *OrganizationService) List(ctx context.Context, actor rbac.Actor, includeInactive bool, page model.Page) (*Paginated[*model.Organization], error) {
	page = normalizePage(page, DefaultPageLimit)
	filters := repository.OrganizationFilters{
		ID:              rbac.ScopeOrganization(actor, nil),
		IncludeInactive: includeInactive,
	}

	repo := s.uow.Repos().Organizations
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

// Get возвращает организацию. Чужая организация — ErrNotFound.
func (s *OrganizationService) Get(ctx context.Context, actor rbac.Actor, id string) (*model.Organization, error) {
	if rbac.Authorize(actor, id) != nil {
		return nil, ErrNotFound
	}
	org, err := s.uow.Repos().Organizations.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return org, nil
}

// GetBySlug возвращает организацию по slug.
func (s *OrganizationService) GetBySlug(ctx context.Context, actor rbac.Actor, slug string) (*model.Organization, error) {
	org, err := s.uow.Repos().Organizations.GetBySlug(ctx, slug)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, org.ID) != nil {
		return nil, ErrNotFound
	}
	return org, nil
}

// Update изменяет поля организации.
func (s *OrganizationService) Update(ctx context.Context, actor rbac.Actor, client ClientContext, id string, in UpdateOrganizationInput) (*model.Organization, error) {
	if err := canManageOrganization(actor, id); err != nil {
		return nil, err
	}
	if in.IsActive != nil && !actor.IsSuperAdmin() {
		return nil, ErrForbidden
	}
	if in.Name != nil && *in.Name == "" {
		return nil, validationErr("name не может быть пустым")
	}
	if in.Slug != nil {
		if err := validateSlug(*in.Slug); err != nil {
			return nil, err
		}
	}

	repo := s.uow.Repos().Organizations
	org, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	old := *org

	if in.Slug != nil && *in.Slug != org.Slug {
		existing, err := repo.GetBySlug(ctx, *in.Slug)
		switch {
		case err == nil && existing.ID != org.ID:
			return nil, ErrConflict
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, translateRepoErr(err)
		}
		org.Slug = *in.Slug
	}
	if in.Name != nil {
		org.Name = *in.Name
	}
	if in.Description != nil {
		org.Description = in.Description
	}
	if in.LogoURL != nil {
		org.LogoURL = in.LogoURL
	}
	if in.Website != nil {
		org.Website = in.Website
	}
	if in.IsActive != nil {
		org.IsActive = *in.IsActive
	}

	if err := repo.Update(ctx, org); err != nil {
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditOrganizationUpdated,
		EntityType:     model.EntityOrganization,
		EntityID:       org.ID,
		Actor:          &actor,
		OrganizationID: &org.ID,
		Client:         client,
		OldValues:      organizationSnapshot(&old),
		NewValues:      organizationSnapshot(org),
	})
	return org, nil
}

// UpdateSettings объединяет переданные ключи с текущими настройками (без вложенного слияния).
func (s *OrganizationService) UpdateSettings(ctx context.Context, actor rbac.Actor, client ClientContext, id string, settings map[string]any) (*model.Organization, error) {
	if err := canManageOrganization(actor, id); err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, validationErr("settings не заданы")
	}

	repo := s.uow.Repos().Organizations
	org, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	oldSettings := maps.Clone(org.Settings)
	merged := maps.Clone(org.Settings)
	if merged == nil {
		merged = make(map[string]any, len(settings))
	}
	maps.Copy(merged, settings)
	org.Settings = merged

	if err := repo.Update(ctx, org); err != nil {
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditOrganizationSettingsChanged,
		EntityType:     model.EntityOrganization,
		EntityID:       org.ID,
		Actor:          &actor,
		OrganizationID: &org.ID,
		Client:         client,
		OldValues:      map[string]any{"settings": oldSettings},
		NewValues:      map[string]any{"settings": merged},
	})
	return org, nil
}

// Delete мягко удаляет организацию. Доступно только super_admin.
func (s *OrganizationService) Delete(ctx context.Context, actor rbac.Actor, client ClientContext, id string) error {
	if !actor.IsSuperAdmin() {
		return ErrForbidden
	}
	repo := s.uow.Repos().Organizations
	org, err := repo.GetByID(ctx, id)
	if err != nil {
		return translateRepoErr(err)
	}
	if err := repo.SoftDelete(ctx, id); err != nil {
		return translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditOrganizationUpdated,
		EntityType:     model.EntityOrganization,
		EntityID:       org.ID,
		Actor:          &actor,
		OrganizationID: &org.ID,
		Client:         client,
		Metadata:       map[string]any{"action": "deleted"},
		OldValues:      organizationSnapshot(org),
	})
	return nil
}

// Statistics возвращает агрегированные показатели организации.
func (s *OrganizationService) Statistics(ctx context.Context, actor rbac.Actor, id string) (*model.OrganizationStatistics, error) {
	if !rbac.AtLeast(actor.Role, rbac.RoleManager) {
		return nil, ErrForbidden
	}
	if rbac.Authorize(actor, id) != nil {
		return nil, ErrNotFound
	}
	repo := s.uow.Repos().Organizations
	if _, err := repo.GetByID(ctx, id); err != nil {
		return nil, translateRepoErr(err)
	}
	stats, err := repo.Statistics(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return stats, nil
}

func organizationSnapshot(o *model.Organization) map[string]any {
	return map[string]any{
		"id":       o.ID,
		"name":     o.Name,
		"slug":     o.Slug,
		"isActive": o.IsActive,
	}
}
