// posts.go — жизненный цикл постов: создание, изменение, удаление, публикация.
package service

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/bigkaa/contentguard/internal/domain/lifecycle"
	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/repository"
)

const maxTitleLen = 255

var platforms = map[string]bool{
	model.PlatformFacebook:  true,
	model.PlatformInstagram: true,
	model.PlatformTwitter:   true,
	model.PlatformLinkedIn:  true,
	model.PlatformTikTok:    true,
	model.PlatformYouTube:   true,
	model.PlatformOther:     true,
}

// IsValidPlatform проверяет, является ли строка допустимой платформой.
func IsValidPlatform(p string) bool {
	return platforms[p]
}

// CreatePostInput — данные нового поста.
type CreatePostInput struct {
	Title       string
	Content     string
	Platform    string
	ScheduledAt *time.Time
	Metadata    map[string]any
}

// UpdatePostInput — изменяемые поля поста. nil — поле не меняется.
type UpdatePostInput struct {
	Title       *string
	Content     *string
	Platform    *string
	ScheduledAt *time.Time
	Metadata    map[string]any
	// Status — целевой статус; проверяется по таблице переходов
	Status *string
}

// PostListFilter — фильтры списка постов.
type PostListFilter struct {
	OrganizationID *string
	Status         *string
	CreatedBy      *string
	Platform       *string
}

// PostService — сервис жизненного цикла постов.
type PostService struct {
	uow    UnitOfWork
	audit  *AuditService
	deps   deps
	logger *slog.Logger
}

// NewPostService создаёт сервис постов.
func NewPostService(uow UnitOfWork, audit *AuditService, logger *slog.Logger) *PostService {
	return &PostService{
		uow:    uow,
		audit:  audit,
		deps:   defaultDeps(),
		logger: logger.With(slog.String("component", "post_service")),
	}
}

func canWritePosts(actor rbac.Actor) error {
	if !rbac.AtLeast(actor.Role, rbac.RoleCreator) {
		return ErrForbidden
	}
	return nil
}

func validateTitle(title string) error {
	n := utf8.RuneCountInString(title)
	if n < 1 || n > maxTitleLen {
		return validationErr("title должен содержать от 1 до %d символов", maxTitleLen)
	}
	return nil
}

// Create создаёт пост в статусе draft в организации субъекта.
func (s *PostService) Create(ctx context.Context, actor rbac.Actor, client ClientContext, in CreatePostInput) (*model.Post, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if in.Content == "" {
		return nil, validationErr("content не может быть пустым")
	}
	if !IsValidPlatform(in.Platform) {
		return nil, validationErr("недопустимая платформа: %q", in.Platform)
	}
	if actor.OrganizationID == "" {
		return nil, validationErr("у пользователя нет организации")
	}

	now := s.deps.now()
	post := &model.Post{
		ID:             s.deps.newID(),
		Title:          in.Title,
		Content:        in.Content,
		Platform:       in.Platform,
		Status:         model.PostStatusDraft,
		ScheduledAt:    in.ScheduledAt,
		Metadata:       in.Metadata,
		OrganizationID: actor.OrganizationID,
		CreatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if post.Metadata == nil {
		post.Metadata = map[string]any{}
	}

	if err := s.uow.Repos().Posts.Create(ctx, post); err != nil {
		return nil, translateRepoErr(err)
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditPostCreated,
		EntityType:     model.EntityPost,
		EntityID:       post.ID,
		Actor:          &actor,
		OrganizationID: &post.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"title": post.Title, "platform": post.Platform},
		NewValues:      postSnapshot(post),
	})
	return post, nil
}

// Get возвращает пост. Пост другой организации — ErrNotFound.
func (s *PostService) Get(ctx context.Context, actor rbac.Actor, id string) (*model.Post, error) {
	post, err := s.uow.Repos().Posts.GetByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, post.OrganizationID) != nil {
		return nil, ErrNotFound
	}
	return post, nil
}

// List возвращает страницу постов, новые первыми.
func (s *PostService) List(ctx context.Context, actor rbac.Actor, filter PostListFilter, page model.Page) (*Paginated[*model.Post], error) {
	if filter.Status != nil {
		if _, err := lifecycle.ParseStatus(*filter.Status); err != nil {
			return nil, validationErr("%v", err)
		}
	}
	if filter.Platform != nil && !IsValidPlatform(*filter.Platform) {
		return nil, validationErr("недопустимая платформа: %q", *filter.Platform)
	}

	page = normalizePage(page, DefaultPageLimit)
	filters := repository.PostFilters{
		OrganizationID: rbac.ScopeOrganization(actor, filter.OrganizationID),
		Status:         filter.Status,
		CreatedBy:      filter.CreatedBy,
		Platform:       filter.Platform,
	}

	repo := s.uow.Repos().Posts
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

// Update изменяет пост. Изменять пост может только его автор.
// Любой переданный статус проверяется по таблице переходов до применения
// изменений, в том числе равный текущему: такого перехода в таблице нет.
func (s *PostService) Update(ctx context.Context, actor rbac.Actor, client ClientContext, id string, in UpdatePostInput) (*model.Post, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}
	if in.Title != nil {
		if err := validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Content != nil && *in.Content == "" {
		return nil, validationErr("content не может быть пустым")
	}
	if in.Platform != nil && !IsValidPlatform(*in.Platform) {
		return nil, validationErr("недопустимая платформа: %q", *in.Platform)
	}

	var before, after *model.Post
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		post, err := r.Posts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, post.OrganizationID) != nil {
			return ErrNotFound
		}
		if post.CreatedBy != actor.UserID {
			return ErrForbidden
		}

		old := *post
		now := s.deps.now()

		if in.Status != nil {
			if err := lifecycle.ValidateTransition(post.Status, *in.Status); err != nil {
				return transitionErr(err)
			}
			post.Status = *in.Status
			if post.Status == model.PostStatusPublished {
				post.PublishedAt = &now
			}
		}
		if in.Title != nil {
			post.Title = *in.Title
		}
		if in.Content != nil {
			post.Content = *in.Content
		}
		if in.Platform != nil {
			post.Platform = *in.Platform
		}
		if in.ScheduledAt != nil {
			post.ScheduledAt = in.ScheduledAt
		}
		if in.Metadata != nil {
			post.Metadata = in.Metadata
		}
		post.UpdatedAt = now

		if err := r.Posts.Update(ctx, post); err != nil {
			return translateRepoErr(err)
		}
		before, after = &old, post
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := model.AuditPostUpdated
	if after.Status == model.PostStatusArchived && before.Status != model.PostStatusArchived {
		action = model.AuditPostArchived
	}
	s.audit.Record(ctx, AuditEvent{
		Action:         action,
		EntityType:     model.EntityPost,
		EntityID:       after.ID,
		Actor:          &actor,
		OrganizationID: &after.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"title": after.Title},
		OldValues:      postSnapshot(before),
		NewValues:      postSnapshot(after),
	})
	return after, nil
}

// Delete мягко удаляет пост. Удалить пост может автор,
// organization_admin своей организации или super_admin.
func (s *PostService) Delete(ctx context.Context, actor rbac.Actor, client ClientContext, id string) error {
	if err := canWritePosts(actor); err != nil {
		return err
	}

	var deleted *model.Post
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		post, err := r.Posts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, post.OrganizationID) != nil {
			return ErrNotFound
		}
		if post.CreatedBy != actor.UserID && !actor.HasAnyRole(rbac.RoleOrganizationAdmin, rbac.RoleSuperAdmin) {
			return ErrForbidden
		}
		if err := r.Posts.SoftDelete(ctx, post.ID); err != nil {
			return translateRepoErr(err)
		}
		deleted = post
		return nil
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditPostDeleted,
		EntityType:     model.EntityPost,
		EntityID:       deleted.ID,
		Actor:          &actor,
		OrganizationID: &deleted.OrganizationID,
		Client:         client,
		Metadata:       map[string]any{"title": deleted.Title},
		OldValues:      postSnapshot(deleted),
	})
	return nil
}

// Publish публикует одобренный пост: статус published и время публикации.
// Пост в любом другом статусе — ErrInvalidState.
func (s *PostService) Publish(ctx context.Context, actor rbac.Actor, client ClientContext, id string) (*model.Post, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}

	var published *model.Post
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		post, err := r.Posts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, post.OrganizationID) != nil {
			return ErrNotFound
		}
		if post.Status != model.PostStatusApproved {
			return invalidStateErr("опубликовать можно только одобренный пост, текущий статус %s", post.Status)
		}

		now := s.deps.now()
		post.Status = model.PostStatusPublished
		post.PublishedAt = &now
		post.UpdatedAt = now
		if err := r.Posts.Update(ctx, post); err != nil {
			return translateRepoErr(err)
		}
		published = post
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditPostPublished,
		EntityType:     model.EntityPost,
		EntityID:       published.ID,
		Actor:          &actor,
		OrganizationID: &published.OrganizationID,
		Client:         client,
		Metadata: map[string]any{
			"title":       published.Title,
			"publishedAt": published.PublishedAt.Format(time.RFC3339),
		},
	})
	return published, nil
}

// postSnapshot — снимок поста для old/new values журнала.
func postSnapshot(p *model.Post) map[string]any {
	if p == nil {
		return nil
	}
	snap := map[string]any{
		"id":             p.ID,
		"title":          p.Title,
		"content":        p.Content,
		"platform":       p.Platform,
		"status":         p.Status,
		"organizationId": p.OrganizationID,
		"createdById":    p.CreatedBy,
	}
	if p.ScheduledAt != nil {
		snap["scheduledAt"] = p.ScheduledAt.Format(time.RFC3339)
	}
	if p.PublishedAt != nil {
		snap["publishedAt"] = p.PublishedAt.Format(time.RFC3339)
	}
	return snap
}
