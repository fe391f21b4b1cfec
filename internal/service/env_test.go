package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
)

// testEnv — сервисы поверх общего in-memory хранилища и две организации.
type testEnv struct {
	store     *memStore
	objects   *memObjectStore
	cache     *UserSummaryCache
	audit     *AuditService
	posts     *PostService
	approvals *ApprovalService
	assets    *AssetService
	orgs      *OrganizationService
	users     *UserService

	orgA, orgB model.Organization
	// Пользователи организации A
	adminA, managerA, creatorA, approverA, approverB, viewerA rbac.Actor
	// Пользователь организации B
	creatorB rbac.Actor
	root     rbac.Actor
}

const testMaxUpload = 1024

var testClient = ClientContext{IPAddress: "10.0.0.1", UserAgent: "go-test"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := testLogger()
	store := newMemStore()
	e := &testEnv{
		store:   store,
		objects: newMemObjectStore(testMaxUpload),
		cache:   NewUserSummaryCache(100, time.Minute),
	}
	e.audit = NewAuditService(store, 90*24*time.Hour, 0, logger)
	e.posts = NewPostService(store, e.audit, logger)
	e.approvals = NewApprovalService(store, e.audit, e.cache, logger)
	e.assets = NewAssetService(store, e.objects, e.audit, testMaxUpload, logger)
	e.orgs = NewOrganizationService(store, e.audit, logger)
	e.users = NewUserService(store, e.audit, e.cache, logger)

	e.orgA = e.seedOrg(t, "org-a", "alpha")
	e.orgB = e.seedOrg(t, "org-b", "beta")

	e.root = e.seedUser(t, "root", e.orgA.ID, rbac.RoleSuperAdmin)
	e.adminA = e.seedUser(t, "admin-a", e.orgA.ID, rbac.RoleOrganizationAdmin)
	e.managerA = e.seedUser(t, "manager-a", e.orgA.ID, rbac.RoleManager)
	e.creatorA = e.seedUser(t, "creator-a", e.orgA.ID, rbac.RoleCreator)
	e.approverA = e.seedUser(t, "approver-1", e.orgA.ID, rbac.RoleManager)
	e.approverB = e.seedUser(t, "approver-2", e.orgA.ID, rbac.RoleManager)
	e.viewerA = e.seedUser(t, "viewer-a", e.orgA.ID, rbac.RoleViewer)
	e.creatorB = e.seedUser(t, "creator-b", e.orgB.ID, rbac.RoleCreator)
	return e
}

func (e *testEnv) seedOrg(t *testing.T, id, slug string) model.Organization {
	t.Helper()
	org := &model.Organization{ID: id, Name: slug, Slug: slug, IsActive: true, Settings: map[string]any{}}
	if err := e.store.Repos().Organizations.Create(context.Background(), org); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return *org
}

func (e *testEnv) seedUser(t *testing.T, id, orgID, role string) rbac.Actor {
	t.Helper()
	u := &model.User{
		ID:             id,
		Email:          id + "@example.com",
		PasswordHash:   "-",
		FirstName:      id,
		Role:           role,
		OrganizationID: orgID,
		IsActive:       true,
	}
	if err := e.store.Repos().Users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return rbac.Actor{UserID: id, OrganizationID: orgID, Role: role}
}

// newDraft создаёт черновик от имени actor.
func (e *testEnv) newDraft(t *testing.T, actor rbac.Actor) *model.Post {
	t.Helper()
	p, err := e.posts.Create(context.Background(), actor, testClient, CreatePostInput{
		Title:    "Анонс",
		Content:  "Текст поста",
		Platform: model.PlatformLinkedIn,
	})
	if err != nil {
		t.Fatalf("Create post: %v", err)
	}
	return p
}

// setPostStatus принудительно выставляет статус поста в хранилище.
func (e *testEnv) setPostStatus(t *testing.T, id, status string) {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	p, ok := e.store.data.posts[id]
	if !ok {
		t.Fatalf("пост %s не найден", id)
	}
	p.Status = status
	e.store.data.posts[id] = p
}

func (e *testEnv) postStatus(t *testing.T, id string) string {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.data.posts[id].Status
}

// snapshot возвращает копию данных хранилища для сравнения «ничего не изменилось».
func (e *testEnv) snapshot() memState {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.data.clone()
}
