// fakes_test.go — in-memory реализации репозиториев и объектного хранилища
// для сценарных тестов сервисного слоя.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/repository"
	"github.com/bigkaa/contentguard/internal/storage/objectstore"
)

// memState — данные in-memory хранилища.
type memState struct {
	orgs      map[string]model.Organization
	users     map[string]model.User
	posts     map[string]model.Post
	workflows map[string]model.ApprovalWorkflow
	steps     map[string]model.ApprovalStep
	assets    map[string]model.Asset
	licenses  map[string]model.License
	audit     []model.AuditLog
	// order — порядок вставки для сортировки «новые первыми»
	order map[string]int
	seq   int
}

func (s *memState) clone() memState {
	c := memState{
		orgs:      make(map[string]model.Organization, len(s.orgs)),
		users:     make(map[string]model.User, len(s.users)),
		posts:     make(map[string]model.Post, len(s.posts)),
		workflows: make(map[string]model.ApprovalWorkflow, len(s.workflows)),
		steps:     make(map[string]model.ApprovalStep, len(s.steps)),
		assets:    make(map[string]model.Asset, len(s.assets)),
		licenses:  make(map[string]model.License, len(s.licenses)),
		audit:     slices.Clone(s.audit),
		order:     make(map[string]int, len(s.order)),
		seq:       s.seq,
	}
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.posts {
		c.posts[k] = v
	}
	for k, v := range s.workflows {
		c.workflows[k] = v
	}
	for k, v := range s.steps {
		c.steps[k] = v
	}
	for k, v := range s.assets {
		c.assets[k] = v
	}
	for k, v := range s.licenses {
		c.licenses[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	return c
}

// memStore — UnitOfWork поверх in-memory данных.
// InTx сериализует транзакции и откатывает изменения при ошибке.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data memState

	// failAudit — запись журнала завершается ошибкой
	failAudit bool
	// failCreateSteps — создание шагов workflow завершается ошибкой
	failCreateSteps bool

	repos *repository.Repos
}

func newMemStore() *memStore {
	s := &memStore{
		data: memState{
			orgs:      map[string]model.Organization{},
			users:     map[string]model.User{},
			posts:     map[string]model.Post{},
			workflows: map[string]model.ApprovalWorkflow{},
			steps:     map[string]model.ApprovalStep{},
			assets:    map[string]model.Asset{},
			licenses:  map[string]model.License{},
			order:     map[string]int{},
		},
	}
	s.repos = &repository.Repos{
		Organizations: memOrgs{s},
		Users:         memUsers{s},
		Posts:         memPosts{s},
		Approvals:     memApprovals{s},
		Assets:        memAssets{s},
		Licenses:      memLicenses{s},
		AuditLogs:     memAudit{s},
	}
	return s
}

func (s *memStore) Repos() *repository.Repos { return s.repos }

func (s *memStore) InTx(ctx context.Context, fn func(r *repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(s.repos); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) touch(id string) {
	s.data.seq++
	s.data.order[id] = s.data.seq
}

// newestFirst сортирует ID по убыванию порядка вставки.
func (s *memStore) newestFirst(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return s.data.order[ids[i]] > s.data.order[ids[j]] })
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// --- organizations ---

type memOrgs struct{ s *memStore }

func (r memOrgs) Create(_ context.Context, org *model.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.data.orgs {
		if o.Slug == org.Slug {
			return fmt.Errorf("%w: slug %s", repository.ErrConflict, org.Slug)
		}
	}
	now := time.Now().UTC()
	org.CreatedAt, org.UpdatedAt = now, now
	r.s.data.orgs[org.ID] = *org
	r.s.touch(org.ID)
	return nil
}

func (r memOrgs) GetByID(_ context.Context, id string) (*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orgs[id]
	if !ok || o.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r memOrgs) GetBySlug(_ context.Context, slug string) (*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.data.orgs {
		if o.Slug == slug && o.DeletedAt == nil {
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memOrgs) filter(f repository.OrganizationFilters) []*model.Organization {
	var ids []string
	for id, o := range r.s.data.orgs {
		if o.DeletedAt != nil || (!f.IncludeInactive && !o.IsActive) {
			continue
		}
		if f.ID != nil && o.ID != *f.ID {
			continue
		}
		ids = append(ids, id)
	}
	r.s.newestFirst(ids)
	out := make([]*model.Organization, 0, len(ids))
	for _, id := range ids {
		o := r.s.data.orgs[id]
		out = append(out, &o)
	}
	return out
}

func (r memOrgs) List(_ context.Context, f repository.OrganizationFilters, limit, offset int) ([]*model.Organization, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return paginate(r.filter(f), limit, offset), nil
}

func (r memOrgs) Count(_ context.Context, f repository.OrganizationFilters) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(f)), nil
}

func (r memOrgs) Update(_ context.Context, org *model.Organization) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.orgs[org.ID]
	if !ok || cur.DeletedAt != nil {
		return repository.ErrNotFound
	}
	for _, o := range r.s.data.orgs {
		if o.ID != org.ID && o.Slug == org.Slug {
			return fmt.Errorf("%w: slug %s", repository.ErrConflict, org.Slug)
		}
	}
	org.UpdatedAt = time.Now().UTC()
	r.s.data.orgs[org.ID] = *org
	return nil
}

func (r memOrgs) SoftDelete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orgs[id]
	if !ok || o.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	o.DeletedAt, o.IsActive = &now, false
	r.s.data.orgs[id] = o
	return nil
}

func (r memOrgs) Statistics(_ context.Context, id string) (*model.OrganizationStatistics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := &model.OrganizationStatistics{
		OrganizationID:    id,
		PostsByStatus:     map[string]int{},
		WorkflowsByStatus: map[string]int{},
	}
	for _, u := range r.s.data.users {
		if u.OrganizationID == id && u.DeletedAt == nil && u.IsActive {
			st.Users++
		}
	}
	for _, a := range r.s.data.assets {
		if a.OrganizationID == id && a.DeletedAt == nil {
			st.Assets++
		}
	}
	for _, p := range r.s.data.posts {
		if p.OrganizationID == id && p.DeletedAt == nil {
			st.PostsByStatus[p.Status]++
		}
	}
	for _, w := range r.s.data.workflows {
		if w.OrganizationID == id {
			st.WorkflowsByStatus[w.Status]++
		}
	}
	return st, nil
}

// --- users ---

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.data.users {
		if x.DeletedAt == nil && strings.EqualFold(x.Email, u.Email) {
			return fmt.Errorf("%w: email %s", repository.ErrConflict, u.Email)
		}
	}
	if _, ok := r.s.data.orgs[u.OrganizationID]; !ok {
		return fmt.Errorf("%w: организация %s", repository.ErrNotFound, u.OrganizationID)
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	r.s.data.users[u.ID] = *u
	r.s.touch(u.ID)
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.data.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memUsers) filter(f repository.UserFilters) []*model.User {
	var ids []string
	for id, u := range r.s.data.users {
		if u.DeletedAt != nil {
			continue
		}
		if f.OrganizationID != nil && u.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		ids = append(ids, id)
	}
	r.s.newestFirst(ids)
	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		u := r.s.data.users[id]
		out = append(out, &u)
	}
	return out
}

func (r memUsers) List(_ context.Context, f repository.UserFilters, limit, offset int) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return paginate(r.filter(f), limit, offset), nil
}

func (r memUsers) Count(_ context.Context, f repository.UserFilters) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(f)), nil
}

func (r memUsers) Update(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.users[u.ID]
	if !ok || cur.DeletedAt != nil {
		return repository.ErrNotFound
	}
	for _, x := range r.s.data.users {
		if x.ID != u.ID && x.DeletedAt == nil && strings.EqualFold(x.Email, u.Email) {
			return fmt.Errorf("%w: email %s", repository.ErrConflict, u.Email)
		}
	}
	u.UpdatedAt = time.Now().UTC()
	r.s.data.users[u.ID] = *u
	return nil
}

func (r memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok || u.DeletedAt != nil {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &at
	r.s.data.users[id] = u
	return nil
}

func (r memUsers) SoftDelete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.data.users[id]
	if !ok || u.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt, u.IsActive = &now, false
	r.s.data.users[id] = u
	return nil
}

func (r memUsers) GetSummaries(_ context.Context, ids []string) ([]model.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.data.users[id]; ok {
			out = append(out, model.UserSummary{ID: u.ID, DisplayName: u.DisplayName(), Email: u.Email})
		}
	}
	return out, nil
}

// --- posts ---

type memPosts struct{ s *memStore }

func (r memPosts) Create(_ context.Context, p *model.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.posts[p.ID] = *p
	r.s.touch(p.ID)
	return nil
}

func (r memPosts) GetByID(_ context.Context, id string) (*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.posts[id]
	if !ok || p.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memPosts) GetByIDForUpdate(ctx context.Context, id string) (*model.Post, error) {
	return r.GetByID(ctx, id)
}

func (r memPosts) filter(f repository.PostFilters) []*model.Post {
	var ids []string
	for id, p := range r.s.data.posts {
		if p.DeletedAt != nil {
			continue
		}
		if f.OrganizationID != nil && p.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.CreatedBy != nil && p.CreatedBy != *f.CreatedBy {
			continue
		}
		if f.Platform != nil && p.Platform != *f.Platform {
			continue
		}
		ids = append(ids, id)
	}
	r.s.newestFirst(ids)
	out := make([]*model.Post, 0, len(ids))
	for _, id := range ids {
		p := r.s.data.posts[id]
		out = append(out, &p)
	}
	return out
}

func (r memPosts) List(_ context.Context, f repository.PostFilters, limit, offset int) ([]*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return paginate(r.filter(f), limit, offset), nil
}

func (r memPosts) Count(_ context.Context, f repository.PostFilters) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(f)), nil
}

func (r memPosts) Update(_ context.Context, p *model.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.posts[p.ID]
	if !ok || cur.DeletedAt != nil {
		return repository.ErrNotFound
	}
	r.s.data.posts[p.ID] = *p
	return nil
}

func (r memPosts) UpdateStatus(_ context.Context, id, from, to string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.posts[id]
	if !ok || p.DeletedAt != nil || p.Status != from {
		return fmt.Errorf("%w: пост %s не в статусе %s", repository.ErrStaleState, id, from)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	r.s.data.posts[id] = p
	return nil
}

func (r memPosts) SoftDelete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.data.posts[id]
	if !ok || p.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	p.DeletedAt = &now
	r.s.data.posts[id] = p
	return nil
}

// --- approvals ---

type memApprovals struct{ s *memStore }

func (r memApprovals) CreateWorkflow(_ context.Context, wf *model.ApprovalWorkflow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.data.workflows {
		if w.PostID == wf.PostID {
			return fmt.Errorf("%w: workflow для поста %s", repository.ErrConflict, wf.PostID)
		}
	}
	r.s.data.workflows[wf.ID] = *wf
	r.s.touch(wf.ID)
	return nil
}

func (r memApprovals) CreateSteps(_ context.Context, steps []model.ApprovalStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCreateSteps {
		return errors.New("сбой записи шагов")
	}
	for _, st := range steps {
		if _, ok := r.s.data.workflows[st.WorkflowID]; !ok {
			return repository.ErrNotFound
		}
		r.s.data.steps[st.ID] = st
	}
	return nil
}

func (r memApprovals) GetWorkflow(_ context.Context, id string) (*model.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.data.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &w, nil
}

func (r memApprovals) GetWorkflowForUpdate(ctx context.Context, id string) (*model.ApprovalWorkflow, error) {
	return r.GetWorkflow(ctx, id)
}

func (r memApprovals) GetWorkflowByPost(_ context.Context, postID string) (*model.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.data.workflows {
		if w.PostID == postID {
			return &w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memApprovals) UpdateWorkflow(_ context.Context, wf *model.ApprovalWorkflow, expectedStatus string, expectedStep int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.workflows[wf.ID]
	if !ok || cur.Status != expectedStatus || cur.CurrentStep != expectedStep {
		return fmt.Errorf("%w: workflow %s", repository.ErrStaleState, wf.ID)
	}
	r.s.data.workflows[wf.ID] = *wf
	return nil
}

func (r memApprovals) UpdateStep(_ context.Context, step *model.ApprovalStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.data.steps[step.ID]
	if !ok || cur.Status != model.StepStatusPending {
		return fmt.Errorf("%w: шаг %d", repository.ErrStaleState, step.StepNumber)
	}
	r.s.data.steps[step.ID] = *step
	return nil
}

func (r memApprovals) ListSteps(_ context.Context, workflowIDs []string) ([]model.ApprovalStep, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.ApprovalStep
	for _, st := range r.s.data.steps {
		if slices.Contains(workflowIDs, st.WorkflowID) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkflowID != out[j].WorkflowID {
			return out[i].WorkflowID < out[j].WorkflowID
		}
		return out[i].StepNumber < out[j].StepNumber
	})
	return out, nil
}

func (r memApprovals) list(match func(w model.ApprovalWorkflow) bool, limit, offset int) []*model.ApprovalWorkflow {
	var ids []string
	for id, w := range r.s.data.workflows {
		if match(w) {
			ids = append(ids, id)
		}
	}
	r.s.newestFirst(ids)
	out := make([]*model.ApprovalWorkflow, 0, len(ids))
	for _, id := range ids {
		w := r.s.data.workflows[id]
		out = append(out, &w)
	}
	return paginate(out, limit, offset)
}

func (r memApprovals) ListWorkflows(_ context.Context, f repository.WorkflowFilters, limit, offset int) ([]*model.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(w model.ApprovalWorkflow) bool {
		if f.OrganizationID != nil && w.OrganizationID != *f.OrganizationID {
			return false
		}
		return f.Status == nil || w.Status == *f.Status
	}, limit, offset), nil
}

func (r memApprovals) ListWorkflowsForApprover(_ context.Context, f repository.ApproverFilters, limit, offset int) ([]*model.ApprovalWorkflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(w model.ApprovalWorkflow) bool {
		if f.OrganizationID != nil && w.OrganizationID != *f.OrganizationID {
			return false
		}
		for _, st := range r.s.data.steps {
			if st.WorkflowID != w.ID || st.ApproverID == nil || *st.ApproverID != f.ApproverID {
				continue
			}
			if f.StepStatus == nil || st.Status == *f.StepStatus {
				return true
			}
		}
		return false
	}, limit, offset), nil
}

func (r memApprovals) GetPostRefs(_ context.Context, postIDs []string) (map[string]model.PostRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]model.PostRef, len(postIDs))
	for _, id := range postIDs {
		if p, ok := r.s.data.posts[id]; ok {
			out[id] = model.PostRef{ID: p.ID, Title: p.Title, Status: p.Status, Platform: p.Platform}
		}
	}
	return out, nil
}

// --- assets ---

type memAssets struct{ s *memStore }

func (r memAssets) Create(_ context.Context, a *model.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	r.s.data.assets[a.ID] = *a
	r.s.touch(a.ID)
	return nil
}

func (r memAssets) GetByID(_ context.Context, id string) (*model.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.assets[id]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (r memAssets) filter(f repository.AssetFilters) []*model.Asset {
	var ids []string
	for id, a := range r.s.data.assets {
		if a.DeletedAt != nil {
			continue
		}
		if f.OrganizationID != nil && a.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.Type != nil && a.Type != *f.Type {
			continue
		}
		if f.PostID != nil && (a.PostID == nil || *a.PostID != *f.PostID) {
			continue
		}
		ids = append(ids, id)
	}
	r.s.newestFirst(ids)
	out := make([]*model.Asset, 0, len(ids))
	for _, id := range ids {
		a := r.s.data.assets[id]
		out = append(out, &a)
	}
	return out
}

func (r memAssets) List(_ context.Context, f repository.AssetFilters, limit, offset int) ([]*model.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return paginate(r.filter(f), limit, offset), nil
}

func (r memAssets) Count(_ context.Context, f repository.AssetFilters) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(f)), nil
}

func (r memAssets) AttachToPost(_ context.Context, id, postID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.assets[id]
	if !ok || a.DeletedAt != nil {
		return repository.ErrNotFound
	}
	if _, ok := r.s.data.posts[postID]; !ok {
		return repository.ErrNotFound
	}
	a.PostID = &postID
	r.s.data.assets[id] = a
	return nil
}

func (r memAssets) UpdateURL(_ context.Context, id, url string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.assets[id]
	if !ok || a.DeletedAt != nil {
		return repository.ErrNotFound
	}
	a.URL = url
	r.s.data.assets[id] = a
	return nil
}

func (r memAssets) SoftDelete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.data.assets[id]
	if !ok || a.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	a.DeletedAt = &now
	r.s.data.assets[id] = a
	return nil
}

// --- licenses ---

type memLicenses struct{ s *memStore }

func (r memLicenses) Upsert(_ context.Context, l *model.License) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.assets[l.AssetID]; !ok {
		return false, repository.ErrNotFound
	}
	now := time.Now().UTC()
	cur, exists := r.s.data.licenses[l.AssetID]
	if exists {
		l.ID, l.CreatedAt = cur.ID, cur.CreatedAt
	} else {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
	r.s.data.licenses[l.AssetID] = *l
	return !exists, nil
}

func (r memLicenses) GetByAssetID(_ context.Context, assetID string) (*model.License, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.data.licenses[assetID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r memLicenses) DeleteByAssetID(_ context.Context, assetID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.licenses[assetID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.data.licenses, assetID)
	return nil
}

// --- audit ---

type memAudit struct{ s *memStore }

func (r memAudit) Create(_ context.Context, e *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAudit {
		return errors.New("журнал недоступен")
	}
	r.s.data.audit = append(r.s.data.audit, *e)
	return nil
}

func (r memAudit) GetByID(_ context.Context, id string) (*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.data.audit {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func matchStr(filter, value *string) bool {
	if filter == nil {
		return true
	}
	return value != nil && *value == *filter
}

func (r memAudit) filter(f model.AuditFilter) []*model.AuditLog {
	var out []*model.AuditLog
	for i := len(r.s.data.audit) - 1; i >= 0; i-- {
		e := r.s.data.audit[i]
		if !matchStr(f.OrganizationID, e.OrganizationID) || !matchStr(f.UserID, e.UserID) ||
			!matchStr(f.EntityID, e.EntityID) {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.EntityType != nil && e.EntityType != *f.EntityType {
			continue
		}
		if f.StartDate != nil && f.EndDate != nil &&
			(e.CreatedAt.Before(*f.StartDate) || e.CreatedAt.After(*f.EndDate)) {
			continue
		}
		out = append(out, &e)
	}
	return out
}

func (r memAudit) List(_ context.Context, f model.AuditFilter, limit, offset int) ([]*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return paginate(r.filter(f), limit, offset), nil
}

func (r memAudit) Count(_ context.Context, f model.AuditFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(f)), nil
}

func (r memAudit) Summary(_ context.Context, f model.AuditFilter) ([]model.AuditActionCount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[model.AuditAction]int{}
	for _, e := range r.filter(f) {
		counts[e.Action]++
	}
	out := make([]model.AuditActionCount, 0, len(counts))
	for a, c := range counts {
		out = append(out, model.AuditActionCount{Action: a, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Action < out[j].Action
	})
	return out, nil
}

func (r memAudit) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.data.audit[:0]
	var removed int64
	for _, e := range r.s.data.audit {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.data.audit = kept
	return removed, nil
}

// auditEntries возвращает копию журнала в порядке записи.
func (s *memStore) auditEntries() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.audit)
}

// auditActions возвращает типы событий в порядке записи.
func (s *memStore) auditActions() []model.AuditAction {
	var out []model.AuditAction
	for _, e := range s.auditEntries() {
		out = append(out, e.Action)
	}
	return out
}

// --- объектное хранилище ---

type memObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	maxSize   int64
	failPut   bool
	failRm    bool
	presigned int
}

func newMemObjectStore(maxSize int64) *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}, maxSize: maxSize}
}

func (m *memObjectStore) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) (*objectstore.PutResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return nil, fs.ErrClosed
	}
	data, err := io.ReadAll(io.LimitReader(r, m.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > m.maxSize {
		return nil, objectstore.ErrTooLarge
	}
	m.objects[name] = bytes.Clone(data)
	sum := sha256.Sum256(data)
	return &objectstore.PutResult{
		StoragePath: name,
		URL:         "http://objects.local/" + name + "?v=0",
		Size:        int64(len(data)),
		Checksum:    hex.EncodeToString(sum[:]),
	}, nil
}

func (m *memObjectStore) PresignedURL(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presigned++
	return fmt.Sprintf("http://objects.local/%s?v=%d", name, m.presigned), nil
}

func (m *memObjectStore) Remove(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRm {
		return errors.New("хранилище недоступно")
	}
	delete(m.objects, name)
	return nil
}

func (m *memObjectStore) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[name]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
