// approvals.go — движок последовательного согласования постов.
//
// Каждая операция выполняется в одной транзакции: workflow блокируется
// (SELECT ... FOR UPDATE), затем при необходимости меняется статус поста.
// Порядок блокировок всегда workflow → пост. Условные UPDATE в репозитории
// дополнительно отсекают устаревшее состояние (ErrStaleState → ErrInvalidState).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/contentguard/internal/domain/model"
	"github.com/bigkaa/contentguard/internal/domain/rbac"
	"github.com/bigkaa/contentguard/internal/domain/workflow"
	"github.com/bigkaa/contentguard/internal/repository"
)

var approvalDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cg_approval_decisions_total",
	Help: "Количество решений по шагам согласования.",
}, []string{"decision"})

// ApprovalService — сервис workflow согласования.
type ApprovalService struct {
	uow    UnitOfWork
	audit  *AuditService
	users  *UserSummaryCache
	deps   deps
	logger *slog.Logger
}

// NewApprovalService создаёт сервис согласования.
func NewApprovalService(uow UnitOfWork, audit *AuditService, users *UserSummaryCache, logger *slog.Logger) *ApprovalService {
	return &ApprovalService{
		uow:    uow,
		audit:  audit,
		users:  users,
		deps:   defaultDeps(),
		logger: logger.With(slog.String("component", "approval_service")),
	}
}

// workflowErr переводит ошибки правил согласования в ошибки сервиса.
func workflowErr(err error) error {
	switch {
	case errors.Is(err, workflow.ErrNotInProgress), errors.Is(err, workflow.ErrNoPendingStep):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, workflow.ErrNotAssignedApprover):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	case errors.Is(err, workflow.ErrNoApprovers), errors.Is(err, workflow.ErrTooManyApprovers):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}

// CreateWorkflow создаёт workflow для поста в статусе draft:
// шаги по одному на согласующего в порядке списка, пост переходит
// в pending_approval, workflow — в in_progress. Всё в одной транзакции.
func (s *ApprovalService) CreateWorkflow(ctx context.Context, actor rbac.Actor, client ClientContext, postID string, approverIDs []string) (*model.WorkflowView, error) {
	if err := canWritePosts(actor); err != nil {
		return nil, err
	}
	if err := workflow.ValidateApprovers(approverIDs); err != nil {
		return nil, workflowErr(err)
	}

	var created model.ApprovalWorkflow
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		post, err := r.Posts.GetByIDForUpdate(ctx, postID)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, post.OrganizationID) != nil {
			return ErrNotFound
		}
		if post.Status != model.PostStatusDraft {
			return invalidStateErr("согласование можно начать только для поста в статусе draft, текущий статус %s", post.Status)
		}

		_, err = r.Approvals.GetWorkflowByPost(ctx, post.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: workflow для поста %s уже существует", ErrConflict, post.ID)
		case !errors.Is(err, repository.ErrNotFound):
			return translateRepoErr(err)
		}

		if err := s.checkApprovers(ctx, r, post.OrganizationID, approverIDs); err != nil {
			return err
		}

		now := s.deps.now()
		wf, steps, err := workflow.New(post.ID, post.OrganizationID, actor.UserID, approverIDs, s.deps.newID, now)
		if err != nil {
			return workflowErr(err)
		}
		if err := r.Approvals.CreateWorkflow(ctx, &wf); err != nil {
			return translateRepoErr(err)
		}
		if err := r.Approvals.CreateSteps(ctx, steps); err != nil {
			return translateRepoErr(err)
		}
		if err := r.Posts.UpdateStatus(ctx, post.ID, model.PostStatusDraft, model.PostStatusPendingApproval); err != nil {
			return translateRepoErr(err)
		}

		started, err := workflow.Start(wf, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if err := r.Approvals.UpdateWorkflow(ctx, &started, wf.Status, wf.CurrentStep); err != nil {
			return translateRepoErr(err)
		}
		created = started
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditApprovalRequested,
		EntityType:     model.EntityWorkflow,
		EntityID:       created.ID,
		Actor:          &actor,
		OrganizationID: &created.OrganizationID,
		Client:         client,
		Metadata: map[string]any{
			"postId":     created.PostID,
			"totalSteps": created.TotalSteps,
		},
		NewValues: workflowSnapshot(&created),
	})

	return s.view(ctx, &created)
}

// checkApprovers проверяет, что все согласующие — активные пользователи организации поста.
func (s *ApprovalService) checkApprovers(ctx context.Context, r *repository.Repos, organizationID string, approverIDs []string) error {
	checked := make(map[string]bool, len(approverIDs))
	for _, id := range approverIDs {
		if checked[id] {
			continue
		}
		u, err := r.Users.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return validationErr("согласующий %s не найден", id)
			}
			return translateRepoErr(err)
		}
		if u.OrganizationID != organizationID || !u.IsActive {
			return validationErr("согласующий %s не является активным пользователем организации", id)
		}
		checked[id] = true
	}
	return nil
}

// Approve одобряет текущий шаг от имени назначенного согласующего.
// Проверки по порядку: workflow существует (ErrNotFound), организация
// совпадает (ErrForbidden), workflow in_progress (ErrInvalidState), есть
// ожидающий шаг currentStep+1 (ErrInvalidState), субъект — согласующий
// этого шага (ErrForbidden).
func (s *ApprovalService) Approve(ctx context.Context, actor rbac.Actor, client ClientContext, workflowID string, comment *string) (*model.WorkflowView, error) {
	return s.decide(ctx, actor, client, workflowID, workflow.DecisionApprove, comment)
}

// Reject отклоняет текущий шаг и немедленно завершает весь workflow.
// Предусловия совпадают с Approve.
func (s *ApprovalService) Reject(ctx context.Context, actor rbac.Actor, client ClientContext, workflowID string, comment *string) (*model.WorkflowView, error) {
	return s.decide(ctx, actor, client, workflowID, workflow.DecisionReject, comment)
}

func (s *ApprovalService) decide(ctx context.Context, actor rbac.Actor, client ClientContext, workflowID string, decision workflow.Decision, comment *string) (*model.WorkflowView, error) {
	if comment != nil && *comment == "" {
		comment = nil
	}

	var out workflow.Outcome
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		wf, err := r.Approvals.GetWorkflowForUpdate(ctx, workflowID)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, wf.OrganizationID) != nil {
			return ErrForbidden
		}

		// Пост блокируется после workflow, как и в Cancel. Удалённый пост
		// не мешает согласованию, но статус ему уже не переносится.
		post, err := r.Posts.GetByIDForUpdate(ctx, wf.PostID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return translateRepoErr(err)
		}

		steps, err := r.Approvals.ListSteps(ctx, []string{wf.ID})
		if err != nil {
			return translateRepoErr(err)
		}
		step, err := workflow.Resolve(*wf, steps, actor.UserID)
		if err != nil {
			return workflowErr(err)
		}

		out, err = workflow.Apply(*wf, step, decision, comment, s.deps.now())
		if err != nil {
			return workflowErr(err)
		}
		if err := workflow.Verify(out.Workflow, replaceStep(steps, out.Step)); err != nil {
			return fmt.Errorf("%w: workflow %s несогласован: %v", ErrInvalidState, wf.ID, err)
		}

		if err := r.Approvals.UpdateStep(ctx, &out.Step); err != nil {
			return translateRepoErr(err)
		}
		if err := r.Approvals.UpdateWorkflow(ctx, &out.Workflow, wf.Status, wf.CurrentStep); err != nil {
			return translateRepoErr(err)
		}
		// Итог согласования переносится на пост из любого текущего статуса:
		// автор мог вернуть пост в draft, пока workflow шёл.
		if out.PostStatus != "" && post != nil && post.Status != out.PostStatus {
			if err := r.Posts.UpdateStatus(ctx, post.ID, post.Status, out.PostStatus); err != nil {
				return translateRepoErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	approvalDecisionsTotal.WithLabelValues(string(decision)).Inc()

	action := model.AuditApprovalApproved
	if decision == workflow.DecisionReject {
		action = model.AuditApprovalRejected
	}
	metadata := map[string]any{
		"postId":     out.Workflow.PostID,
		"stepNumber": out.Step.StepNumber,
		"comment":    deref(out.Step.Comment),
	}
	if out.Completed {
		metadata["workflowStatus"] = out.Workflow.Status
	}
	s.audit.Record(ctx, AuditEvent{
		Action:         action,
		EntityType:     model.EntityWorkflow,
		EntityID:       out.Workflow.ID,
		Actor:          &actor,
		OrganizationID: &out.Workflow.OrganizationID,
		Client:         client,
		Metadata:       metadata,
	})

	return s.view(ctx, &out.Workflow)
}

// replaceStep возвращает копию шагов, в которой шаг с тем же ID заменён на step.
func replaceStep(steps []model.ApprovalStep, step model.ApprovalStep) []model.ApprovalStep {
	out := make([]model.ApprovalStep, len(steps))
	for i := range steps {
		out[i] = steps[i]
		if steps[i].ID == step.ID {
			out[i] = step
		}
	}
	return out
}

// Cancel отменяет workflow в статусе in_progress: ожидающие шаги
// переходят в skipped, пост возвращается из pending_approval в draft.
// Отменить может автор поста, organization_admin или super_admin.
func (s *ApprovalService) Cancel(ctx context.Context, actor rbac.Actor, client ClientContext, workflowID string) (*model.WorkflowView, error) {
	var cancelled model.ApprovalWorkflow
	var skipped int
	err := s.uow.InTx(ctx, func(r *repository.Repos) error {
		wf, err := r.Approvals.GetWorkflowForUpdate(ctx, workflowID)
		if err != nil {
			return translateRepoErr(err)
		}
		if rbac.Authorize(actor, wf.OrganizationID) != nil {
			return ErrForbidden
		}

		post, err := r.Posts.GetByIDForUpdate(ctx, wf.PostID)
		if err != nil {
			return translateRepoErr(err)
		}
		if post.CreatedBy != actor.UserID && !actor.HasAnyRole(rbac.RoleOrganizationAdmin, rbac.RoleSuperAdmin) {
			return ErrForbidden
		}

		steps, err := r.Approvals.ListSteps(ctx, []string{wf.ID})
		if err != nil {
			return translateRepoErr(err)
		}
		next, skippedSteps, err := workflow.Cancel(*wf, steps, s.deps.now())
		if err != nil {
			return workflowErr(err)
		}
		for i := range skippedSteps {
			if err := r.Approvals.UpdateStep(ctx, &skippedSteps[i]); err != nil {
				return translateRepoErr(err)
			}
		}
		if err := r.Approvals.UpdateWorkflow(ctx, &next, wf.Status, wf.CurrentStep); err != nil {
			return translateRepoErr(err)
		}
		if post.Status == model.PostStatusPendingApproval {
			if err := r.Posts.UpdateStatus(ctx, post.ID, model.PostStatusPendingApproval, model.PostStatusDraft); err != nil {
				return translateRepoErr(err)
			}
		}
		cancelled = next
		skipped = len(skippedSteps)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEvent{
		Action:         model.AuditApprovalCancelled,
		EntityType:     model.EntityWorkflow,
		EntityID:       cancelled.ID,
		Actor:          &actor,
		OrganizationID: &cancelled.OrganizationID,
		Client:         client,
		Metadata: map[string]any{
			"postId":       cancelled.PostID,
			"currentStep":  cancelled.CurrentStep,
			"skippedSteps": skipped,
		},
	})

	return s.view(ctx, &cancelled)
}

// GetWorkflowStatus возвращает workflow с шагами, согласующими и ссылкой на пост.
func (s *ApprovalService) GetWorkflowStatus(ctx context.Context, actor rbac.Actor, workflowID string) (*model.WorkflowView, error) {
	wf, err := s.uow.Repos().Approvals.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	if rbac.Authorize(actor, wf.OrganizationID) != nil {
		return nil, ErrForbidden
	}
	return s.view(ctx, wf)
}

// ListWorkflows возвращает workflow организации субъекта, новые первыми.
func (s *ApprovalService) ListWorkflows(ctx context.Context, actor rbac.Actor, status *string, organizationID *string, page model.Page) ([]model.WorkflowView, error) {
	if status != nil && !isWorkflowStatus(*status) {
		return nil, validationErr("недопустимый статус workflow: %q", *status)
	}
	page = normalizePage(page, DefaultPageLimit)

	wfs, err := s.uow.Repos().Approvals.ListWorkflows(ctx, repository.WorkflowFilters{
		OrganizationID: rbac.ScopeOrganization(actor, organizationID),
		Status:         status,
	}, page.Limit, page.Offset())
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return s.views(ctx, wfs)
}

// ListWorkflowsForApprover возвращает workflow, в которых субъекту назначен шаг.
// stepStatus фильтрует по статусу шага субъекта, а не workflow.
func (s *ApprovalService) ListWorkflowsForApprover(ctx context.Context, actor rbac.Actor, stepStatus *string, page model.Page) ([]model.WorkflowView, error) {
	if stepStatus != nil && !isStepStatus(*stepStatus) {
		return nil, validationErr("недопустимый статус шага: %q", *stepStatus)
	}
	page = normalizePage(page, DefaultPageLimit)

	wfs, err := s.uow.Repos().Approvals.ListWorkflowsForApprover(ctx, repository.ApproverFilters{
		ApproverID:     actor.UserID,
		StepStatus:     stepStatus,
		OrganizationID: rbac.ScopeOrganization(actor, nil),
	}, page.Limit, page.Offset())
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return s.views(ctx, wfs)
}

func (s *ApprovalService) view(ctx context.Context, wf *model.ApprovalWorkflow) (*model.WorkflowView, error) {
	views, err := s.views(ctx, []*model.ApprovalWorkflow{wf})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// views собирает представления: шаги одним запросом, согласующие через кэш,
// ссылки на посты одним запросом.
func (s *ApprovalService) views(ctx context.Context, wfs []*model.ApprovalWorkflow) ([]model.WorkflowView, error) {
	result := make([]model.WorkflowView, 0, len(wfs))
	if len(wfs) == 0 {
		return result, nil
	}

	repos := s.uow.Repos()
	ids := make([]string, len(wfs))
	postIDs := make([]string, len(wfs))
	for i, wf := range wfs {
		ids[i] = wf.ID
		postIDs[i] = wf.PostID
	}

	steps, err := repos.Approvals.ListSteps(ctx, ids)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	byWorkflow := make(map[string][]model.ApprovalStep, len(wfs))
	var approverIDs []string
	for _, st := range steps {
		byWorkflow[st.WorkflowID] = append(byWorkflow[st.WorkflowID], st)
		if st.ApproverID != nil {
			approverIDs = append(approverIDs, *st.ApproverID)
		}
	}

	approvers, err := s.users.Resolve(ctx, approverIDs, repos.Users.GetSummaries)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	posts, err := repos.Approvals.GetPostRefs(ctx, postIDs)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	for _, wf := range wfs {
		v := model.WorkflowView{
			Workflow:  *wf,
			Steps:     byWorkflow[wf.ID],
			Approvers: make(map[string]model.UserSummary),
			Post:      posts[wf.PostID],
		}
		if v.Steps == nil {
			v.Steps = []model.ApprovalStep{}
		}
		if v.Post.ID == "" {
			v.Post.ID = wf.PostID
		}
		for _, st := range v.Steps {
			if st.ApproverID == nil {
				continue
			}
			if u, ok := approvers[*st.ApproverID]; ok {
				v.Approvers[u.ID] = u
			}
		}
		result = append(result, v)
	}
	return result, nil
}

func isWorkflowStatus(s string) bool {
	switch s {
	case model.WorkflowStatusPending, model.WorkflowStatusInProgress, model.WorkflowStatusApproved,
		model.WorkflowStatusRejected, model.WorkflowStatusCancelled:
		return true
	}
	return false
}

func isStepStatus(s string) bool {
	switch s {
	case model.StepStatusPending, model.StepStatusApproved, model.StepStatusRejected, model.StepStatusSkipped:
		return true
	}
	return false
}

func workflowSnapshot(wf *model.ApprovalWorkflow) map[string]any {
	return map[string]any{
		"id":          wf.ID,
		"postId":      wf.PostID,
		"status":      wf.Status,
		"currentStep": wf.CurrentStep,
		"totalSteps":  wf.TotalSteps,
	}
}
