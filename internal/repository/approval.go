package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// ApprovalRepository — доступ к таблицам approval_workflows и approval_steps.
type ApprovalRepository interface {
	// CreateWorkflow создаёт workflow. Второй workflow для поста — ErrConflict.
	CreateWorkflow(ctx context.Context, wf *model.ApprovalWorkflow) error
	// CreateSteps создаёт шаги workflow.
	CreateSteps(ctx context.Context, steps []model.ApprovalStep) error
	// GetWorkflow возвращает workflow по UUID.
	GetWorkflow(ctx context.Context, id string) (*model.ApprovalWorkflow, error)
	// GetWorkflowForUpdate возвращает workflow и блокирует строку до конца транзакции.
	GetWorkflowForUpdate(ctx context.Context, id string) (*model.ApprovalWorkflow, error)
	// GetWorkflowByPost возвращает workflow поста.
	GetWorkflowByPost(ctx context.Context, postID string) (*model.ApprovalWorkflow, error)
	// UpdateWorkflow сохраняет статус, счётчик и отметки времени workflow.
	// Запись обновляется, только если в БД статус равен expectedStatus и
	// current_step равен expectedStep, иначе ErrStaleState.
	UpdateWorkflow(ctx context.Context, wf *model.ApprovalWorkflow, expectedStatus string, expectedStep int) error
	// UpdateStep сохраняет решение по шагу. Шаг должен быть в статусе pending, иначе ErrStaleState.
	UpdateStep(ctx context.Context, step *model.ApprovalStep) error
	// ListSteps возвращает шаги указанных workflow, упорядоченные по workflow и номеру.
	ListSteps(ctx context.Context, workflowIDs []string) ([]model.ApprovalStep, error)
	// ListWorkflows возвращает workflow с фильтрацией, новые первыми.
	ListWorkflows(ctx context.Context, filters WorkflowFilters, limit, offset int) ([]*model.ApprovalWorkflow, error)
	// ListWorkflowsForApprover возвращает workflow, в которых пользователю назначен
	// хотя бы один шаг (с фильтром по статусу этого шага), новые первыми.
	ListWorkflowsForApprover(ctx context.Context, filters ApproverFilters, limit, offset int) ([]*model.ApprovalWorkflow, error)
	// GetPostRefs возвращает краткие сведения о постах, включая удалённые.
	GetPostRefs(ctx context.Context, postIDs []string) (map[string]model.PostRef, error)
}

// WorkflowFilters — фильтры списка workflow.
type WorkflowFilters struct {
	OrganizationID *string
	Status         *string
}

// ApproverFilters — фильтры списка workflow согласующего.
type ApproverFilters struct {
	ApproverID string
	// StepStatus — статус шага согласующего (не workflow)
	StepStatus     *string
	OrganizationID *string
}

const workflowColumns = `id, post_id, organization_id, status, current_step, total_steps,
	started_at, completed_at, created_by, created_at, updated_at`

const stepColumns = `id, workflow_id, step_number, approver_id, status, comment,
	completed_at, created_at, updated_at`

type approvalRepo struct {
	db DBTX
}

// NewApprovalRepository создаёт репозиторий workflow согласования.
func NewApprovalRepository(db DBTX) ApprovalRepository {
	return &approvalRepo{db: db}
}

func scanWorkflow(row pgx.Row) (*model.ApprovalWorkflow, error) {
	w := &model.ApprovalWorkflow{}
	err := row.Scan(
		&w.ID, &w.PostID, &w.OrganizationID, &w.Status, &w.CurrentStep, &w.TotalSteps,
		&w.StartedAt, &w.CompletedAt, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt,
	)
	return w, err
}

func (r *approvalRepo) CreateWorkflow(ctx context.Context, wf *model.ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows (id, post_id, organization_id, status, current_step,
			total_steps, started_at, completed_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		wf.ID, wf.PostID, wf.OrganizationID, wf.Status, wf.CurrentStep,
		wf.TotalSteps, wf.StartedAt, wf.CompletedAt, wf.CreatedBy,
	).Scan(&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: для поста %s уже создан workflow", ErrConflict, wf.PostID)
		}
		return fmt.Errorf("ошибка создания workflow: %w", err)
	}
	return nil
}

func (r *approvalRepo) CreateSteps(ctx context.Context, steps []model.ApprovalStep) error {
	query := `
		INSERT INTO approval_steps (id, workflow_id, step_number, approver_id, status, comment, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	for i := range steps {
		s := &steps[i]
		err := r.db.QueryRow(ctx, query,
			s.ID, s.WorkflowID, s.StepNumber, s.ApproverID, s.Status, s.Comment, s.CompletedAt,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: шаг %d уже существует", ErrConflict, s.StepNumber)
			}
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: согласующий шага %d", ErrNotFound, s.StepNumber)
			}
			return fmt.Errorf("ошибка создания шага %d: %w", s.StepNumber, err)
		}
	}
	return nil
}

func (r *approvalRepo) GetWorkflow(ctx context.Context, id string) (*model.ApprovalWorkflow, error) {
	return r.getWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = $1`, id)
}

func (r *approvalRepo) GetWorkflowForUpdate(ctx context.Context, id string) (*model.ApprovalWorkflow, error) {
	return r.getWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE id = $1 FOR UPDATE`, id)
}

func (r *approvalRepo) GetWorkflowByPost(ctx context.Context, postID string) (*model.ApprovalWorkflow, error) {
	return r.getWorkflow(ctx, `SELECT `+workflowColumns+` FROM approval_workflows WHERE post_id = $1`, postID)
}

func (r *approvalRepo) getWorkflow(ctx context.Context, query, arg string) (*model.ApprovalWorkflow, error) {
	w, err := scanWorkflow(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения workflow: %w", err)
	}
	return w, nil
}

func (r *approvalRepo) UpdateWorkflow(ctx context.Context, wf *model.ApprovalWorkflow, expectedStatus string, expectedStep int) error {
	query := `
		UPDATE approval_workflows
		SET status = $2, current_step = $3, started_at = $4, completed_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $6 AND current_step = $7
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		wf.ID, wf.Status, wf.CurrentStep, wf.StartedAt, wf.CompletedAt,
		expectedStatus, expectedStep,
	).Scan(&wf.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: workflow %s", ErrStaleState, wf.ID)
		}
		return fmt.Errorf("ошибка обновления workflow: %w", err)
	}
	return nil
}

func (r *approvalRepo) UpdateStep(ctx context.Context, step *model.ApprovalStep) error {
	query := `
		UPDATE approval_steps
		SET status = $2, comment = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		step.ID, step.Status, step.Comment, step.CompletedAt,
	).Scan(&step.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: шаг %d уже рассмотрен", ErrStaleState, step.StepNumber)
		}
		return fmt.Errorf("ошибка обновления шага: %w", err)
	}
	return nil
}

func (r *approvalRepo) ListSteps(ctx context.Context, workflowIDs []string) ([]model.ApprovalStep, error) {
	if len(workflowIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + stepColumns + ` FROM approval_steps
		WHERE workflow_id = ANY($1)
		ORDER BY workflow_id, step_number`

	rows, err := r.db.Query(ctx, query, workflowIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения шагов: %w", err)
	}
	defer rows.Close()

	var result []model.ApprovalStep
	for rows.Next() {
		var s model.ApprovalStep
		if err := rows.Scan(
			&s.ID, &s.WorkflowID, &s.StepNumber, &s.ApproverID, &s.Status, &s.Comment,
			&s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования шага: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *approvalRepo) ListWorkflows(ctx context.Context, filters WorkflowFilters, limit, offset int) ([]*model.ApprovalWorkflow, error) {
	b := &whereBuilder{}
	if filters.OrganizationID != nil {
		b.add("organization_id = $%d", *filters.OrganizationID)
	}
	if filters.Status != nil {
		b.add("status = $%d", *filters.Status)
	}
	argNum := b.nextArg()
	where, args := b.build()

	query := fmt.Sprintf(`SELECT %s FROM approval_workflows %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, workflowColumns, where, argNum, argNum+1)
	args = append(args, limit, offset)

	return r.queryWorkflows(ctx, query, args)
}

func (r *approvalRepo) ListWorkflowsForApprover(ctx context.Context, filters ApproverFilters, limit, offset int) ([]*model.ApprovalWorkflow, error) {
	b := &whereBuilder{}
	b.add("s.approver_id = $%d", filters.ApproverID)
	if filters.StepStatus != nil {
		b.add("s.status = $%d", *filters.StepStatus)
	}
	stepWhere, args := b.build()

	outer := &whereBuilder{args: args}
	outer.raw("EXISTS (SELECT 1 FROM approval_steps s " + stepWhere + " AND s.workflow_id = w.id)")
	if filters.OrganizationID != nil {
		outer.add("w.organization_id = $%d", *filters.OrganizationID)
	}
	argNum := outer.nextArg()
	where, args := outer.build()

	query := fmt.Sprintf(`SELECT %s FROM approval_workflows w %s
		ORDER BY w.created_at DESC
		LIMIT $%d OFFSET $%d`, workflowColumnsPrefixed, where, argNum, argNum+1)
	args = append(args, limit, offset)

	return r.queryWorkflows(ctx, query, args)
}

// workflowColumnsPrefixed — workflowColumns для запроса с алиасом w.
const workflowColumnsPrefixed = `w.id, w.post_id, w.organization_id, w.status, w.current_step, w.total_steps,
	w.started_at, w.completed_at, w.created_by, w.created_at, w.updated_at`

func (r *approvalRepo) queryWorkflows(ctx context.Context, query string, args []any) ([]*model.ApprovalWorkflow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка workflow: %w", err)
	}
	defer rows.Close()

	var result []*model.ApprovalWorkflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования workflow: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *approvalRepo) GetPostRefs(ctx context.Context, postIDs []string) (map[string]model.PostRef, error) {
	result := make(map[string]model.PostRef, len(postIDs))
	if len(postIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, title, status, platform FROM posts WHERE id = ANY($1)`, postIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения постов workflow: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref model.PostRef
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Status, &ref.Platform); err != nil {
			return nil, fmt.Errorf("ошибка сканирования поста: %w", err)
		}
		result[ref.ID] = ref
	}
	return result, rows.Err()
}
