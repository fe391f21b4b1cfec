package model

import "time"

// Статусы workflow согласования.
const (
	WorkflowStatusPending    = "pending"
	WorkflowStatusInProgress = "in_progress"
	WorkflowStatusApproved   = "approved"
	WorkflowStatusRejected   = "rejected"
	WorkflowStatusCancelled  = "cancelled"
)

// Статусы шага согласования.
const (
	StepStatusPending  = "pending"
	StepStatusApproved = "approved"
	StepStatusRejected = "rejected"
	StepStatusSkipped  = "skipped"
)

// ApprovalWorkflow — цепочка согласования поста (1:1 с Post).
// Хранится в таблице approval_workflows.
type ApprovalWorkflow struct {
	// ID — UUID workflow
	ID string
	// PostID — UUID поста
	PostID string
	// OrganizationID — UUID организации поста
	OrganizationID string
	// Status — pending, in_progress, approved, rejected, cancelled
	Status string
	// CurrentStep — количество завершённых шагов (0..TotalSteps)
	CurrentStep int
	// TotalSteps — количество шагов, фиксируется при создании
	TotalSteps int
	// StartedAt — время запуска
	StartedAt *time.Time
	// CompletedAt — время перехода в терминальный статус
	CompletedAt *time.Time
	// CreatedBy — UUID инициатора
	CreatedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsTerminal возвращает true для approved, rejected и cancelled.
func (w *ApprovalWorkflow) IsTerminal() bool {
	switch w.Status {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusCancelled:
		return true
	}
	return false
}

// ApprovalStep — шаг цепочки согласования.
// Хранится в таблице approval_steps.
type ApprovalStep struct {
	// ID — UUID шага
	ID string
	// WorkflowID — UUID workflow
	WorkflowID string
	// StepNumber — порядковый номер (с 1, уникален в пределах workflow)
	StepNumber int
	// ApproverID — UUID согласующего (nil, если пользователь удалён физически)
	ApproverID *string
	// Status — pending, approved, rejected, skipped
	Status string
	// Comment — комментарий согласующего
	Comment *string
	// CompletedAt — время принятия решения
	CompletedAt *time.Time
	// CreatedAt — время создания
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// WorkflowView — workflow вместе с упорядоченными шагами,
// сведениями о согласующих и ссылкой на пост.
type WorkflowView struct {
	Workflow ApprovalWorkflow
	// Steps — шаги, упорядоченные по StepNumber
	Steps []ApprovalStep
	// Approvers — сведения о согласующих по ID пользователя
	Approvers map[string]UserSummary
	// Post — краткие сведения о посте
	Post PostRef
}

// PostRef — ссылка на пост в представлении workflow.
type PostRef struct {
	ID       string
	Title    string
	Status   string
	Platform string
}
