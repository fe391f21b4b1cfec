// Пакет workflow — правила последовательного многошагового согласования.
//
// Шаги workflow образуют непрерывную последовательность 1..TotalSteps.
// Действовать можно только над шагом CurrentStep+1 и только назначенному
// согласующему. Одобрение последнего шага завершает workflow статусом approved,
// любое отклонение сразу завершает workflow статусом rejected.
// Терминальный workflow неизменяем.
//
// Пакет не работает с хранилищем: сервисный слой загружает workflow
// под блокировкой строки, применяет решение и сохраняет результат в той же транзакции.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// MaxSteps — максимальное количество шагов в одном workflow.
const MaxSteps = 20

// Ошибки правил согласования.
var (
	// ErrNoApprovers — пустой список согласующих.
	ErrNoApprovers = errors.New("список согласующих пуст")
	// ErrTooManyApprovers — превышен MaxSteps.
	ErrTooManyApprovers = fmt.Errorf("в workflow не может быть больше %d шагов", MaxSteps)
	// ErrNotInProgress — workflow не находится в статусе in_progress.
	ErrNotInProgress = errors.New("workflow не в статусе in_progress")
	// ErrNoPendingStep — нет ожидающего шага с номером CurrentStep+1.
	ErrNoPendingStep = errors.New("нет ожидающего шага")
	// ErrNotAssignedApprover — пользователь не назначен согласующим текущего шага.
	ErrNotAssignedApprover = errors.New("вы не являетесь согласующим текущего шага")
)

// Decision — решение согласующего.
type Decision string

const (
	// DecisionApprove — одобрить текущий шаг.
	DecisionApprove Decision = "approve"
	// DecisionReject — отклонить текущий шаг (и весь workflow).
	DecisionReject Decision = "reject"
)

// Outcome — результат применения решения.
type Outcome struct {
	// Workflow — обновлённый workflow
	Workflow model.ApprovalWorkflow
	// Step — обновлённый шаг, над которым принято решение
	Step model.ApprovalStep
	// PostStatus — статус, в который переводится пост ("" — без изменений)
	PostStatus string
	// Completed — workflow перешёл в терминальный статус
	Completed bool
}

// ValidateApprovers проверяет список согласующих перед созданием workflow.
func ValidateApprovers(approverIDs []string) error {
	if len(approverIDs) == 0 {
		return ErrNoApprovers
	}
	if len(approverIDs) > MaxSteps {
		return ErrTooManyApprovers
	}
	for i, id := range approverIDs {
		if id == "" {
			return fmt.Errorf("согласующий шага %d не задан", i+1)
		}
	}
	return nil
}

// New формирует workflow в статусе pending и по одному шагу на каждого
// согласующего в порядке списка. StepNumber — позиция в списке, начиная с 1.
// Идентификаторы выдаёт newID.
func New(postID, organizationID, createdBy string, approverIDs []string, newID func() string, now time.Time) (model.ApprovalWorkflow, []model.ApprovalStep, error) {
	if err := ValidateApprovers(approverIDs); err != nil {
		return model.ApprovalWorkflow{}, nil, err
	}

	wf := model.ApprovalWorkflow{
		ID:             newID(),
		PostID:         postID,
		OrganizationID: organizationID,
		Status:         model.WorkflowStatusPending,
		CurrentStep:    0,
		TotalSteps:     len(approverIDs),
		StartedAt:      &now,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	steps := make([]model.ApprovalStep, len(approverIDs))
	for i, approverID := range approverIDs {
		approver := approverID
		steps[i] = model.ApprovalStep{
			ID:         newID(),
			WorkflowID: wf.ID,
			StepNumber: i + 1,
			ApproverID: &approver,
			Status:     model.StepStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}

	return wf, steps, nil
}

// Start переводит workflow из pending в in_progress.
func Start(wf model.ApprovalWorkflow, now time.Time) (model.ApprovalWorkflow, error) {
	if wf.Status != model.WorkflowStatusPending {
		return wf, fmt.Errorf("запуск workflow в статусе %s невозможен", wf.Status)
	}
	wf.Status = model.WorkflowStatusInProgress
	wf.UpdatedAt = now
	return wf, nil
}

// CurrentStep возвращает шаг, ожидающий решения.
// Проверки выполняются в порядке: статус workflow, наличие ожидающего шага.
func CurrentStep(wf model.ApprovalWorkflow, steps []model.ApprovalStep) (model.ApprovalStep, error) {
	if wf.Status != model.WorkflowStatusInProgress {
		return model.ApprovalStep{}, ErrNotInProgress
	}
	want := wf.CurrentStep + 1
	for _, s := range steps {
		if s.StepNumber == want && s.Status == model.StepStatusPending {
			return s, nil
		}
	}
	return model.ApprovalStep{}, ErrNoPendingStep
}

// Resolve находит текущий шаг и проверяет, что действует назначенный согласующий.
func Resolve(wf model.ApprovalWorkflow, steps []model.ApprovalStep, actingUserID string) (model.ApprovalStep, error) {
	step, err := CurrentStep(wf, steps)
	if err != nil {
		return model.ApprovalStep{}, err
	}
	if step.ApproverID == nil || *step.ApproverID != actingUserID {
		return model.ApprovalStep{}, ErrNotAssignedApprover
	}
	return step, nil
}

// Apply применяет решение к шагу, найденному через Resolve.
// Одобрение увеличивает CurrentStep; при CurrentStep == TotalSteps workflow
// и пост переходят в approved. Отклонение завершает workflow немедленно,
// остальные шаги остаются pending.
func Apply(wf model.ApprovalWorkflow, step model.ApprovalStep, decision Decision, comment *string, now time.Time) (Outcome, error) {
	if wf.Status != model.WorkflowStatusInProgress {
		return Outcome{}, ErrNotInProgress
	}
	if step.Status != model.StepStatusPending || step.StepNumber != wf.CurrentStep+1 {
		return Outcome{}, ErrNoPendingStep
	}

	step.Comment = comment
	step.CompletedAt = &now
	step.UpdatedAt = now
	wf.UpdatedAt = now

	out := Outcome{}
	switch decision {
	case DecisionApprove:
		step.Status = model.StepStatusApproved
		wf.CurrentStep++
		if wf.CurrentStep == wf.TotalSteps {
			wf.Status = model.WorkflowStatusApproved
			wf.CompletedAt = &now
			out.PostStatus = model.PostStatusApproved
			out.Completed = true
		}
	case DecisionReject:
		step.Status = model.StepStatusRejected
		wf.Status = model.WorkflowStatusRejected
		wf.CompletedAt = &now
		out.PostStatus = model.PostStatusRejected
		out.Completed = true
	default:
		return Outcome{}, fmt.Errorf("неизвестное решение: %q", decision)
	}

	out.Workflow = wf
	out.Step = step
	return out, nil
}

// Cancel завершает workflow статусом cancelled. Все ещё ожидающие шаги
// переводятся в skipped и возвращаются для сохранения.
func Cancel(wf model.ApprovalWorkflow, steps []model.ApprovalStep, now time.Time) (model.ApprovalWorkflow, []model.ApprovalStep, error) {
	if wf.Status != model.WorkflowStatusInProgress {
		return wf, nil, ErrNotInProgress
	}

	skipped := make([]model.ApprovalStep, 0, len(steps))
	for _, s := range steps {
		if s.Status != model.StepStatusPending {
			continue
		}
		s.Status = model.StepStatusSkipped
		s.UpdatedAt = now
		skipped = append(skipped, s)
	}

	wf.Status = model.WorkflowStatusCancelled
	wf.CompletedAt = &now
	wf.UpdatedAt = now
	return wf, skipped, nil
}

// Verify проверяет согласованность workflow и его шагов:
// непрерывная нумерация 1..TotalSteps, CurrentStep в пределах [0, TotalSteps],
// количество одобренных шагов равно CurrentStep, не больше одного отклонения,
// все шаги после CurrentStep+1 ещё не рассматривались.
func Verify(wf model.ApprovalWorkflow, steps []model.ApprovalStep) error {
	if len(steps) != wf.TotalSteps {
		return fmt.Errorf("шагов %d, ожидалось %d", len(steps), wf.TotalSteps)
	}
	if wf.CurrentStep < 0 || wf.CurrentStep > wf.TotalSteps {
		return fmt.Errorf("currentStep %d вне диапазона 0..%d", wf.CurrentStep, wf.TotalSteps)
	}

	seen := make(map[int]bool, len(steps))
	approved, rejected := 0, 0
	for _, s := range steps {
		if s.StepNumber < 1 || s.StepNumber > wf.TotalSteps || seen[s.StepNumber] {
			return fmt.Errorf("некорректный номер шага %d", s.StepNumber)
		}
		seen[s.StepNumber] = true

		switch s.Status {
		case model.StepStatusApproved:
			approved++
			if s.StepNumber > wf.CurrentStep {
				return fmt.Errorf("шаг %d одобрен раньше очереди", s.StepNumber)
			}
		case model.StepStatusRejected:
			rejected++
			if s.StepNumber != wf.CurrentStep+1 {
				return fmt.Errorf("отклонён шаг %d вне очереди", s.StepNumber)
			}
		case model.StepStatusPending:
			if s.StepNumber <= wf.CurrentStep {
				return fmt.Errorf("шаг %d пропущен без решения", s.StepNumber)
			}
		}
	}

	if approved != wf.CurrentStep {
		return fmt.Errorf("одобрено %d шагов, currentStep %d", approved, wf.CurrentStep)
	}
	if rejected > 1 {
		return fmt.Errorf("отклонено %d шагов", rejected)
	}
	if rejected == 1 && wf.Status != model.WorkflowStatusRejected {
		return fmt.Errorf("есть отклонённый шаг, но статус %s", wf.Status)
	}
	if wf.Status == model.WorkflowStatusApproved && wf.CurrentStep != wf.TotalSteps {
		return fmt.Errorf("workflow approved при currentStep %d из %d", wf.CurrentStep, wf.TotalSteps)
	}
	return nil
}
