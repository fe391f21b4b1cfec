// Пакет lifecycle — конечный автомат статусов поста.
//
// Основной путь: draft → pending_approval → approved → published → archived.
// Отклонённый пост возвращается в draft; архивный пост можно вернуть в draft.
// Таблица переходов — единственный источник истины для обновлений статуса.
package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bigkaa/contentguard/internal/domain/model"
)

// CodeInvalidTransition — машиночитаемый код недопустимого перехода.
const CodeInvalidTransition = "INVALID_TRANSITION"

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[string]map[string]bool{
	model.PostStatusDraft: {
		model.PostStatusPendingApproval: true,
		model.PostStatusArchived:        true,
	},
	model.PostStatusPendingApproval: {
		model.PostStatusApproved: true,
		model.PostStatusRejected: true,
		model.PostStatusDraft:    true,
	},
	model.PostStatusApproved: {
		model.PostStatusPublished: true,
		model.PostStatusDraft:     true,
	},
	model.PostStatusRejected:  {model.PostStatusDraft: true},
	model.PostStatusPublished: {model.PostStatusArchived: true},
	model.PostStatusArchived:  {model.PostStatusDraft: true},
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION)
	Message string // Человекочитаемое описание
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to string) bool {
	return validTransitions[from][to]
}

// ValidateTransition возвращает *TransitionError, если переход from → to
// отсутствует в таблице. Переход в тот же статус также недопустим.
func ValidateTransition(from, to string) error {
	if _, err := ParseStatus(to); err != nil {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: err.Error(),
			From:    from,
			To:      to,
		}
	}
	if !CanTransition(from, to) {
		msg := fmt.Sprintf("переход %s → %s недопустим", from, to)
		if targets := AllowedTargets(from); len(targets) > 0 {
			msg += ", из " + from + " допустимы: " + strings.Join(targets, ", ")
		}
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: msg,
			From:    from,
			To:      to,
		}
	}
	return nil
}

// AllowedTargets возвращает отсортированный список статусов, доступных из from.
func AllowedTargets(from string) []string {
	targets := validTransitions[from]
	result := make([]string, 0, len(targets))
	for t := range targets {
		result = append(result, t)
	}
	sort.Strings(result)
	return result
}

// Statuses возвращает все статусы поста.
func Statuses() []string {
	return []string{
		model.PostStatusDraft,
		model.PostStatusPendingApproval,
		model.PostStatusApproved,
		model.PostStatusRejected,
		model.PostStatusPublished,
		model.PostStatusArchived,
	}
}

// IsValidStatus проверяет, является ли строка допустимым статусом поста.
func IsValidStatus(s string) bool {
	_, ok := validTransitions[s]
	return ok
}

// ParseStatus преобразует строку в статус поста.
// Возвращает ошибку для недопустимых значений.
func ParseStatus(s string) (string, error) {
	if !IsValidStatus(s) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: %s", s, strings.Join(Statuses(), ", "))
	}
	return s, nil
}
