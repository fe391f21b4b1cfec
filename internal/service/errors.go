// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bigkaa/contentguard/internal/domain/lifecycle"
	"github.com/bigkaa/contentguard/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден или принадлежит другой организации.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — действие запрещено для субъекта.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrInvalidState — состояние ресурса не допускает операцию.
	ErrInvalidState = errors.New("недопустимое состояние")
	// ErrInvalidTransition — переход статуса поста отсутствует в таблице переходов.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("неверный email или пароль")
	// ErrStorageUnavailable — объектное хранилище недоступно.
	ErrStorageUnavailable = errors.New("объектное хранилище недоступно")
	// ErrTimeout — операция не уложилась в отведённое время.
	ErrTimeout = errors.New("превышено время ожидания")
)

// translateRepoErr переводит ошибки слоя репозиториев в ошибки сервисного слоя.
// Неизвестные ошибки возвращаются как есть.
func translateRepoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrStaleState):
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// transitionErr оборачивает ошибку таблицы переходов.
func transitionErr(err error) error {
	var terr *lifecycle.TransitionError
	if errors.As(err, &terr) {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, terr.Message)
	}
	return err
}

// validationErr формирует ошибку валидации с описанием.
func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// invalidStateErr формирует ошибку недопустимого состояния с описанием.
func invalidStateErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
