package service

import (
	"errors"
	"fmt"

	"ysocial/internal/repository"
)

var (
	ErrNotFound            = errors.New("объект не найден")
	ErrConstraintViolation = errors.New("значение уже занято")
	ErrInvalidArgument     = errors.New("неверные аргументы")
	ErrForbidden           = errors.New("недостаточно прав")
	ErrReportClosed        = errors.New("жалоба уже закрыта")
	ErrAuthFailed          = errors.New("неверное имя пользователя или пароль")
)

// storeErr wraps a repository failure, keeping repository.ErrNotFound
// reachable as ErrNotFound for callers of the service layer.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
