package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

// translate переводит ошибки репозиториев в AppError. AppError проходит как есть.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrBookingNotFound):
		return apperror.ErrBookingNotFound
	case errors.Is(err, repository.ErrPaymentNotFound):
		return apperror.ErrPaymentNotFound
	case errors.Is(err, repository.ErrDisputeNotFound):
		return apperror.ErrDisputeNotFound
	case errors.Is(err, repository.ErrObligationNotFound):
		return apperror.ErrObligationNotFound
	case errors.Is(err, repository.ErrServiceNotFound):
		return apperror.ErrServiceNotFound
	case errors.Is(err, repository.ErrStaleState):
		return errConcurrent(err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperror.Wrap(err, apperror.ErrCodeConflict, "запись уже существует")
	default:
		return apperror.Wrap(err, apperror.ErrCodeDatabaseError, "ошибка хранилища")
	}
}

func errInvalidTransition(from, to valueobject.BookingStatus) error {
	return apperror.Newf(apperror.ErrCodeInvalidTransition, "переход %s → %s недопустим", from, to)
}

func errConcurrent(cause error) error {
	return apperror.Wrap(cause, apperror.ErrCodeConcurrentModification, "данные изменились, повторите действие")
}

func errValidation(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.New(apperror.ErrCodeValidation, err.Error())
}

// retryOnConflict повторяет операцию один раз, если она проиграла оптимистичную гонку.
// Повтор заново читает состояние, поэтому второй проход сам решает, что делать.
func retryOnConflict[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !apperror.IsRetryable(err) {
		return v, err
	}

	logger.WithFields(logrus.Fields{"operation": op}).Warn("concurrent modification, retrying")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return v, err
	}

	v, err = fn()
	if apperror.IsRetryable(err) {
		logger.WithFields(logrus.Fields{"operation": op}).Warn("concurrent modification after retry")
	}
	return v, err
}
