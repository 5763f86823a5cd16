package common

import "errors"

// Общие ошибки для всех репозиториев
var (
	ErrAlreadyExists = errors.New("entity already exists")
	// ErrStaleState условное обновление не нашло строку в ожидаемом состоянии.
	ErrStaleState = errors.New("stale state")
)
