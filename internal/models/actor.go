package models

import (
	"github.com/google/uuid"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

// Actor пользователь, от имени которого выполняется операция.
type Actor struct {
	ID   uuid.UUID
	Role valueobject.Role
}

// SystemActor используется фоновым выпуском средств.
var SystemActor = Actor{ID: uuid.Nil, Role: valueobject.RoleAdmin}

func (a Actor) IsSystem() bool {
	return a.ID == uuid.Nil
}

// ActorRef возвращает id для журнала; nil для системного актора.
func (a Actor) ActorRef() *uuid.UUID {
	if a.IsSystem() {
		return nil
	}
	id := a.ID
	return &id
}
