package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// UserBroadcaster доставляет сообщение подключённым клиентам пользователя.
type UserBroadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
}

// HubPublisher отправляет событие участникам бронирования.
type HubPublisher struct {
	hub UserBroadcaster
}

func NewHubPublisher(hub UserBroadcaster) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, e Event) error {
	seen := make(map[uuid.UUID]struct{}, len(e.Recipients))
	var errs []error
	for _, userID := range e.Recipients {
		if userID == uuid.Nil {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if err := p.hub.BroadcastToUser(userID, e.Type, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
