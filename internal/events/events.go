// Package events уведомления о переходах эскроу. Доставка best-effort и не влияет
// на результат операции.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypePaymentSubmitted     = "payment.submitted"
	TypePaymentVerified      = "payment.verified"
	TypePaymentRejected      = "payment.rejected"
	TypeDisputeOpened        = "dispute.opened"
	TypeDisputeResolved      = "dispute.resolved"
	TypeObligationCreated    = "obligation.created"
	TypeObligationExecuted   = "obligation.executed"
	TypeTierGranted          = "tier.granted"
)

type Event struct {
	Type      string     `json:"type"`
	BookingID *uuid.UUID `json:"booking_id,omitempty"`
	Payload   any        `json:"payload"`
	At        time.Time  `json:"at"`
	// Recipients участники, которым событие уходит в WebSocket.
	Recipients []uuid.UUID `json:"-"`
}

// StatusChange полезная нагрузка booking.status_changed.
type StatusChange struct {
	From    string     `json:"from"`
	To      string     `json:"to"`
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout рассылает событие всем получателям и собирает ошибки.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop ничего не делает.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
