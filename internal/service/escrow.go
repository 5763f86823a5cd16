package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/config"
	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/events"
	"github.com/ignatzorin/creator-escrow/internal/goroutine"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository"
	"github.com/ignatzorin/creator-escrow/internal/validation"
)

const publishTimeout = 5 * time.Second

// EscrowRules параметры эскроу: задержка автовыпуска, окно спора и комиссии по путям.
type EscrowRules struct {
	AutoReleaseDelay time.Duration
	DisputeWindow    time.Duration
	PayoutFee        valueobject.FeeRate
	DisputeRefundFee valueobject.FeeRate
	CreatorRejectFee valueobject.FeeRate
	Networks         []string
}

func DefaultEscrowRules() EscrowRules {
	return EscrowRules{
		AutoReleaseDelay: 72 * time.Hour,
		DisputeWindow:    48 * time.Hour,
		PayoutFee:        valueobject.MustFeeRate("0.15"),
		DisputeRefundFee: valueobject.MustFeeRate("0.15"),
		CreatorRejectFee: valueobject.MustFeeRate("0.05"),
		Networks: []string{
			validation.NetworkEthereum,
			validation.NetworkPolygon,
			validation.NetworkBSC,
			validation.NetworkTron,
			validation.NetworkSolana,
			validation.NetworkBitcoin,
		},
	}
}

// RulesFromConfig собирает правила из секции ESCROW_.
func RulesFromConfig(ec config.EscrowConfig) (EscrowRules, error) {
	payout, err := valueobject.NewFeeRate(ec.PayoutFeeRate)
	if err != nil {
		return EscrowRules{}, err
	}
	disputeRefund, err := valueobject.NewFeeRate(ec.DisputeRefundFeeRate)
	if err != nil {
		return EscrowRules{}, err
	}
	creatorReject, err := valueobject.NewFeeRate(ec.CreatorRejectFeeRate)
	if err != nil {
		return EscrowRules{}, err
	}
	return EscrowRules{
		AutoReleaseDelay: ec.AutoReleaseDelay,
		DisputeWindow:    ec.DisputeWindow,
		PayoutFee:        payout,
		DisputeRefundFee: disputeRefund,
		CreatorRejectFee: creatorReject,
		Networks:         ec.Networks,
	}, nil
}

// Deps зависимости сервисов эскроу.
type Deps struct {
	Store     repository.Store
	Policy    *AccessPolicy
	Publisher events.Publisher
	Rules     EscrowRules
	// Clock для тестов; по умолчанию time.Now.
	Clock func() time.Time
}

// Escrow объединяет четыре сервиса над одним хранилищем.
type Escrow struct {
	Bookings   *BookingService
	Payments   *PaymentService
	Disputes   *DisputeService
	Settlement *SettlementService
	Policy     *AccessPolicy
}

func NewEscrow(d Deps) *Escrow {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Policy == nil {
		d.Policy = NewAccessPolicy(d.Store.Repos().Policies, nil, 0)
	}

	c := &core{
		store:     d.Store,
		policy:    d.Policy,
		publisher: d.Publisher,
		rules:     d.Rules,
		clock:     d.Clock,
	}
	settlement := &SettlementService{core: c}
	return &Escrow{
		Bookings:   &BookingService{core: c, settlement: settlement},
		Payments:   &PaymentService{core: c},
		Disputes:   &DisputeService{core: c, settlement: settlement},
		Settlement: settlement,
		Policy:     d.Policy,
	}
}

// core общее для всех сервисов: хранилище, политика, публикация событий.
type core struct {
	store     repository.Store
	policy    *AccessPolicy
	publisher events.Publisher
	rules     EscrowRules
	clock     func() time.Time
}

func (c *core) now() time.Time {
	return c.clock().UTC().Truncate(time.Microsecond)
}

// statusChange переход, попавший в закоммиченную транзакцию.
type statusChange struct {
	booking *models.Booking
	from    valueobject.BookingStatus
	to      valueobject.BookingStatus
	actor   models.Actor
	reason  string
}

// recorder копит переходы и события транзакции до коммита.
type recorder struct {
	at      time.Time
	changes []statusChange
	events  []events.Event
}

func (rec *recorder) emit(eventType string, b *models.Booking, payload any, recipients ...uuid.UUID) {
	e := events.Event{Type: eventType, Payload: payload, At: rec.at, Recipients: recipients}
	if b != nil {
		id := b.ID
		e.BookingID = &id
		e.Recipients = append(e.Recipients, b.ClientID, b.CreatorID)
	}
	rec.events = append(rec.events, e)
}

// inTx выполняет fn в транзакции; после коммита пишет журнал и публикует события.
func (c *core) inTx(ctx context.Context, fn func(r repository.Repos, rec *recorder) error) error {
	rec := &recorder{at: c.now()}
	err := c.store.WithinTx(ctx, func(r repository.Repos) error {
		return fn(r, rec)
	})
	if err != nil {
		return translate(err)
	}
	c.commit(ctx, rec)
	return nil
}

func (c *core) commit(ctx context.Context, rec *recorder) {
	for _, ch := range rec.changes {
		fields := logrus.Fields{
			"booking_id": ch.booking.ID,
			"from":       ch.from,
			"to":         ch.to,
			"actor_id":   ch.actor.ID,
		}
		if ch.reason != "" {
			fields["reason"] = ch.reason
		}
		logger.WithFields(fields).Info("booking status changed")
	}

	if len(rec.events) == 0 {
		return
	}
	pending := rec.events
	pubCtx := context.WithoutCancel(ctx)
	goroutine.SafeGo("events.publish", func() {
		ctx, cancel := context.WithTimeout(pubCtx, publishTimeout)
		defer cancel()
		for _, e := range pending {
			if err := c.publisher.Publish(ctx, e); err != nil {
				logger.WithFields(logrus.Fields{
					"event": e.Type,
					"error": err.Error(),
				}).Warn("failed to publish event")
			}
		}
	})
}

// transition условно переводит бронирование и пишет строку журнала.
func (c *core) transition(
	ctx context.Context,
	r repository.Repos,
	rec *recorder,
	b *models.Booking,
	to valueobject.BookingStatus,
	actor models.Actor,
	reason string,
	mutate func(t *models.BookingTransition),
) (*models.Booking, error) {
	if !b.Status.CanTransitionTo(to) {
		return nil, errInvalidTransition(b.Status, to)
	}

	t := models.BookingTransition{
		BookingID: b.ID,
		From:      b.Status,
		To:        to,
		UpdatedAt: rec.at,
	}
	if mutate != nil {
		mutate(&t)
	}
	if err := r.Bookings.Transition(ctx, t); err != nil {
		return nil, translate(err)
	}

	h := &models.BookingHistory{
		ID:         uuid.New(),
		BookingID:  b.ID,
		FromStatus: b.Status,
		ToStatus:   to,
		ActorID:    actor.ActorRef(),
		Reason:     optionalString(reason),
		CreatedAt:  rec.at,
	}
	if err := r.Bookings.AppendHistory(ctx, h); err != nil {
		return nil, translate(err)
	}

	updated := applyTransition(*b, t)
	rec.changes = append(rec.changes, statusChange{booking: &updated, from: b.Status, to: to, actor: actor, reason: reason})
	rec.emit(events.TypeBookingStatusChanged, &updated, events.StatusChange{
		From:    string(b.Status),
		To:      string(to),
		ActorID: actor.ActorRef(),
		Reason:  reason,
	})
	return &updated, nil
}

func applyTransition(b models.Booking, t models.BookingTransition) models.Booking {
	b.Status = t.To
	if t.PaidAt != nil {
		b.PaidAt = t.PaidAt
	}
	if t.DeliveredAt != nil {
		b.DeliveredAt = t.DeliveredAt
	}
	if t.AcceptedAt != nil {
		b.AcceptedAt = t.AcceptedAt
	}
	if t.ClearAutoRelease {
		b.AutoReleaseAt = nil
	} else if t.AutoReleaseAt != nil {
		b.AutoReleaseAt = t.AutoReleaseAt
	}
	if t.SettledAt != nil {
		b.SettledAt = t.SettledAt
	}
	b.UpdatedAt = t.UpdatedAt
	return b
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
