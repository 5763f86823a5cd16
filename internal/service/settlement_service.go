package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/events"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/obs"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/repository"
	"github.com/ignatzorin/creator-escrow/internal/validation"
)

// SettlementService ведёт обязательства выплат и возвратов.
// Деньги здесь не двигаются: сервис только фиксирует, кому и сколько должно уйти,
// и один раз записывает ссылку на внешнюю транзакцию.
type SettlementService struct {
	*core
}

// ObligationInput параметры обязательства, выбранные переходом.
type ObligationInput struct {
	BookingID          uuid.UUID
	Direction          valueobject.SettlementDirection
	BeneficiaryID      uuid.UUID
	BeneficiaryAddress string
	Network            string
	Gross              valueobject.Money
	Fee                valueobject.FeeRate
}

// createObligation вызывается только внутри транзакции перехода.
func (s *SettlementService) createObligation(ctx context.Context, r repository.Repos, rec *recorder, in ObligationInput) (*models.SettlementObligation, error) {
	if !in.Direction.IsValid() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестное направление %q", in.Direction)
	}

	net := in.Gross.Net(in.Fee)
	o := &models.SettlementObligation{
		ID:                 uuid.New(),
		BookingID:          in.BookingID,
		Direction:          in.Direction,
		BeneficiaryID:      in.BeneficiaryID,
		BeneficiaryAddress: in.BeneficiaryAddress,
		Network:            in.Network,
		Currency:           in.Gross.Currency,
		GrossAmount:        in.Gross.Amount,
		FeeRate:            in.Fee.Decimal,
		NetAmount:          net.Amount,
		CreatedAt:          rec.at,
	}

	if err := r.Obligations.Create(ctx, o); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Wrap(err, apperror.ErrCodeObligationAlreadyExists, "обязательство по бронированию уже создано")
		}
		return nil, translate(err)
	}

	rec.events = append(rec.events, events.Event{
		Type:       events.TypeObligationCreated,
		BookingID:  &o.BookingID,
		Payload:    o,
		At:         rec.at,
		Recipients: []uuid.UUID{o.BeneficiaryID},
	})
	return o, nil
}

// settle создаёт обязательство для бронирования в итоговом состоянии.
// Выплата идёт на адрес креатора в сети бронирования, возврат на адрес клиента,
// а если его нет, на адрес отправителя подтверждённого платежа.
func (s *SettlementService) settle(
	ctx context.Context,
	r repository.Repos,
	rec *recorder,
	b *models.Booking,
	direction valueobject.SettlementDirection,
	fee valueobject.FeeRate,
) (*models.SettlementObligation, error) {
	beneficiary := b.CreatorID
	if direction == valueobject.SettlementRefund {
		beneficiary = b.ClientID
	}

	address, err := r.Directory.PayoutAddress(ctx, beneficiary, b.Network)
	if err != nil && !errors.Is(err, repository.ErrAddressNotFound) {
		return nil, translate(err)
	}
	if address == "" && direction == valueobject.SettlementRefund {
		p, err := r.Payments.GetVerifiedForBooking(ctx, b.ID)
		switch {
		case err == nil && p.SenderAddress != nil:
			address = *p.SenderAddress
		case err != nil && !errors.Is(err, repository.ErrPaymentNotFound):
			return nil, translate(err)
		}
	}
	if address == "" {
		logger.WithFields(logrus.Fields{
			"booking_id":     b.ID,
			"direction":      direction,
			"beneficiary_id": beneficiary,
			"network":        b.Network,
		}).Warn("no beneficiary address registered, obligation created without address")
	}

	return s.createObligation(ctx, r, rec, ObligationInput{
		BookingID:          b.ID,
		Direction:          direction,
		BeneficiaryID:      beneficiary,
		BeneficiaryAddress: address,
		Network:            b.Network,
		Gross:              b.Money(),
		Fee:                fee,
	})
}

// ExecutionInput отметка администратора о проведённой вне платформы транзакции.
// BeneficiaryAddress обязателен, если у обязательства адреса нет; иначе пустой
// или совпадающий с сохранённым. ExecutedAt nil значит сейчас.
type ExecutionInput struct {
	TxRef              string
	BeneficiaryAddress string
	ExecutedAt         *time.Time
}

// RecordExecution фиксирует внешнюю транзакцию ровно один раз.
func (s *SettlementService) RecordExecution(
	ctx context.Context,
	actor models.Actor,
	obligationID uuid.UUID,
	in ExecutionInput,
) (obligation *models.SettlementObligation, err error) {
	ctx, span := obs.StartSpan(ctx, "settlement.RecordExecution", obs.ObligationID(obligationID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionSettlementExecute); err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		o, err := r.Obligations.GetByID(ctx, obligationID)
		if err != nil {
			return translate(err)
		}
		if o.IsExecuted() {
			return apperror.New(apperror.ErrCodeAlreadyExecuted, "обязательство уже исполнено")
		}

		ref, err := validation.NormalizeTxRef(o.Network, in.TxRef)
		if err != nil {
			return errValidation(err)
		}
		address, err := executionAddress(o, in.BeneficiaryAddress)
		if err != nil {
			return err
		}

		at := rec.at
		if in.ExecutedAt != nil {
			if in.ExecutedAt.After(rec.at) {
				return apperror.New(apperror.ErrCodeValidation, "время исполнения не может быть в будущем")
			}
			at = in.ExecutedAt.UTC()
		}

		err = r.Obligations.MarkExecuted(ctx, models.ObligationExecution{
			ObligationID:       o.ID,
			TxRef:              ref,
			BeneficiaryAddress: address,
			ExecutedBy:         actor.ID,
			ExecutedAt:         at,
		})
		switch {
		case errors.Is(err, repository.ErrStaleState):
			return apperror.Wrap(err, apperror.ErrCodeAlreadyExecuted, "обязательство уже исполнено")
		case errors.Is(err, repository.ErrDuplicate):
			return apperror.Wrap(err, apperror.ErrCodeConflict, "транзакция уже использована для другого обязательства")
		case err != nil:
			return translate(err)
		}

		o.TxRef = &ref
		o.BeneficiaryAddress = address
		o.ExecutedBy = &actor.ID
		o.ExecutedAt = &at
		obligation = o

		rec.events = append(rec.events, events.Event{
			Type:       events.TypeObligationExecuted,
			BookingID:  &o.BookingID,
			Payload:    o,
			At:         rec.at,
			Recipients: []uuid.UUID{o.BeneficiaryID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"obligation_id": obligation.ID,
		"booking_id":    obligation.BookingID,
		"direction":     obligation.Direction,
		"actor_id":      actor.ID,
	}).Info("settlement obligation executed")
	return obligation, nil
}

// executionAddress адрес, на который ушла транзакция. Пустой адрес обязательства
// заполняется при исполнении, сохранённый переписать нельзя.
func executionAddress(o *models.SettlementObligation, supplied string) (string, error) {
	supplied = strings.TrimSpace(supplied)
	if o.BeneficiaryAddress != "" {
		if supplied != "" && !strings.EqualFold(supplied, o.BeneficiaryAddress) {
			return "", apperror.New(apperror.ErrCodeValidation, "у обязательства уже есть адрес получателя")
		}
		return o.BeneficiaryAddress, nil
	}
	if supplied == "" {
		return "", apperror.New(apperror.ErrCodeValidation, "у обязательства нет адреса получателя, укажите beneficiary_address")
	}
	if err := validation.ValidateAddress(o.Network, supplied); err != nil {
		return "", errValidation(err)
	}
	return supplied, nil
}

// ListPending обязательства, ожидающие исполнения.
func (s *SettlementService) ListPending(ctx context.Context, actor models.Actor, direction *valueobject.SettlementDirection, limit, offset int) ([]models.SettlementObligation, error) {
	executed := false
	return s.List(ctx, actor, models.ObligationFilter{Direction: direction, Executed: &executed, Limit: limit, Offset: offset})
}

// ListExecuted исполненные обязательства.
func (s *SettlementService) ListExecuted(ctx context.Context, actor models.Actor, direction *valueobject.SettlementDirection, limit, offset int) ([]models.SettlementObligation, error) {
	executed := true
	return s.List(ctx, actor, models.ObligationFilter{Direction: direction, Executed: &executed, Limit: limit, Offset: offset})
}

func (s *SettlementService) List(ctx context.Context, actor models.Actor, filter models.ObligationFilter) ([]models.SettlementObligation, error) {
	if err := s.policy.Require(ctx, actor, ActionLedgerRead); err != nil {
		return nil, err
	}
	list, err := s.store.Repos().Obligations.List(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}
