package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
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

// PaymentService журнал заявленных платежей. Цепочка не проверяется:
// сумма и ссылка на транзакцию это заявление плательщика, решение принимает администратор.
type PaymentService struct {
	*core
}

type SubmitPaymentInput struct {
	Purpose       valueobject.PaymentPurpose
	BookingID     *uuid.UUID
	Tier          string
	Network       string
	Amount        string
	Currency      string
	TxRef         string
	SenderAddress string
}

// SubmitPayment создаёт pending-запись. Для бронирования в payment_rejected
// это повторная попытка: бронирование возвращается в pending_payment.
func (s *PaymentService) SubmitPayment(ctx context.Context, actor models.Actor, in SubmitPaymentInput) (record *models.PaymentRecord, err error) {
	ctx, span := obs.StartSpan(ctx, "payment.Submit", obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionPaymentSubmit); err != nil {
		return nil, err
	}

	switch in.Purpose {
	case valueobject.PaymentPurposeServiceBooking:
		if in.BookingID == nil {
			return nil, apperror.New(apperror.ErrCodeValidation, "booking_id обязателен для оплаты бронирования")
		}
		return retryOnConflict(ctx, "payment.submit", func() (*models.PaymentRecord, error) {
			return s.submitForBooking(ctx, actor, in)
		})
	case valueobject.PaymentPurposeCreatorTier:
		return s.submitForTier(ctx, actor, in)
	default:
		return nil, apperror.Newf(apperror.ErrCodeValidation, "неизвестное назначение платежа %q", in.Purpose)
	}
}

func (s *PaymentService) submitForBooking(ctx context.Context, actor models.Actor, in SubmitPaymentInput) (*models.PaymentRecord, error) {
	var record *models.PaymentRecord
	err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		b, err := r.Bookings.GetByIDForUpdate(ctx, *in.BookingID)
		if err != nil {
			return translate(err)
		}
		if err := requireOwner(actor, b, valueobject.RoleClient); err != nil {
			return err
		}
		if n := strings.ToLower(strings.TrimSpace(in.Network)); n != "" && n != b.Network {
			return apperror.Newf(apperror.ErrCodeValidation, "платёж должен быть в сети бронирования %s", b.Network)
		}
		if b.Status != valueobject.BookingStatusPendingPayment && b.Status != valueobject.BookingStatusPaymentRejected {
			return apperror.Newf(apperror.ErrCodeBookingNotEligible, "бронирование в статусе %s не принимает платежи", b.Status)
		}

		p, err := newPaymentRecord(actor, in, b.Network, b.Amount, b.Currency, rec)
		if err != nil {
			return err
		}
		p.BookingID = &b.ID
		if err := createPayment(ctx, r, p); err != nil {
			return err
		}

		if b.Status == valueobject.BookingStatusPaymentRejected {
			if _, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusPendingPayment, actor, "payment resubmitted", nil); err != nil {
				return err
			}
		}

		rec.emit(events.TypePaymentSubmitted, b, p)
		record = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *PaymentService) submitForTier(ctx context.Context, actor models.Actor, in SubmitPaymentInput) (*models.PaymentRecord, error) {
	if actor.Role != valueobject.RoleCreator {
		return nil, apperror.New(apperror.ErrCodeForbidden, "тариф креатора оплачивает только креатор")
	}
	if in.BookingID != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, "платёж за тариф не привязывается к бронированию")
	}
	tier := strings.TrimSpace(in.Tier)
	if err := validation.ValidateNonEmpty("tier", tier); err != nil {
		return nil, errValidation(err)
	}
	network := strings.ToLower(strings.TrimSpace(in.Network))
	if err := validation.ValidateNetwork(network, s.rules.Networks); err != nil {
		return nil, errValidation(err)
	}
	if strings.TrimSpace(in.Amount) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма обязательна")
	}

	var record *models.PaymentRecord
	err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		p, err := newPaymentRecord(actor, in, network, decimal.Zero, "", rec)
		if err != nil {
			return err
		}
		p.Tier = &tier
		if err := createPayment(ctx, r, p); err != nil {
			return err
		}
		rec.emit(events.TypePaymentSubmitted, nil, p, actor.ID)
		record = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func newPaymentRecord(
	actor models.Actor,
	in SubmitPaymentInput,
	network string,
	defaultAmount decimal.Decimal,
	defaultCurrency string,
	rec *recorder,
) (*models.PaymentRecord, error) {
	txRef, err := validation.NormalizeTxRef(network, in.TxRef)
	if err != nil {
		return nil, errValidation(err)
	}
	sender, err := optionalAddress(network, in.SenderAddress)
	if err != nil {
		return nil, err
	}
	amount, err := amountOrDefault(in.Amount, defaultAmount)
	if err != nil {
		return nil, err
	}
	money, err := valueobject.NewMoney(amount, strings.ToUpper(strings.TrimSpace(in.Currency)))
	if err != nil {
		return nil, errValidation(err)
	}
	if in.Currency == "" && defaultCurrency != "" {
		money.Currency = defaultCurrency
	}

	return &models.PaymentRecord{
		ID:            uuid.New(),
		PayerID:       actor.ID,
		Purpose:       in.Purpose,
		Network:       network,
		Amount:        money.Amount,
		Currency:      money.Currency,
		TxRef:         txRef,
		SenderAddress: sender,
		Status:        valueobject.PaymentStatusPending,
		CreatedAt:     rec.at,
	}, nil
}

func createPayment(ctx context.Context, r repository.Repos, p *models.PaymentRecord) error {
	if err := r.Payments.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperror.Wrap(err, apperror.ErrCodeConflict, "эта транзакция уже заявлена")
		}
		return translate(err)
	}
	return nil
}

// VerifyPayment решение администратора по pending-записи. Подтверждение платежа
// за бронирование переводит его в paid той же транзакцией.
func (s *PaymentService) VerifyPayment(ctx context.Context, actor models.Actor, paymentID uuid.UUID, decision valueobject.PaymentStatus) (record *models.PaymentRecord, err error) {
	ctx, span := obs.StartSpan(ctx, "payment.Verify", obs.PaymentID(paymentID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionPaymentVerify); err != nil {
		return nil, err
	}
	if decision != valueobject.PaymentStatusVerified && decision != valueobject.PaymentStatusRejected {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "решение должно быть verified или rejected")
	}

	record, err = retryOnConflict(ctx, "payment.verify", func() (*models.PaymentRecord, error) {
		return s.verify(ctx, actor, paymentID, decision)
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"payment_id": record.ID,
		"decision":   decision,
		"actor_id":   actor.ID,
	}).Info("payment resolved")
	return record, nil
}

func (s *PaymentService) verify(ctx context.Context, actor models.Actor, paymentID uuid.UUID, decision valueobject.PaymentStatus) (*models.PaymentRecord, error) {
	var record *models.PaymentRecord
	err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		p, err := r.Payments.GetByID(ctx, paymentID)
		if err != nil {
			return translate(err)
		}
		if p.Status != valueobject.PaymentStatusPending {
			return apperror.Newf(apperror.ErrCodeAlreadyResolved, "платёж уже обработан: %s", p.Status)
		}

		var b *models.Booking
		if p.Purpose == valueobject.PaymentPurposeServiceBooking && p.BookingID != nil {
			b, err = r.Bookings.GetByIDForUpdate(ctx, *p.BookingID)
			if err != nil {
				return translate(err)
			}
			if decision == valueobject.PaymentStatusVerified && b.Status != valueobject.BookingStatusPendingPayment {
				return apperror.Newf(apperror.ErrCodeBookingNotEligible, "бронирование в статусе %s, подтверждать платёж нельзя", b.Status)
			}
		}

		err = r.Payments.Resolve(ctx, p.ID, decision, actor.ID, rec.at)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return apperror.Wrap(err, apperror.ErrCodeBookingNotEligible, "у бронирования уже есть подтверждённый платёж")
		case err != nil:
			return translate(err)
		}
		p.Status = decision
		p.VerifierID = &actor.ID
		p.ResolvedAt = timePtr(rec.at)

		eventType := events.TypePaymentVerified
		if decision == valueobject.PaymentStatusRejected {
			eventType = events.TypePaymentRejected
		}

		switch {
		case b != nil && decision == valueobject.PaymentStatusVerified:
			if _, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusPaid, actor, "", func(t *models.BookingTransition) {
				t.PaidAt = timePtr(rec.at)
			}); err != nil {
				return err
			}
		case b != nil && b.Status == valueobject.BookingStatusPendingPayment:
			pending, err := r.Payments.CountPendingForBooking(ctx, b.ID)
			if err != nil {
				return translate(err)
			}
			if pending == 0 {
				if _, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusPaymentRejected, actor, "payment rejected", nil); err != nil {
					return err
				}
			}
		case p.Purpose == valueobject.PaymentPurposeCreatorTier && decision == valueobject.PaymentStatusVerified:
			grant := &models.CreatorTierGrant{
				ID:        uuid.New(),
				UserID:    p.PayerID,
				PaymentID: p.ID,
				Tier:      derefString(p.Tier),
				CreatedAt: rec.at,
			}
			if err := r.Payments.GrantTier(ctx, grant); err != nil {
				return translate(err)
			}
			rec.emit(events.TypeTierGranted, nil, grant, p.PayerID)
		}

		if b != nil {
			rec.emit(eventType, b, p)
		} else {
			rec.emit(eventType, nil, p, p.PayerID)
		}
		record = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// List фильтр платежей для администратора.
func (s *PaymentService) List(ctx context.Context, actor models.Actor, filter models.PaymentFilter) ([]models.PaymentRecord, error) {
	if err := s.policy.Require(ctx, actor, ActionLedgerRead); err != nil {
		return nil, err
	}
	list, err := s.store.Repos().Payments.List(ctx, filter)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// ListByBooking платежи бронирования для участника или администратора.
func (s *PaymentService) ListByBooking(ctx context.Context, actor models.Actor, bookingID uuid.UUID) ([]models.PaymentRecord, error) {
	repos := s.store.Repos()
	b, err := repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.canView(ctx, actor, b); err != nil {
		return nil, err
	}
	list, err := repos.Payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
