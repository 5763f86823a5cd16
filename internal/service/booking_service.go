package service

import (
	"context"
	"errors"
	"strings"
	"time"

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

// BookingService жизненный цикл бронирования.
type BookingService struct {
	*core
	settlement *SettlementService
}

// CheckoutInput оформление бронирования вместе с первым заявленным платежом.
type CheckoutInput struct {
	ServiceID     uuid.UUID
	Network       string
	TxRef         string
	SenderAddress string
	// Amount заявленная сумма перевода; пусто значит цена услуги.
	Amount string
}

// CheckoutResult созданное бронирование и его первый платёж.
type CheckoutResult struct {
	Booking *models.Booking       `json:"booking"`
	Payment *models.PaymentRecord `json:"payment"`
}

// ArtifactFile файл, уже сохранённый в хранилище артефактов.
type ArtifactFile struct {
	URI      string
	MimeType string
	Size     int64
}

// DeliveryInput подтверждение сдачи работы.
type DeliveryInput struct {
	Links []string
	Files []ArtifactFile
}

// BookingDetails бронирование с артефактами, платежами и обязательством.
type BookingDetails struct {
	Booking    *models.Booking              `json:"booking"`
	Artifacts  []models.DeliveryArtifact    `json:"artifacts"`
	Payments   []models.PaymentRecord       `json:"payments"`
	Obligation *models.SettlementObligation `json:"obligation,omitempty"`
}

// CreateBooking оформляет бронирование: цена услуги фиксируется,
// бронирование и pending-платёж создаются одной транзакцией.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, in CheckoutInput) (result *CheckoutResult, err error) {
	ctx, span := obs.StartSpan(ctx, "booking.Create", obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionBookingCreate); err != nil {
		return nil, err
	}

	network := strings.ToLower(strings.TrimSpace(in.Network))
	if err := validation.ValidateNetwork(network, s.rules.Networks); err != nil {
		return nil, errValidation(err)
	}
	txRef, err := validation.NormalizeTxRef(network, in.TxRef)
	if err != nil {
		return nil, errValidation(err)
	}
	sender, err := optionalAddress(network, in.SenderAddress)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		svc, err := r.Directory.ServiceSnapshot(ctx, in.ServiceID)
		if err != nil {
			return translate(err)
		}
		if !svc.IsActive {
			return apperror.New(apperror.ErrCodeNotEligible, "услуга недоступна для бронирования")
		}
		if svc.CreatorID == actor.ID {
			return apperror.New(apperror.ErrCodeForbidden, "нельзя забронировать собственную услугу")
		}

		amount, err := amountOrDefault(in.Amount, svc.Price)
		if err != nil {
			return err
		}

		b := &models.Booking{
			ID:           uuid.New(),
			ClientID:     actor.ID,
			CreatorID:    svc.CreatorID,
			ServiceID:    svc.ServiceID,
			Amount:       svc.Price,
			Currency:     svc.Currency,
			Network:      network,
			DeliveryDays: svc.DeliveryDays,
			Status:       valueobject.BookingStatusPendingPayment,
			CreatedAt:    rec.at,
			UpdatedAt:    rec.at,
		}
		if err := r.Bookings.Create(ctx, b); err != nil {
			return translate(err)
		}

		p := &models.PaymentRecord{
			ID:            uuid.New(),
			PayerID:       actor.ID,
			Purpose:       valueobject.PaymentPurposeServiceBooking,
			BookingID:     &b.ID,
			Network:       network,
			Amount:        amount,
			Currency:      svc.Currency,
			TxRef:         txRef,
			SenderAddress: sender,
			Status:        valueobject.PaymentStatusPending,
			CreatedAt:     rec.at,
		}
		if err := r.Payments.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Wrap(err, apperror.ErrCodeConflict, "эта транзакция уже заявлена")
			}
			return translate(err)
		}

		rec.emit(events.TypeBookingCreated, b, b)
		rec.emit(events.TypePaymentSubmitted, b, p)
		result = &CheckoutResult{Booking: b, Payment: p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"booking_id": result.Booking.ID,
		"service_id": result.Booking.ServiceID,
		"actor_id":   actor.ID,
		"amount":     result.Booking.Amount.String(),
	}).Info("booking created")
	return result, nil
}

// ConfirmPayment переводит pending_payment → paid, только если у бронирования
// уже есть подтверждённый платёж.
func (s *BookingService) ConfirmPayment(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error) {
	if err := s.policy.Require(ctx, actor, ActionPaymentVerify); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, "booking.confirm_payment", func() (out *models.Booking, err error) {
		err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, bookingID)
			if err != nil {
				return translate(err)
			}
			if b.Status != valueobject.BookingStatusPendingPayment {
				return errInvalidTransition(b.Status, valueobject.BookingStatusPaid)
			}
			p, err := r.Payments.GetVerifiedForBooking(ctx, b.ID)
			if errors.Is(err, repository.ErrPaymentNotFound) {
				return apperror.New(apperror.ErrCodePaymentNotVerified, "у бронирования нет подтверждённого платежа")
			}
			if err != nil {
				return translate(err)
			}
			out, err = s.transition(ctx, r, rec, b, valueobject.BookingStatusPaid, actor, "", func(t *models.BookingTransition) {
				t.PaidAt = p.ResolvedAt
			})
			return err
		})
		return out, err
	})
}

// StartWork отметка креатора о начале работы.
func (s *BookingService) StartWork(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*models.Booking, error) {
	return s.simpleTransition(ctx, actor, bookingID, ActionBookingStart, "booking.start", valueobject.RoleCreator, valueobject.BookingStatusInProgress, "", nil)
}

// Deliver креатор прикладывает результат; запускается таймер автовыпуска.
func (s *BookingService) Deliver(ctx context.Context, actor models.Actor, bookingID uuid.UUID, in DeliveryInput) (out *models.Booking, err error) {
	ctx, span := obs.StartSpan(ctx, "booking.Deliver", obs.BookingID(bookingID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionBookingDeliver); err != nil {
		return nil, err
	}
	if len(in.Links)+len(in.Files) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "нужен хотя бы один артефакт: ссылка или файл")
	}
	if len(in.Links) > validation.MaxArtifactLinks {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "не больше %d ссылок", validation.MaxArtifactLinks)
	}
	for _, link := range in.Links {
		if err := validation.ValidateArtifactLink(link); err != nil {
			return nil, errValidation(err)
		}
	}

	return retryOnConflict(ctx, "booking.deliver", func() (out *models.Booking, err error) {
		err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, bookingID)
			if err != nil {
				return translate(err)
			}
			if err := requireOwner(actor, b, valueobject.RoleCreator); err != nil {
				return err
			}

			deadline := rec.at.Add(s.rules.AutoReleaseDelay)
			out, err = s.transition(ctx, r, rec, b, valueobject.BookingStatusDelivered, actor, "", func(t *models.BookingTransition) {
				t.DeliveredAt = timePtr(rec.at)
				t.AutoReleaseAt = &deadline
			})
			if err != nil {
				return err
			}

			return r.Bookings.AddArtifacts(ctx, buildArtifacts(b.ID, in, rec.at))
		})
		return out, err
	})
}

// AuthorizeDelivery проверяет до приёма файлов, что сдать работу может именно этот
// креатор и бронирование сейчас в работе. Deliver повторяет проверку в транзакции.
func (s *BookingService) AuthorizeDelivery(ctx context.Context, actor models.Actor, bookingID uuid.UUID) error {
	if err := s.policy.Require(ctx, actor, ActionBookingDeliver); err != nil {
		return err
	}
	b, err := s.store.Repos().Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return translate(err)
	}
	if err := requireOwner(actor, b, valueobject.RoleCreator); err != nil {
		return err
	}
	if !b.Status.CanTransitionTo(valueobject.BookingStatusDelivered) {
		return errInvalidTransition(b.Status, valueobject.BookingStatusDelivered)
	}
	return nil
}

func buildArtifacts(bookingID uuid.UUID, in DeliveryInput, at time.Time) []models.DeliveryArtifact {
	artifacts := make([]models.DeliveryArtifact, 0, len(in.Links)+len(in.Files))
	for _, link := range in.Links {
		artifacts = append(artifacts, models.DeliveryArtifact{
			ID:        uuid.New(),
			BookingID: bookingID,
			Kind:      models.ArtifactKindLink,
			URI:       strings.TrimSpace(link),
			CreatedAt: at,
		})
	}
	for _, f := range in.Files {
		mime := f.MimeType
		size := f.Size
		artifacts = append(artifacts, models.DeliveryArtifact{
			ID:        uuid.New(),
			BookingID: bookingID,
			Kind:      models.ArtifactKindFile,
			URI:       f.URI,
			MimeType:  &mime,
			SizeBytes: &size,
			CreatedAt: at,
		})
	}
	return artifacts
}

// Accept клиент принимает работу; создаётся обязательство выплаты креатору.
func (s *BookingService) Accept(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (out *models.Booking, err error) {
	ctx, span := obs.StartSpan(ctx, "booking.Accept", obs.BookingID(bookingID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionBookingAccept); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, "booking.accept", func() (out *models.Booking, err error) {
		err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, bookingID)
			if err != nil {
				return translate(err)
			}
			if err := requireOwner(actor, b, valueobject.RoleClient); err != nil {
				return err
			}

			out, err = s.transition(ctx, r, rec, b, valueobject.BookingStatusAccepted, actor, "", func(t *models.BookingTransition) {
				t.AcceptedAt = timePtr(rec.at)
				t.SettledAt = timePtr(rec.at)
				t.ClearAutoRelease = true
			})
			if err != nil {
				return err
			}
			_, err = s.settlement.settle(ctx, r, rec, out, valueobject.SettlementPayout, s.rules.PayoutFee)
			return err
		})
		return out, err
	})
}

// RejectByCreator креатор отказывается от сданной работы, клиенту оформляется возврат.
func (s *BookingService) RejectByCreator(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (out *models.Booking, err error) {
	ctx, span := obs.StartSpan(ctx, "booking.RejectByCreator", obs.BookingID(bookingID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionBookingReject); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateOptionalText("reason", reason, validation.MaxRejectReasonLength); err != nil {
		return nil, errValidation(err)
	}

	return retryOnConflict(ctx, "booking.reject", func() (out *models.Booking, err error) {
		err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, bookingID)
			if err != nil {
				return translate(err)
			}
			if err := requireOwner(actor, b, valueobject.RoleCreator); err != nil {
				return err
			}

			rejected, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusRejectedByCreator, actor, reason, func(t *models.BookingTransition) {
				t.ClearAutoRelease = true
			})
			if err != nil {
				return err
			}
			out, err = s.transition(ctx, r, rec, rejected, valueobject.BookingStatusRefunded, actor, reason, func(t *models.BookingTransition) {
				t.SettledAt = timePtr(rec.at)
			})
			if err != nil {
				return err
			}
			_, err = s.settlement.settle(ctx, r, rec, out, valueobject.SettlementRefund, s.rules.CreatorRejectFee)
			return err
		})
		return out, err
	})
}

// errSkip бронирование больше не подходит для автовыпуска.
var errSkip = errors.New("skip")

// SweepAutoRelease выпускает средства по сданным бронированиям с истёкшим дедлайном.
// Каждое бронирование идёт своей транзакцией; проигранные гонки с ручным
// принятием или спором пропускаются.
func (s *BookingService) SweepAutoRelease(ctx context.Context, now time.Time, limit int) (released int, err error) {
	ctx, span := obs.StartSpan(ctx, "booking.SweepAutoRelease")
	defer func() { obs.End(span, err) }()

	due, err := s.store.Repos().Bookings.ListDueForAutoRelease(ctx, now, limit)
	if err != nil {
		return 0, translate(err)
	}

	var errs []error
	for _, candidate := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, candidate.ID)
			if err != nil {
				return translate(err)
			}
			if b.Status != valueobject.BookingStatusDelivered || b.AutoReleaseAt == nil || b.AutoReleaseAt.After(now) {
				return errSkip
			}
			if _, err := r.Disputes.GetOpenByBooking(ctx, b.ID); err == nil {
				return errSkip
			} else if !errors.Is(err, repository.ErrDisputeNotFound) {
				return translate(err)
			}

			out, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusAutoReleased, models.SystemActor, "auto-release deadline elapsed", func(t *models.BookingTransition) {
				t.SettledAt = timePtr(rec.at)
				t.ClearAutoRelease = true
			})
			if err != nil {
				return err
			}
			_, err = s.settlement.settle(ctx, r, rec, out, valueobject.SettlementPayout, s.rules.PayoutFee)
			return err
		})

		switch {
		case err == nil:
			released++
		case errors.Is(err, errSkip),
			apperror.HasCode(err, apperror.ErrCodeInvalidTransition),
			apperror.HasCode(err, apperror.ErrCodeConcurrentModification),
			apperror.HasCode(err, apperror.ErrCodeObligationAlreadyExists):
			logger.WithFields(logrus.Fields{
				"booking_id": candidate.ID,
				"operation":  "booking.auto_release",
			}).Debug("auto-release skipped")
		default:
			errs = append(errs, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"candidates": len(due),
		"released":   released,
	}).Info("auto-release sweep finished")
	return released, errors.Join(errs...)
}

// Get бронирование для участника или администратора.
func (s *BookingService) Get(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (*BookingDetails, error) {
	repos := s.store.Repos()
	b, err := repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.canView(ctx, actor, b); err != nil {
		return nil, err
	}

	artifacts, err := repos.Bookings.ListArtifacts(ctx, b.ID)
	if err != nil {
		return nil, translate(err)
	}
	payments, err := repos.Payments.ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, translate(err)
	}
	details := &BookingDetails{Booking: b, Artifacts: artifacts, Payments: payments}

	o, err := repos.Obligations.GetByBooking(ctx, b.ID)
	switch {
	case err == nil:
		details.Obligation = o
	case !errors.Is(err, repository.ErrObligationNotFound):
		return nil, translate(err)
	}
	return details, nil
}

// ListMine бронирования, где актор клиент или креатор.
func (s *BookingService) ListMine(ctx context.Context, actor models.Actor, status *valueobject.BookingStatus, limit, offset int) ([]models.Booking, error) {
	list, err := s.store.Repos().Bookings.ListByParticipant(ctx, models.BookingFilter{
		UserID: actor.ID,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// History журнал переходов бронирования.
func (s *BookingService) History(ctx context.Context, actor models.Actor, bookingID uuid.UUID) ([]models.BookingHistory, error) {
	repos := s.store.Repos()
	b, err := repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.canView(ctx, actor, b); err != nil {
		return nil, err
	}
	history, err := repos.Bookings.ListHistory(ctx, bookingID)
	if err != nil {
		return nil, translate(err)
	}
	return history, nil
}

func (s *BookingService) simpleTransition(
	ctx context.Context,
	actor models.Actor,
	bookingID uuid.UUID,
	action, op string,
	role valueobject.Role,
	to valueobject.BookingStatus,
	reason string,
	mutate func(t *models.BookingTransition),
) (*models.Booking, error) {
	if err := s.policy.Require(ctx, actor, action); err != nil {
		return nil, err
	}

	return retryOnConflict(ctx, op, func() (out *models.Booking, err error) {
		err = s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
			b, err := r.Bookings.GetByID(ctx, bookingID)
			if err != nil {
				return translate(err)
			}
			if err := requireOwner(actor, b, role); err != nil {
				return err
			}
			out, err = s.transition(ctx, r, rec, b, to, actor, reason, mutate)
			return err
		})
		return out, err
	})
}

func optionalAddress(network, address string) (*string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	if err := validation.ValidateAddress(network, address); err != nil {
		return nil, errValidation(err)
	}
	return &address, nil
}

// amountOrDefault заявленная сумма или значение по умолчанию.
func amountOrDefault(raw string, fallback decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	amount, err := valueobject.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, errValidation(err)
	}
	return amount, nil
}
