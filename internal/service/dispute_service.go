package service

import (
	"context"
	"errors"
	"strings"

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

type DisputeService struct {
	*core
	settlement *SettlementService
}

// DisputeInfo спор вместе с текущим состоянием бронирования.
type DisputeInfo struct {
	Dispute *models.Dispute `json:"dispute"`
	Booking *models.Booking `json:"booking"`
}

// OpenDispute открывает спор по бронированию и снимает таймер автовыпуска.
func (s *DisputeService) OpenDispute(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (dispute *models.Dispute, err error) {
	ctx, span := obs.StartSpan(ctx, "dispute.Open", obs.BookingID(bookingID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionDisputeOpen); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if err := validation.ValidateDisputeReason(reason); err != nil {
		return nil, errValidation(err)
	}

	return retryOnConflict(ctx, "dispute.open", func() (*models.Dispute, error) {
		return s.open(ctx, actor, bookingID, reason)
	})
}

func (s *DisputeService) open(ctx context.Context, actor models.Actor, bookingID uuid.UUID, reason string) (*models.Dispute, error) {
	var dispute *models.Dispute
	err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		b, err := r.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return translate(err)
		}
		if err := requireOwner(actor, b, actor.Role); err != nil {
			return err
		}
		if err := s.checkEligible(b, rec); err != nil {
			return err
		}

		if _, err := r.Disputes.GetOpenByBooking(ctx, b.ID); err == nil {
			return apperror.New(apperror.ErrCodeNotEligible, "по бронированию уже открыт спор")
		} else if !errors.Is(err, repository.ErrDisputeNotFound) {
			return translate(err)
		}

		d := &models.Dispute{
			ID:         uuid.New(),
			BookingID:  b.ID,
			OpenedBy:   actor.ID,
			OpenerRole: actor.Role,
			Reason:     reason,
			Status:     valueobject.DisputeStatusOpen,
			CreatedAt:  rec.at,
		}
		if err := r.Disputes.Create(ctx, d); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperror.Wrap(err, apperror.ErrCodeNotEligible, "по бронированию уже открыт спор")
			}
			return translate(err)
		}

		if _, err := s.transition(ctx, r, rec, b, valueobject.BookingStatusDisputed, actor, reason, func(t *models.BookingTransition) {
			t.ClearAutoRelease = true
		}); err != nil {
			return err
		}

		rec.emit(events.TypeDisputeOpened, b, d)
		dispute = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// checkEligible спор открывается из delivered в окне от сдачи работы
// или из paid/in_progress в окне от оплаты.
func (s *DisputeService) checkEligible(b *models.Booking, rec *recorder) error {
	switch b.Status {
	case valueobject.BookingStatusDelivered:
		if b.DeliveredAt == nil {
			return apperror.New(apperror.ErrCodeNotEligible, "нет времени сдачи работы")
		}
		if rec.at.Sub(*b.DeliveredAt) > s.rules.DisputeWindow {
			return apperror.Newf(apperror.ErrCodeNotEligible, "окно спора %s после сдачи работы истекло", s.rules.DisputeWindow)
		}
	case valueobject.BookingStatusPaid, valueobject.BookingStatusInProgress:
		if b.PaidAt == nil {
			return apperror.New(apperror.ErrCodeNotEligible, "нет времени оплаты")
		}
		if rec.at.Sub(*b.PaidAt) > s.rules.DisputeWindow {
			return apperror.Newf(apperror.ErrCodeNotEligible, "окно спора %s после оплаты истекло", s.rules.DisputeWindow)
		}
	default:
		return apperror.Newf(apperror.ErrCodeNotEligible, "в статусе %s спор открыть нельзя", b.Status)
	}
	return nil
}

// ResolveDispute решение администратора: release ведёт к accepted и выплате,
// refund к refunded и возврату. Повторное решение даёт AlreadyResolved.
func (s *DisputeService) ResolveDispute(
	ctx context.Context,
	actor models.Actor,
	disputeID uuid.UUID,
	outcome valueobject.DisputeOutcome,
	note string,
) (info *DisputeInfo, err error) {
	ctx, span := obs.StartSpan(ctx, "dispute.Resolve", obs.DisputeID(disputeID), obs.ActorID(actor.ID))
	defer func() { obs.End(span, err) }()

	if err := s.policy.Require(ctx, actor, ActionDisputeResolve); err != nil {
		return nil, err
	}
	if outcome != valueobject.DisputeOutcomeRefund && outcome != valueobject.DisputeOutcomeRelease {
		return nil, apperror.New(apperror.ErrCodeValidation, "решение должно быть refund или release")
	}
	note = strings.TrimSpace(note)
	if err := validation.ValidateOptionalText("note", note, validation.MaxResolutionNoteLength); err != nil {
		return nil, errValidation(err)
	}

	info, err = retryOnConflict(ctx, "dispute.resolve", func() (*DisputeInfo, error) {
		return s.resolve(ctx, actor, disputeID, outcome, note)
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"dispute_id": disputeID,
		"booking_id": info.Booking.ID,
		"outcome":    outcome,
		"actor_id":   actor.ID,
	}).Info("dispute resolved")
	return info, nil
}

func (s *DisputeService) resolve(
	ctx context.Context,
	actor models.Actor,
	disputeID uuid.UUID,
	outcome valueobject.DisputeOutcome,
	note string,
) (*DisputeInfo, error) {
	var info *DisputeInfo
	err := s.inTx(ctx, func(r repository.Repos, rec *recorder) error {
		d, err := r.Disputes.GetByID(ctx, disputeID)
		if err != nil {
			return translate(err)
		}
		if d.Status != valueobject.DisputeStatusOpen {
			return apperror.New(apperror.ErrCodeAlreadyResolved, "спор уже решён")
		}

		if err := r.Disputes.Resolve(ctx, models.DisputeResolution{
			DisputeID:  d.ID,
			ResolverID: actor.ID,
			Outcome:    outcome,
			Note:       note,
			ResolvedAt: rec.at,
		}); err != nil {
			return translate(err)
		}

		b, err := r.Bookings.GetByID(ctx, d.BookingID)
		if err != nil {
			return translate(err)
		}

		to := valueobject.BookingStatusRefunded
		direction := valueobject.SettlementRefund
		fee := s.rules.DisputeRefundFee
		if outcome == valueobject.DisputeOutcomeRelease {
			to = valueobject.BookingStatusAccepted
			direction = valueobject.SettlementPayout
			fee = s.rules.PayoutFee
		}

		settled, err := s.transition(ctx, r, rec, b, to, actor, note, func(t *models.BookingTransition) {
			t.SettledAt = timePtr(rec.at)
			if to == valueobject.BookingStatusAccepted {
				t.AcceptedAt = timePtr(rec.at)
			}
		})
		if err != nil {
			return err
		}
		if _, err := s.settlement.settle(ctx, r, rec, settled, direction, fee); err != nil {
			return err
		}

		d.Status = valueobject.DisputeStatusResolved
		d.Outcome = &outcome
		d.ResolverID = &actor.ID
		d.ResolutionNote = optionalString(note)
		d.ResolvedAt = timePtr(rec.at)

		rec.emit(events.TypeDisputeResolved, settled, d)
		info = &DisputeInfo{Dispute: d, Booking: settled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// List споры для администратора.
func (s *DisputeService) List(ctx context.Context, actor models.Actor, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error) {
	if err := s.policy.Require(ctx, actor, ActionLedgerRead); err != nil {
		return nil, err
	}
	list, err := s.store.Repos().Disputes.List(ctx, status, limit, offset)
	if err != nil {
		return nil, translate(err)
	}
	return list, nil
}

// Get спор для участника бронирования или администратора.
func (s *DisputeService) Get(ctx context.Context, actor models.Actor, disputeID uuid.UUID) (*DisputeInfo, error) {
	repos := s.store.Repos()
	d, err := repos.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, translate(err)
	}
	b, err := repos.Bookings.GetByID(ctx, d.BookingID)
	if err != nil {
		return nil, translate(err)
	}
	if err := s.canView(ctx, actor, b); err != nil {
		return nil, err
	}
	return &DisputeInfo{Dispute: d, Booking: b}, nil
}
