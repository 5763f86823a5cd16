package valueobject

import "github.com/ignatzorin/creator-escrow/internal/pkg/apperror"

type BookingStatus string

const (
	BookingStatusPendingPayment    BookingStatus = "pending_payment"
	BookingStatusPaymentRejected   BookingStatus = "payment_rejected"
	BookingStatusPaid              BookingStatus = "paid"
	BookingStatusInProgress        BookingStatus = "in_progress"
	BookingStatusDelivered         BookingStatus = "delivered"
	BookingStatusAccepted          BookingStatus = "accepted"
	BookingStatusDisputed          BookingStatus = "disputed"
	BookingStatusAutoReleased      BookingStatus = "auto_released"
	BookingStatusRejectedByCreator BookingStatus = "rejected_by_creator"
	BookingStatusRefunded          BookingStatus = "refunded"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPendingPayment:    {BookingStatusPaid, BookingStatusPaymentRejected},
	BookingStatusPaymentRejected:   {BookingStatusPendingPayment},
	BookingStatusPaid:              {BookingStatusInProgress, BookingStatusDelivered, BookingStatusDisputed},
	BookingStatusInProgress:        {BookingStatusDelivered, BookingStatusDisputed},
	BookingStatusDelivered:         {BookingStatusAccepted, BookingStatusDisputed, BookingStatusAutoReleased, BookingStatusRejectedByCreator},
	BookingStatusRejectedByCreator: {BookingStatusRefunded},
	BookingStatusDisputed:          {BookingStatusAccepted, BookingStatusRefunded},
	BookingStatusAccepted:          {},
	BookingStatusAutoReleased:      {},
	BookingStatusRefunded:          {},
}

func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(newStatus BookingStatus) bool {
	allowed, ok := bookingTransitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal: из статуса нет исходящих переходов.
func (s BookingStatus) IsTerminal() bool {
	allowed, ok := bookingTransitions[s]
	return ok && len(allowed) == 0
}

// IsFunded: по бронированию есть подтверждённая оплата.
func (s BookingStatus) IsFunded() bool {
	switch s {
	case BookingStatusPendingPayment, BookingStatusPaymentRejected:
		return false
	}
	return s.IsValid()
}

func NewBookingStatus(status string) (BookingStatus, error) {
	s := BookingStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус бронирования")
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusVerified, PaymentStatusRejected:
		return true
	}
	return false
}

// NewPaymentDecision принимает только итоговые решения проверки.
func NewPaymentDecision(decision string) (PaymentStatus, error) {
	s := PaymentStatus(decision)
	if s != PaymentStatusVerified && s != PaymentStatusRejected {
		return "", apperror.New(apperror.ErrCodeValidation, "решение должно быть verified или rejected")
	}
	return s, nil
}

type PaymentPurpose string

const (
	PaymentPurposeServiceBooking PaymentPurpose = "service_booking"
	PaymentPurposeCreatorTier    PaymentPurpose = "creator_tier"
)

func (p PaymentPurpose) IsValid() bool {
	return p == PaymentPurposeServiceBooking || p == PaymentPurposeCreatorTier
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
)

type DisputeOutcome string

const (
	DisputeOutcomeRefund  DisputeOutcome = "refund"
	DisputeOutcomeRelease DisputeOutcome = "release"
)

func NewDisputeOutcome(outcome string) (DisputeOutcome, error) {
	o := DisputeOutcome(outcome)
	if o != DisputeOutcomeRefund && o != DisputeOutcomeRelease {
		return "", apperror.New(apperror.ErrCodeValidation, "исход спора должен быть refund или release")
	}
	return o, nil
}

type Role string

const (
	RoleClient  Role = "client"
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleClient, RoleCreator, RoleAdmin:
		return true
	}
	return false
}

type SettlementDirection string

const (
	SettlementPayout SettlementDirection = "payout"
	SettlementRefund SettlementDirection = "refund"
)

func (d SettlementDirection) IsValid() bool {
	return d == SettlementPayout || d == SettlementRefund
}
