package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

// PaymentRecord заявленный входящий перевод. Меняется один раз при проверке.
type PaymentRecord struct {
	ID            uuid.UUID                  `db:"id" json:"id"`
	PayerID       uuid.UUID                  `db:"payer_id" json:"payer_id"`
	Purpose       valueobject.PaymentPurpose `db:"purpose" json:"purpose"`
	BookingID     *uuid.UUID                 `db:"booking_id" json:"booking_id,omitempty"`
	Tier          *string                    `db:"tier" json:"tier,omitempty"`
	Network       string                     `db:"network" json:"network"`
	Amount        decimal.Decimal            `db:"amount" json:"amount"`
	Currency      string                     `db:"currency" json:"currency"`
	TxRef         string                     `db:"tx_ref" json:"tx_ref"`
	SenderAddress *string                    `db:"sender_address" json:"sender_address,omitempty"`
	Status        valueobject.PaymentStatus  `db:"status" json:"status"`
	VerifierID    *uuid.UUID                 `db:"verifier_id" json:"verifier_id,omitempty"`
	ResolvedAt    *time.Time                 `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt     time.Time                  `db:"created_at" json:"created_at"`
}

// PaymentFilter фильтр админского списка платежей.
type PaymentFilter struct {
	Status  *valueobject.PaymentStatus
	Purpose *valueobject.PaymentPurpose
	Limit   int
	Offset  int
}

// CreatorTierGrant выданный по подтверждённому платежу уровень креатора.
type CreatorTierGrant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	PaymentID uuid.UUID `db:"payment_id" json:"payment_id"`
	Tier      string    `db:"tier" json:"tier"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
