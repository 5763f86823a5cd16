package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

// SettlementObligation долг платформы по бронированию: выплата креатору или возврат клиенту.
// Одна запись на бронирование, tx_ref записывается один раз.
type SettlementObligation struct {
	ID                 uuid.UUID                       `db:"id" json:"id"`
	BookingID          uuid.UUID                       `db:"booking_id" json:"booking_id"`
	Direction          valueobject.SettlementDirection `db:"direction" json:"direction"`
	BeneficiaryID      uuid.UUID                       `db:"beneficiary_id" json:"beneficiary_id"`
	BeneficiaryAddress string                          `db:"beneficiary_address" json:"beneficiary_address"`
	Network            string                          `db:"network" json:"network"`
	Currency           string                          `db:"currency" json:"currency"`
	GrossAmount        decimal.Decimal                 `db:"gross_amount" json:"gross_amount"`
	FeeRate            decimal.Decimal                 `db:"fee_rate" json:"fee_rate"`
	NetAmount          decimal.Decimal                 `db:"net_amount" json:"net_amount"`
	TxRef              *string                         `db:"tx_ref" json:"tx_ref,omitempty"`
	ExecutedBy         *uuid.UUID                      `db:"executed_by" json:"executed_by,omitempty"`
	ExecutedAt         *time.Time                      `db:"executed_at" json:"executed_at,omitempty"`
	CreatedAt          time.Time                       `db:"created_at" json:"created_at"`
}

func (o *SettlementObligation) IsExecuted() bool {
	return o.TxRef != nil
}

// ObligationFilter фильтр отчётов по обязательствам.
type ObligationFilter struct {
	Direction *valueobject.SettlementDirection
	Executed  *bool
	Limit     int
	Offset    int
}

// ObligationExecution условная отметка об исполнении.
// BeneficiaryAddress записывается, только если у обязательства адреса не было.
type ObligationExecution struct {
	ObligationID       uuid.UUID
	TxRef              string
	BeneficiaryAddress string
	ExecutedBy         uuid.UUID
	ExecutedAt         time.Time
}

// PayoutAddress зарегистрированный адрес пользователя в сети.
type PayoutAddress struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Network   string    `db:"network" json:"network"`
	Address   string    `db:"address" json:"address"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
