package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository/common"
)

type ObligationRepository struct {
	db sqlx.ExtContext
}

func NewObligationRepository(db sqlx.ExtContext) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// Create опирается на UNIQUE(booking_id).
func (r *ObligationRepository) Create(ctx context.Context, o *models.SettlementObligation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_obligations (id, booking_id, direction, beneficiary_id, beneficiary_address,
			network, currency, gross_amount, fee_rate, net_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.BookingID, o.Direction, o.BeneficiaryID, o.BeneficiaryAddress,
		o.Network, o.Currency, o.GrossAmount, o.FeeRate, o.NetAmount, o.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("obligation repository: create %w", err)
	}
	return nil
}

func (r *ObligationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementObligation, error) {
	return common.GetByID[models.SettlementObligation](ctx, r.db, "settlement_obligations", id, ErrObligationNotFound)
}

func (r *ObligationRepository) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.SettlementObligation, error) {
	return common.GetByField[models.SettlementObligation](ctx, r.db, "settlement_obligations", "booking_id", bookingID, ErrObligationNotFound)
}

func (r *ObligationRepository) List(ctx context.Context, filter models.ObligationFilter) ([]models.SettlementObligation, error) {
	var obligations []models.SettlementObligation
	err := sqlx.SelectContext(ctx, r.db, &obligations, `
		SELECT * FROM settlement_obligations
		WHERE ($1::text IS NULL OR direction = $1)
		  AND ($2::boolean IS NULL OR (tx_ref IS NOT NULL) = $2)
		ORDER BY created_at ASC LIMIT $3 OFFSET $4
	`, filter.Direction, filter.Executed, normalizeLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("obligation repository: list %w", err)
	}
	return obligations, nil
}

// MarkExecuted: ErrDuplicate если tx_ref уже использован другим обязательством в сети.
// Без адреса получателя обязательство не исполняется, строка не меняется.
func (r *ObligationRepository) MarkExecuted(ctx context.Context, e models.ObligationExecution) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_obligations
		SET tx_ref = $2, executed_by = $3, executed_at = $4,
			beneficiary_address = CASE WHEN beneficiary_address = '' THEN $5 ELSE beneficiary_address END
		WHERE id = $1 AND tx_ref IS NULL AND (beneficiary_address <> '' OR $5 <> '')
	`, e.ObligationID, e.TxRef, e.ExecutedBy, e.ExecutedAt, e.BeneficiaryAddress)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("obligation repository: mark executed %w", err)
	}
	return common.ExpectOneRow(res)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
