package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository/common"
)

type PaymentRepository struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.PaymentRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_records (id, payer_id, purpose, booking_id, tier, network, amount, currency,
			tx_ref, sender_address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.PayerID, p.Purpose, p.BookingID, p.Tier, p.Network, p.Amount, p.Currency,
		p.TxRef, p.SenderAddress, p.Status, p.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("payment repository: create %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	return common.GetByID[models.PaymentRecord](ctx, r.db, "payment_records", id, ErrPaymentNotFound)
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := sqlx.SelectContext(ctx, r.db, &records, `
		SELECT * FROM payment_records WHERE booking_id = $1 ORDER BY created_at ASC
	`, bookingID)
	return records, err
}

func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := sqlx.SelectContext(ctx, r.db, &records, `
		SELECT * FROM payment_records
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR purpose = $2)
		ORDER BY created_at ASC LIMIT $3 OFFSET $4
	`, filter.Status, filter.Purpose, normalizeLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("payment repository: list %w", err)
	}
	return records, nil
}

func (r *PaymentRepository) CountPendingForBooking(ctx context.Context, bookingID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count, `
		SELECT COUNT(*) FROM payment_records WHERE booking_id = $1 AND status = 'pending'
	`, bookingID)
	return count, err
}

func (r *PaymentRepository) GetVerifiedForBooking(ctx context.Context, bookingID uuid.UUID) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := sqlx.GetContext(ctx, r.db, &p, `
		SELECT * FROM payment_records WHERE booking_id = $1 AND status = 'verified'
	`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payment repository: get verified %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) Resolve(ctx context.Context, id uuid.UUID, status valueobject.PaymentStatus, verifierID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payment_records SET status = $2, verifier_id = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, status, verifierID, at)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("payment repository: resolve %w", err)
	}
	return common.ExpectOneRow(res)
}

func (r *PaymentRepository) GrantTier(ctx context.Context, g *models.CreatorTierGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO creator_tier_grants (id, user_id, payment_id, tier, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, g.ID, g.UserID, g.PaymentID, g.Tier, g.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("payment repository: grant tier %w", err)
	}
	return nil
}
