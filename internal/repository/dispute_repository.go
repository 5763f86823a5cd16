package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository/common"
)

type DisputeRepository struct {
	db sqlx.ExtContext
}

func NewDisputeRepository(db sqlx.ExtContext) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create опирается на частичный уникальный индекс disputes(booking_id) WHERE status = 'open'.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO disputes (id, booking_id, opened_by, opener_role, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.BookingID, d.OpenedBy, d.OpenerRole, d.Reason, d.Status, d.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("dispute repository: create %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) GetOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := sqlx.GetContext(ctx, r.db, &d, `
		SELECT * FROM disputes WHERE booking_id = $1 AND status = 'open'
	`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dispute repository: get open %w", err)
	}
	return &d, nil
}

func (r *DisputeRepository) List(ctx context.Context, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := sqlx.SelectContext(ctx, r.db, &disputes, `
		SELECT * FROM disputes
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at ASC LIMIT $2 OFFSET $3
	`, status, normalizeLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("dispute repository: list %w", err)
	}
	return disputes, nil
}

func (r *DisputeRepository) Resolve(ctx context.Context, res models.DisputeResolution) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE disputes SET status = 'resolved', outcome = $2, resolver_id = $3,
			resolution_note = $4, resolved_at = $5
		WHERE id = $1 AND status = 'open'
	`, res.DisputeID, res.Outcome, res.ResolverID, res.Note, res.ResolvedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: resolve %w", err)
	}
	return common.ExpectOneRow(result)
}
