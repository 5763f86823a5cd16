package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository/common"
)

type BookingRepository struct {
	db sqlx.ExtContext
}

func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (id, client_id, creator_id, service_id, amount, currency, network,
			delivery_days, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.ClientID, b.CreatorID, b.ServiceID, b.Amount, b.Currency, b.Network,
		b.DeliveryDays, b.Status, b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("booking repository: create %w", err)
	}
	b.UpdatedAt = b.CreatedAt
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return common.GetByID[models.Booking](ctx, r.db, "bookings", id, ErrBookingNotFound)
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := sqlx.GetContext(ctx, r.db, &b, `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("booking repository: get for update %w", err)
	}
	return &b, nil
}

// ListByParticipant возвращает бронирования, где пользователь клиент или креатор.
func (r *BookingRepository) ListByParticipant(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var bookings []models.Booking
	err := sqlx.SelectContext(ctx, r.db, &bookings, `
		SELECT * FROM bookings
		WHERE (client_id = $1 OR creator_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, filter.UserID, filter.Status, normalizeLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("booking repository: list by participant %w", err)
	}
	return bookings, nil
}

// ListDueForAutoRelease выбирает сданные бронирования с истёкшим дедлайном и без открытого спора.
func (r *BookingRepository) ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	err := sqlx.SelectContext(ctx, r.db, &bookings, `
		SELECT b.* FROM bookings b
		WHERE b.status = 'delivered'
		  AND b.auto_release_at IS NOT NULL
		  AND b.auto_release_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM disputes d WHERE d.booking_id = b.id AND d.status = 'open'
		  )
		ORDER BY b.auto_release_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("booking repository: list due %w", err)
	}
	return bookings, nil
}

func (r *BookingRepository) Transition(ctx context.Context, t models.BookingTransition) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET
			status = $3,
			paid_at = COALESCE($4, paid_at),
			delivered_at = COALESCE($5, delivered_at),
			accepted_at = COALESCE($6, accepted_at),
			auto_release_at = CASE WHEN $7::boolean THEN NULL ELSE COALESCE($8, auto_release_at) END,
			settled_at = COALESCE($9, settled_at),
			updated_at = $10
		WHERE id = $1 AND status = $2
	`, t.BookingID, t.From, t.To, t.PaidAt, t.DeliveredAt, t.AcceptedAt,
		t.ClearAutoRelease, t.AutoReleaseAt, t.SettledAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("booking repository: transition %w", err)
	}
	return common.ExpectOneRow(res)
}

func (r *BookingRepository) AppendHistory(ctx context.Context, h *models.BookingHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO booking_history (id, booking_id, from_status, to_status, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, h.ID, h.BookingID, h.FromStatus, h.ToStatus, h.ActorID, h.Reason, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("booking repository: append history %w", err)
	}
	return nil
}

func (r *BookingRepository) ListHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingHistory, error) {
	var history []models.BookingHistory
	err := sqlx.SelectContext(ctx, r.db, &history, `
		SELECT * FROM booking_history WHERE booking_id = $1 ORDER BY created_at ASC, id ASC
	`, bookingID)
	return history, err
}

func (r *BookingRepository) AddArtifacts(ctx context.Context, artifacts []models.DeliveryArtifact) error {
	inserter := common.NewBatchInserter(r.db,
		`INSERT INTO delivery_artifacts (id, booking_id, kind, uri, mime_type, size_bytes, created_at)`,
		7, 50)
	for i := range artifacts {
		a := &artifacts[i]
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if err := inserter.Add(ctx, a.ID, a.BookingID, a.Kind, a.URI, a.MimeType, a.SizeBytes, a.CreatedAt); err != nil {
			return fmt.Errorf("booking repository: add artifacts %w", err)
		}
	}
	if err := inserter.Flush(ctx); err != nil {
		return fmt.Errorf("booking repository: add artifacts %w", err)
	}
	return nil
}

func (r *BookingRepository) ListArtifacts(ctx context.Context, bookingID uuid.UUID) ([]models.DeliveryArtifact, error) {
	var artifacts []models.DeliveryArtifact
	err := sqlx.SelectContext(ctx, r.db, &artifacts, `
		SELECT * FROM delivery_artifacts WHERE booking_id = $1 ORDER BY created_at ASC
	`, bookingID)
	return artifacts, err
}
