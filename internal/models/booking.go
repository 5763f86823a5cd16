package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

// Booking описывает одну покупку услуги клиентом у креатора.
// Сумма фиксируется при создании и больше не меняется.
type Booking struct {
	ID            uuid.UUID                 `db:"id" json:"id"`
	ClientID      uuid.UUID                 `db:"client_id" json:"client_id"`
	CreatorID     uuid.UUID                 `db:"creator_id" json:"creator_id"`
	ServiceID     uuid.UUID                 `db:"service_id" json:"service_id"`
	Amount        decimal.Decimal           `db:"amount" json:"amount"`
	Currency      string                    `db:"currency" json:"currency"`
	Network       string                    `db:"network" json:"network"`
	DeliveryDays  int                       `db:"delivery_days" json:"delivery_days"`
	Status        valueobject.BookingStatus `db:"status" json:"status"`
	PaidAt        *time.Time                `db:"paid_at" json:"paid_at,omitempty"`
	DeliveredAt   *time.Time                `db:"delivered_at" json:"delivered_at,omitempty"`
	AcceptedAt    *time.Time                `db:"accepted_at" json:"accepted_at,omitempty"`
	AutoReleaseAt *time.Time                `db:"auto_release_at" json:"auto_release_at,omitempty"`
	SettledAt     *time.Time                `db:"settled_at" json:"settled_at,omitempty"`
	CreatedAt     time.Time                 `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time                 `db:"updated_at" json:"updated_at"`
}

// IsParticipant проверяет, является ли пользователь стороной сделки.
func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return b.ClientID == userID || b.CreatorID == userID
}

// Money возвращает зафиксированную сумму бронирования.
func (b *Booking) Money() valueobject.Money {
	return valueobject.Money{Amount: b.Amount, Currency: b.Currency}
}

// BookingTransition описывает условное обновление статуса.
// Непустые поля времени перезаписывают соответствующие колонки.
type BookingTransition struct {
	BookingID     uuid.UUID
	From          valueobject.BookingStatus
	To            valueobject.BookingStatus
	PaidAt        *time.Time
	DeliveredAt   *time.Time
	AcceptedAt    *time.Time
	AutoReleaseAt *time.Time
	SettledAt     *time.Time
	// ClearAutoRelease снимает дедлайн автовыпуска (спор).
	ClearAutoRelease bool
	UpdatedAt        time.Time
}

// BookingHistory запись журнала переходов.
type BookingHistory struct {
	ID         uuid.UUID                 `db:"id" json:"id"`
	BookingID  uuid.UUID                 `db:"booking_id" json:"booking_id"`
	FromStatus valueobject.BookingStatus `db:"from_status" json:"from_status"`
	ToStatus   valueobject.BookingStatus `db:"to_status" json:"to_status"`
	ActorID    *uuid.UUID                `db:"actor_id" json:"actor_id,omitempty"`
	Reason     *string                   `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time                 `db:"created_at" json:"created_at"`
}

const (
	ArtifactKindLink = "link"
	ArtifactKindFile = "file"
)

// DeliveryArtifact подтверждение сдачи работы: ссылка или файл.
type DeliveryArtifact struct {
	ID        uuid.UUID `db:"id" json:"id"`
	BookingID uuid.UUID `db:"booking_id" json:"booking_id"`
	Kind      string    `db:"kind" json:"kind"`
	URI       string    `db:"uri" json:"uri"`
	MimeType  *string   `db:"mime_type" json:"mime_type,omitempty"`
	SizeBytes *int64    `db:"size_bytes" json:"size_bytes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ServiceSnapshot данные услуги из каталога на момент оформления.
type ServiceSnapshot struct {
	ServiceID    uuid.UUID       `db:"id" json:"service_id"`
	CreatorID    uuid.UUID       `db:"creator_id" json:"creator_id"`
	Title        string          `db:"title" json:"title"`
	Price        decimal.Decimal `db:"price" json:"price"`
	Currency     string          `db:"currency" json:"currency"`
	DeliveryDays int             `db:"delivery_days" json:"delivery_days"`
	IsActive     bool            `db:"is_active" json:"is_active"`
}

// BookingFilter фильтр списка бронирований участника.
type BookingFilter struct {
	UserID uuid.UUID
	Status *valueobject.BookingStatus
	Limit  int
	Offset int
}
