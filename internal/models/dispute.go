package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
)

type Dispute struct {
	ID             uuid.UUID                   `db:"id" json:"id"`
	BookingID      uuid.UUID                   `db:"booking_id" json:"booking_id"`
	OpenedBy       uuid.UUID                   `db:"opened_by" json:"opened_by"`
	OpenerRole     valueobject.Role            `db:"opener_role" json:"opener_role"`
	Reason         string                      `db:"reason" json:"reason"`
	Status         valueobject.DisputeStatus   `db:"status" json:"status"`
	Outcome        *valueobject.DisputeOutcome `db:"outcome" json:"outcome,omitempty"`
	ResolverID     *uuid.UUID                  `db:"resolver_id" json:"resolver_id,omitempty"`
	ResolutionNote *string                     `db:"resolution_note" json:"resolution_note,omitempty"`
	CreatedAt      time.Time                   `db:"created_at" json:"created_at"`
	ResolvedAt     *time.Time                  `db:"resolved_at" json:"resolved_at,omitempty"`
}

// DisputeResolution условная запись решения по открытому спору.
type DisputeResolution struct {
	DisputeID  uuid.UUID
	ResolverID uuid.UUID
	Outcome    valueobject.DisputeOutcome
	Note       string
	ResolvedAt time.Time
}
