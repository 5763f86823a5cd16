package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

type bookingRepo struct{ h *handle }

func (r *bookingRepo) Create(_ context.Context, b *models.Booking) error {
	return r.h.write(func(st *state) error {
		if _, ok := st.bookings[b.ID]; ok {
			return repository.ErrDuplicate
		}
		b.UpdatedAt = b.CreatedAt
		st.bookings[b.ID] = *b
		st.bookingOrder = append(st.bookingOrder, b.ID)
		return nil
	})
}

func (r *bookingRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	var out *models.Booking
	err := r.h.read(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return repository.ErrBookingNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

// GetByIDForUpdate: транзакции хранилища и так выполняются по одной.
func (r *bookingRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepo) ListByParticipant(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var out []models.Booking
	err := r.h.read(func(st *state) error {
		for i := len(st.bookingOrder) - 1; i >= 0; i-- {
			b := st.bookings[st.bookingOrder[i]]
			if b.ClientID != filter.UserID && b.CreatorID != filter.UserID {
				continue
			}
			if filter.Status != nil && b.Status != *filter.Status {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (r *bookingRepo) ListDueForAutoRelease(_ context.Context, now time.Time, limit int) ([]models.Booking, error) {
	var out []models.Booking
	err := r.h.read(func(st *state) error {
		open := make(map[uuid.UUID]bool)
		for _, d := range st.disputes {
			if d.Status == valueobject.DisputeStatusOpen {
				open[d.BookingID] = true
			}
		}
		for _, id := range st.bookingOrder {
			b := st.bookings[id]
			if b.Status != valueobject.BookingStatusDelivered || b.AutoReleaseAt == nil {
				continue
			}
			if b.AutoReleaseAt.After(now) || open[b.ID] {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AutoReleaseAt.Before(*out[j].AutoReleaseAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *bookingRepo) Transition(_ context.Context, t models.BookingTransition) error {
	return r.h.write(func(st *state) error {
		b, ok := st.bookings[t.BookingID]
		if !ok || b.Status != t.From {
			return repository.ErrStaleState
		}
		b.Status = t.To
		if t.PaidAt != nil {
			b.PaidAt = t.PaidAt
		}
		if t.DeliveredAt != nil {
			b.DeliveredAt = t.DeliveredAt
		}
		if t.AcceptedAt != nil {
			b.AcceptedAt = t.AcceptedAt
		}
		if t.ClearAutoRelease {
			b.AutoReleaseAt = nil
		} else if t.AutoReleaseAt != nil {
			b.AutoReleaseAt = t.AutoReleaseAt
		}
		if t.SettledAt != nil {
			b.SettledAt = t.SettledAt
		}
		b.UpdatedAt = t.UpdatedAt
		st.bookings[b.ID] = b
		return nil
	})
}

func (r *bookingRepo) AppendHistory(_ context.Context, h *models.BookingHistory) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return r.h.write(func(st *state) error {
		st.history = append(st.history, *h)
		return nil
	})
}

func (r *bookingRepo) ListHistory(_ context.Context, bookingID uuid.UUID) ([]models.BookingHistory, error) {
	var out []models.BookingHistory
	err := r.h.read(func(st *state) error {
		for _, h := range st.history {
			if h.BookingID == bookingID {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}

func (r *bookingRepo) AddArtifacts(_ context.Context, artifacts []models.DeliveryArtifact) error {
	for i := range artifacts {
		if artifacts[i].ID == uuid.Nil {
			artifacts[i].ID = uuid.New()
		}
	}
	return r.h.write(func(st *state) error {
		st.artifacts = append(st.artifacts, artifacts...)
		return nil
	})
}

func (r *bookingRepo) ListArtifacts(_ context.Context, bookingID uuid.UUID) ([]models.DeliveryArtifact, error) {
	var out []models.DeliveryArtifact
	err := r.h.read(func(st *state) error {
		for _, a := range st.artifacts {
			if a.BookingID == bookingID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

type paymentRepo struct{ h *handle }

func (r *paymentRepo) Create(_ context.Context, p *models.PaymentRecord) error {
	return r.h.write(func(st *state) error {
		if _, ok := st.payments[p.ID]; ok {
			return repository.ErrDuplicate
		}
		for _, existing := range st.payments {
			if existing.Network == p.Network && existing.TxRef == p.TxRef {
				return repository.ErrDuplicate
			}
		}
		st.payments[p.ID] = *p
		st.paymentOrder = append(st.paymentOrder, p.ID)
		return nil
	})
}

func (r *paymentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var out *models.PaymentRecord
	err := r.h.read(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return repository.ErrPaymentNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *paymentRepo) ListByBooking(_ context.Context, bookingID uuid.UUID) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	err := r.h.read(func(st *state) error {
		for _, id := range st.paymentOrder {
			p := st.payments[id]
			if p.BookingID != nil && *p.BookingID == bookingID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *paymentRepo) List(_ context.Context, filter models.PaymentFilter) ([]models.PaymentRecord, error) {
	var out []models.PaymentRecord
	err := r.h.read(func(st *state) error {
		for _, id := range st.paymentOrder {
			p := st.payments[id]
			if filter.Status != nil && p.Status != *filter.Status {
				continue
			}
			if filter.Purpose != nil && p.Purpose != *filter.Purpose {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (r *paymentRepo) CountPendingForBooking(_ context.Context, bookingID uuid.UUID) (int, error) {
	count := 0
	err := r.h.read(func(st *state) error {
		for _, p := range st.payments {
			if p.BookingID != nil && *p.BookingID == bookingID && p.Status == valueobject.PaymentStatusPending {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r *paymentRepo) GetVerifiedForBooking(_ context.Context, bookingID uuid.UUID) (*models.PaymentRecord, error) {
	var out *models.PaymentRecord
	err := r.h.read(func(st *state) error {
		for _, p := range st.payments {
			if p.BookingID != nil && *p.BookingID == bookingID && p.Status == valueobject.PaymentStatusVerified {
				found := p
				out = &found
				return nil
			}
		}
		return repository.ErrPaymentNotFound
	})
	return out, err
}

func (r *paymentRepo) Resolve(_ context.Context, id uuid.UUID, status valueobject.PaymentStatus, verifierID uuid.UUID, at time.Time) error {
	return r.h.write(func(st *state) error {
		p, ok := st.payments[id]
		if !ok || p.Status != valueobject.PaymentStatusPending {
			return repository.ErrStaleState
		}
		if status == valueobject.PaymentStatusVerified && p.BookingID != nil {
			for _, other := range st.payments {
				if other.ID != p.ID && other.BookingID != nil && *other.BookingID == *p.BookingID &&
					other.Status == valueobject.PaymentStatusVerified {
					return repository.ErrDuplicate
				}
			}
		}
		p.Status = status
		p.VerifierID = &verifierID
		p.ResolvedAt = &at
		st.payments[id] = p
		return nil
	})
}

func (r *paymentRepo) GrantTier(_ context.Context, g *models.CreatorTierGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return r.h.write(func(st *state) error {
		if _, ok := st.tierGrants[g.PaymentID]; ok {
			return repository.ErrDuplicate
		}
		st.tierGrants[g.PaymentID] = *g
		return nil
	})
}

type disputeRepo struct{ h *handle }

func (r *disputeRepo) Create(_ context.Context, d *models.Dispute) error {
	return r.h.write(func(st *state) error {
		for _, existing := range st.disputes {
			if existing.BookingID == d.BookingID && existing.Status == valueobject.DisputeStatusOpen {
				return repository.ErrDuplicate
			}
		}
		st.disputes[d.ID] = *d
		st.disputeOrder = append(st.disputeOrder, d.ID)
		return nil
	})
}

func (r *disputeRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Dispute, error) {
	var out *models.Dispute
	err := r.h.read(func(st *state) error {
		d, ok := st.disputes[id]
		if !ok {
			return repository.ErrDisputeNotFound
		}
		out = &d
		return nil
	})
	return out, err
}

func (r *disputeRepo) GetOpenByBooking(_ context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	var out *models.Dispute
	err := r.h.read(func(st *state) error {
		for _, d := range st.disputes {
			if d.BookingID == bookingID && d.Status == valueobject.DisputeStatusOpen {
				found := d
				out = &found
				return nil
			}
		}
		return repository.ErrDisputeNotFound
	})
	return out, err
}

func (r *disputeRepo) List(_ context.Context, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error) {
	var out []models.Dispute
	err := r.h.read(func(st *state) error {
		for _, id := range st.disputeOrder {
			d := st.disputes[id]
			if status != nil && d.Status != *status {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	return page(out, limit, offset), err
}

func (r *disputeRepo) Resolve(_ context.Context, res models.DisputeResolution) error {
	return r.h.write(func(st *state) error {
		d, ok := st.disputes[res.DisputeID]
		if !ok || d.Status != valueobject.DisputeStatusOpen {
			return repository.ErrStaleState
		}
		outcome := res.Outcome
		resolver := res.ResolverID
		note := res.Note
		resolvedAt := res.ResolvedAt
		d.Status = valueobject.DisputeStatusResolved
		d.Outcome = &outcome
		d.ResolverID = &resolver
		d.ResolutionNote = &note
		d.ResolvedAt = &resolvedAt
		st.disputes[d.ID] = d
		return nil
	})
}

type obligationRepo struct{ h *handle }

func (r *obligationRepo) Create(_ context.Context, o *models.SettlementObligation) error {
	return r.h.write(func(st *state) error {
		for _, existing := range st.obligations {
			if existing.BookingID == o.BookingID {
				return repository.ErrDuplicate
			}
		}
		st.obligations[o.ID] = *o
		st.obligationIDs = append(st.obligationIDs, o.ID)
		return nil
	})
}

func (r *obligationRepo) GetByID(_ context.Context, id uuid.UUID) (*models.SettlementObligation, error) {
	var out *models.SettlementObligation
	err := r.h.read(func(st *state) error {
		o, ok := st.obligations[id]
		if !ok {
			return repository.ErrObligationNotFound
		}
		out = &o
		return nil
	})
	return out, err
}

func (r *obligationRepo) GetByBooking(_ context.Context, bookingID uuid.UUID) (*models.SettlementObligation, error) {
	var out *models.SettlementObligation
	err := r.h.read(func(st *state) error {
		for _, o := range st.obligations {
			if o.BookingID == bookingID {
				found := o
				out = &found
				return nil
			}
		}
		return repository.ErrObligationNotFound
	})
	return out, err
}

func (r *obligationRepo) List(_ context.Context, filter models.ObligationFilter) ([]models.SettlementObligation, error) {
	var out []models.SettlementObligation
	err := r.h.read(func(st *state) error {
		for _, id := range st.obligationIDs {
			o := st.obligations[id]
			if filter.Direction != nil && o.Direction != *filter.Direction {
				continue
			}
			if filter.Executed != nil && o.IsExecuted() != *filter.Executed {
				continue
			}
			out = append(out, o)
		}
		return nil
	})
	return page(out, filter.Limit, filter.Offset), err
}

func (r *obligationRepo) MarkExecuted(_ context.Context, e models.ObligationExecution) error {
	return r.h.write(func(st *state) error {
		o, ok := st.obligations[e.ObligationID]
		if !ok || o.TxRef != nil {
			return repository.ErrStaleState
		}
		if o.BeneficiaryAddress == "" && e.BeneficiaryAddress == "" {
			return repository.ErrStaleState
		}
		for _, other := range st.obligations {
			if other.TxRef != nil && other.Network == o.Network && *other.TxRef == e.TxRef {
				return repository.ErrDuplicate
			}
		}
		txRef := e.TxRef
		executedBy := e.ExecutedBy
		executedAt := e.ExecutedAt
		o.TxRef = &txRef
		if o.BeneficiaryAddress == "" {
			o.BeneficiaryAddress = e.BeneficiaryAddress
		}
		o.ExecutedBy = &executedBy
		o.ExecutedAt = &executedAt
		st.obligations[o.ID] = o
		return nil
	})
}

type policyRepo struct{ h *handle }

func (r *policyRepo) Permissions(_ context.Context, role valueobject.Role) ([]string, error) {
	var out []string
	err := r.h.read(func(st *state) error {
		out = append([]string(nil), st.permissions[role]...)
		return nil
	})
	sort.Strings(out)
	return out, err
}

type directoryRepo struct{ h *handle }

func (r *directoryRepo) ServiceSnapshot(_ context.Context, serviceID uuid.UUID) (*models.ServiceSnapshot, error) {
	var out *models.ServiceSnapshot
	err := r.h.read(func(st *state) error {
		s, ok := st.services[serviceID]
		if !ok {
			return repository.ErrServiceNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *directoryRepo) PayoutAddress(_ context.Context, userID uuid.UUID, network string) (string, error) {
	var out string
	err := r.h.read(func(st *state) error {
		addr, ok := st.addresses[addressKey{userID: userID, network: network}]
		if !ok {
			return repository.ErrAddressNotFound
		}
		out = addr
		return nil
	})
	return out, err
}
