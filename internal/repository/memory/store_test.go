package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

func newBooking(status valueobject.BookingStatus) *models.Booking {
	return &models.Booking{
		ID:        uuid.New(),
		ClientID:  uuid.New(),
		CreatorID: uuid.New(),
		ServiceID: uuid.New(),
		Amount:    decimal.NewFromInt(100),
		Currency:  "USDT",
		Network:   "polygon",
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBookingRepo_TransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	store := New()
	repos := store.Repos()

	b := newBooking(valueobject.BookingStatusDelivered)
	require.NoError(t, repos.Bookings.Create(ctx, b))

	wrongFrom := models.BookingTransition{
		BookingID: b.ID,
		From:      valueobject.BookingStatusPaid,
		To:        valueobject.BookingStatusAccepted,
	}
	assert.ErrorIs(t, repos.Bookings.Transition(ctx, wrongFrom), repository.ErrStaleState)

	now := time.Now().UTC()
	ok := models.BookingTransition{
		BookingID:  b.ID,
		From:       valueobject.BookingStatusDelivered,
		To:         valueobject.BookingStatusAccepted,
		AcceptedAt: &now,
		UpdatedAt:  now,
	}
	require.NoError(t, repos.Bookings.Transition(ctx, ok))
	assert.ErrorIs(t, repos.Bookings.Transition(ctx, ok), repository.ErrStaleState)

	got, err := repos.Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedAt)
}

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := New()
	b := newBooking(valueobject.BookingStatusPendingPayment)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(r repository.Repos) error {
		require.NoError(t, r.Bookings.Create(ctx, b))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Repos().Bookings.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, repository.ErrBookingNotFound)
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := New()
	b := newBooking(valueobject.BookingStatusPendingPayment)

	require.NoError(t, store.WithinTx(ctx, func(r repository.Repos) error {
		return r.Bookings.Create(ctx, b)
	}))

	got, err := store.Repos().Bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(100)))
}

func TestPaymentRepo_DuplicateTxRefAndSingleVerified(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	bookingID := uuid.New()

	first := &models.PaymentRecord{ID: uuid.New(), BookingID: &bookingID, Network: "polygon", TxRef: "0xaa", Status: valueobject.PaymentStatusPending}
	second := &models.PaymentRecord{ID: uuid.New(), BookingID: &bookingID, Network: "polygon", TxRef: "0xbb", Status: valueobject.PaymentStatusPending}
	require.NoError(t, repos.Payments.Create(ctx, first))
	require.NoError(t, repos.Payments.Create(ctx, second))

	dup := &models.PaymentRecord{ID: uuid.New(), Network: "polygon", TxRef: "0xaa"}
	assert.ErrorIs(t, repos.Payments.Create(ctx, dup), repository.ErrDuplicate)

	verifier := uuid.New()
	now := time.Now()
	require.NoError(t, repos.Payments.Resolve(ctx, first.ID, valueobject.PaymentStatusVerified, verifier, now))
	assert.ErrorIs(t, repos.Payments.Resolve(ctx, first.ID, valueobject.PaymentStatusRejected, verifier, now), repository.ErrStaleState)
	assert.ErrorIs(t, repos.Payments.Resolve(ctx, second.ID, valueobject.PaymentStatusVerified, verifier, now), repository.ErrDuplicate)

	pending, err := repos.Payments.CountPendingForBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestDisputeRepo_OneOpenPerBooking(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	bookingID := uuid.New()

	d1 := &models.Dispute{ID: uuid.New(), BookingID: bookingID, Status: valueobject.DisputeStatusOpen}
	require.NoError(t, repos.Disputes.Create(ctx, d1))

	d2 := &models.Dispute{ID: uuid.New(), BookingID: bookingID, Status: valueobject.DisputeStatusOpen}
	assert.ErrorIs(t, repos.Disputes.Create(ctx, d2), repository.ErrDuplicate)

	res := models.DisputeResolution{DisputeID: d1.ID, ResolverID: uuid.New(), Outcome: valueobject.DisputeOutcomeRefund, ResolvedAt: time.Now()}
	require.NoError(t, repos.Disputes.Resolve(ctx, res))
	assert.ErrorIs(t, repos.Disputes.Resolve(ctx, res), repository.ErrStaleState)

	require.NoError(t, repos.Disputes.Create(ctx, d2))
}

func TestObligationRepo_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()
	bookingID := uuid.New()

	o := &models.SettlementObligation{ID: uuid.New(), BookingID: bookingID, Network: "polygon", Direction: valueobject.SettlementPayout, BeneficiaryAddress: "0xaa"}
	require.NoError(t, repos.Obligations.Create(ctx, o))
	assert.ErrorIs(t, repos.Obligations.Create(ctx, &models.SettlementObligation{ID: uuid.New(), BookingID: bookingID}), repository.ErrDuplicate)

	exec := models.ObligationExecution{ObligationID: o.ID, TxRef: "0x01", ExecutedBy: uuid.New(), ExecutedAt: time.Now()}
	require.NoError(t, repos.Obligations.MarkExecuted(ctx, exec))

	exec.TxRef = "0x02"
	assert.ErrorIs(t, repos.Obligations.MarkExecuted(ctx, exec), repository.ErrStaleState)

	got, err := repos.Obligations.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TxRef)
	assert.Equal(t, "0x01", *got.TxRef)

	executed := true
	list, err := repos.Obligations.List(ctx, models.ObligationFilter{Executed: &executed})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestObligationRepo_MarkExecutedFillsMissingAddress(t *testing.T) {
	ctx := context.Background()
	repos := New().Repos()

	o := &models.SettlementObligation{ID: uuid.New(), BookingID: uuid.New(), Network: "polygon", Direction: valueobject.SettlementPayout}
	require.NoError(t, repos.Obligations.Create(ctx, o))

	exec := models.ObligationExecution{ObligationID: o.ID, TxRef: "0x01", ExecutedBy: uuid.New(), ExecutedAt: time.Now()}
	assert.ErrorIs(t, repos.Obligations.MarkExecuted(ctx, exec), repository.ErrStaleState)

	exec.BeneficiaryAddress = "0xbb"
	require.NoError(t, repos.Obligations.MarkExecuted(ctx, exec))

	got, err := repos.Obligations.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xbb", got.BeneficiaryAddress)

	stored := &models.SettlementObligation{ID: uuid.New(), BookingID: uuid.New(), Network: "polygon", Direction: valueobject.SettlementPayout, BeneficiaryAddress: "0xcc"}
	require.NoError(t, repos.Obligations.Create(ctx, stored))
	require.NoError(t, repos.Obligations.MarkExecuted(ctx, models.ObligationExecution{
		ObligationID: stored.ID, TxRef: "0x02", BeneficiaryAddress: "0xdd", ExecutedBy: uuid.New(), ExecutedAt: time.Now(),
	}))
	got, err = repos.Obligations.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xcc", got.BeneficiaryAddress)
}

// Отклонение последнего pending-платежа и новая заявка решают судьбу
// бронирования по очереди: заявка, прошедшая после блокировки, видит
// уже payment_rejected, а не висит pending при rejected-бронировании.
func TestBookingRepo_ForUpdateSerializesPaymentDecisions(t *testing.T) {
	ctx := context.Background()
	store := New()
	b := newBooking(valueobject.BookingStatusPendingPayment)
	require.NoError(t, store.Repos().Bookings.Create(ctx, b))

	first := &models.PaymentRecord{ID: uuid.New(), BookingID: &b.ID, Network: "polygon", TxRef: "0x01", Status: valueobject.PaymentStatusPending, Purpose: valueobject.PaymentPurposeServiceBooking}
	require.NoError(t, store.Repos().Payments.Create(ctx, first))

	inReject := make(chan struct{})
	release := make(chan struct{})
	rejectDone := make(chan error, 1)
	go func() {
		rejectDone <- store.WithinTx(ctx, func(r repository.Repos) error {
			locked, err := r.Bookings.GetByIDForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			close(inReject)
			<-release
			if err := r.Payments.Resolve(ctx, first.ID, valueobject.PaymentStatusRejected, uuid.New(), time.Now()); err != nil {
				return err
			}
			n, err := r.Payments.CountPendingForBooking(ctx, b.ID)
			if err != nil || n != 0 {
				return errors.Join(err, errors.New("pending payments remain"))
			}
			return r.Bookings.Transition(ctx, models.BookingTransition{
				BookingID: b.ID, From: locked.Status, To: valueobject.BookingStatusPaymentRejected, UpdatedAt: time.Now(),
			})
		})
	}()

	<-inReject
	submitDone := make(chan valueobject.BookingStatus, 1)
	go func() {
		var seen valueobject.BookingStatus
		_ = store.WithinTx(ctx, func(r repository.Repos) error {
			locked, err := r.Bookings.GetByIDForUpdate(ctx, b.ID)
			if err != nil {
				return err
			}
			seen = locked.Status
			return nil
		})
		submitDone <- seen
	}()

	select {
	case <-submitDone:
		t.Fatal("booking read under lock while another decision holds it")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-rejectDone)
	assert.Equal(t, valueobject.BookingStatusPaymentRejected, <-submitDone)
}

func TestBookingRepo_ListDueForAutoRelease(t *testing.T) {
	ctx := context.Background()
	store := New()
	repos := store.Repos()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := newBooking(valueobject.BookingStatusDelivered)
	due.AutoReleaseAt = &past
	notYet := newBooking(valueobject.BookingStatusDelivered)
	notYet.AutoReleaseAt = &future
	disputed := newBooking(valueobject.BookingStatusDelivered)
	disputed.AutoReleaseAt = &past

	for _, b := range []*models.Booking{due, notYet, disputed} {
		require.NoError(t, repos.Bookings.Create(ctx, b))
	}
	require.NoError(t, repos.Disputes.Create(ctx, &models.Dispute{ID: uuid.New(), BookingID: disputed.ID, Status: valueobject.DisputeStatusOpen}))

	list, err := repos.Bookings.ListDueForAutoRelease(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)
}

func TestPolicyRepo_DefaultPermissions(t *testing.T) {
	repos := New().Repos()

	actions, err := repos.Policies.Permissions(context.Background(), valueobject.RoleAdmin)
	require.NoError(t, err)
	assert.Contains(t, actions, "dispute.resolve")

	actions, err = repos.Policies.Permissions(context.Background(), valueobject.RoleClient)
	require.NoError(t, err)
	assert.NotContains(t, actions, "payment.verify")
}
