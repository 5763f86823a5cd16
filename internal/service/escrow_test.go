package service

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/events"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

func TestEscrow_AutoReleaseAfterDeadline(t *testing.T) {
	f := newFixture(t)

	b := f.delivered(t)
	require.Equal(t, valueobject.BookingStatusDelivered, b.Status)
	require.NotNil(t, b.DeliveredAt)
	require.NotNil(t, b.AutoReleaseAt)
	assert.Equal(t, b.DeliveredAt.Add(72*time.Hour), *b.AutoReleaseAt)

	released, err := f.escrow.Bookings.SweepAutoRelease(f.ctx, f.clock.Now().Add(71*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	f.clock.Advance(72*time.Hour + time.Minute)
	released, err = f.escrow.Bookings.SweepAutoRelease(f.ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	b = f.booking(t, b.ID)
	assert.Equal(t, valueobject.BookingStatusAutoReleased, b.Status)
	assert.Nil(t, b.AutoReleaseAt)
	require.NotNil(t, b.SettledAt)

	o := f.obligation(t, b.ID)
	assert.Equal(t, valueobject.SettlementPayout, o.Direction)
	assert.Equal(t, f.creator.ID, o.BeneficiaryID)
	assert.Equal(t, creatorAddress, o.BeneficiaryAddress)
	assert.True(t, o.NetAmount.Equal(decimal.RequireFromString("85.00")), o.NetAmount.String())
	assert.True(t, o.GrossAmount.Equal(decimal.NewFromInt(100)))

	// повторный проход ничего не делает
	released, err = f.escrow.Bookings.SweepAutoRelease(f.ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	history, err := f.escrow.Bookings.History(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, valueobject.BookingStatusAutoReleased, last.ToStatus)
	assert.Nil(t, last.ActorID)
}

func TestEscrow_DisputeRefund(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)

	f.clock.Advance(time.Hour)
	d, err := f.escrow.Disputes.OpenDispute(f.ctx, f.client, b.ID, "ролик не соответствует брифу")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusOpen, d.Status)
	assert.Equal(t, valueobject.RoleClient, d.OpenerRole)

	b = f.booking(t, b.ID)
	assert.Equal(t, valueobject.BookingStatusDisputed, b.Status)
	assert.Nil(t, b.AutoReleaseAt)

	// спор снимает автовыпуск
	f.clock.Advance(100 * time.Hour)
	released, err := f.escrow.Bookings.SweepAutoRelease(f.ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	info, err := f.escrow.Disputes.ResolveDispute(f.ctx, f.admin, d.ID, valueobject.DisputeOutcomeRefund, "работа не сдана")
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusRefunded, info.Booking.Status)
	assert.Equal(t, valueobject.DisputeStatusResolved, info.Dispute.Status)

	o := f.obligation(t, b.ID)
	assert.Equal(t, valueobject.SettlementRefund, o.Direction)
	assert.Equal(t, f.client.ID, o.BeneficiaryID)
	// у клиента нет адреса, берётся отправитель подтверждённого платежа
	assert.Equal(t, clientSender, o.BeneficiaryAddress)
	assert.True(t, o.NetAmount.Equal(decimal.RequireFromString("85")))

	_, err = f.escrow.Disputes.ResolveDispute(f.ctx, f.admin, d.ID, valueobject.DisputeOutcomeRelease, "")
	requireCode(t, err, apperror.ErrCodeAlreadyResolved)
	assert.Equal(t, apperror.KindAlreadyDone, apperror.Kind(err))

	list, err := f.escrow.Settlement.List(f.ctx, f.admin, models.ObligationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEscrow_DisputeRelease(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)

	d, err := f.escrow.Disputes.OpenDispute(f.ctx, f.creator, b.ID, "клиент не отвечает больше суток")
	require.NoError(t, err)
	assert.Equal(t, valueobject.RoleCreator, d.OpenerRole)

	info, err := f.escrow.Disputes.ResolveDispute(f.ctx, f.admin, d.ID, valueobject.DisputeOutcomeRelease, "")
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusAccepted, info.Booking.Status)
	require.NotNil(t, info.Booking.AcceptedAt)

	o := f.obligation(t, b.ID)
	assert.Equal(t, valueobject.SettlementPayout, o.Direction)
	assert.True(t, o.NetAmount.Equal(decimal.NewFromInt(85)))
}

func TestEscrow_RejectedPaymentRetry(t *testing.T) {
	f := newFixture(t)
	b, first := f.checkout(t)

	_, err := f.escrow.Payments.VerifyPayment(f.ctx, f.admin, first.ID, valueobject.PaymentStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusPaymentRejected, f.booking(t, b.ID).Status)

	second, err := f.escrow.Payments.SubmitPayment(f.ctx, f.client, SubmitPaymentInput{
		Purpose:   valueobject.PaymentPurposeServiceBooking,
		BookingID: &b.ID,
		TxRef:     nextTxRef(),
	})
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusPendingPayment, f.booking(t, b.ID).Status)
	assert.True(t, second.Amount.Equal(b.Amount))
	assert.Equal(t, "polygon", second.Network)

	records, err := f.escrow.Payments.ListByBooking(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	statuses := map[valueobject.PaymentStatus]int{}
	for _, r := range records {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[valueobject.PaymentStatusRejected])
	assert.Equal(t, 1, statuses[valueobject.PaymentStatusPending])

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, second.ID, valueobject.PaymentStatusVerified)
	require.NoError(t, err)
	paid := f.booking(t, b.ID)
	assert.Equal(t, valueobject.BookingStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// отклонённая запись неизменна
	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, first.ID, valueobject.PaymentStatusVerified)
	requireCode(t, err, apperror.ErrCodeAlreadyResolved)
}

func TestEscrow_RejectLeavesBookingPendingWhileOtherRecordPending(t *testing.T) {
	f := newFixture(t)
	b, first := f.checkout(t)

	_, err := f.escrow.Payments.SubmitPayment(f.ctx, f.client, SubmitPaymentInput{
		Purpose:   valueobject.PaymentPurposeServiceBooking,
		BookingID: &b.ID,
		TxRef:     nextTxRef(),
	})
	require.NoError(t, err)

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, first.ID, valueobject.PaymentStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusPendingPayment, f.booking(t, b.ID).Status)
}

func TestEscrow_OnlyOnePaymentVerifiedPerBooking(t *testing.T) {
	f := newFixture(t)
	b, first := f.checkout(t)
	second, err := f.escrow.Payments.SubmitPayment(f.ctx, f.client, SubmitPaymentInput{
		Purpose:   valueobject.PaymentPurposeServiceBooking,
		BookingID: &b.ID,
		TxRef:     nextTxRef(),
	})
	require.NoError(t, err)

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, first.ID, valueobject.PaymentStatusVerified)
	require.NoError(t, err)

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, second.ID, valueobject.PaymentStatusVerified)
	requireCode(t, err, apperror.ErrCodeBookingNotEligible)

	got, err := f.store.Repos().Payments.GetByID(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.PaymentStatusPending, got.Status)

	// в paid новые платежи не принимаются
	_, err = f.escrow.Payments.SubmitPayment(f.ctx, f.client, SubmitPaymentInput{
		Purpose:   valueobject.PaymentPurposeServiceBooking,
		BookingID: &b.ID,
		TxRef:     nextTxRef(),
	})
	requireCode(t, err, apperror.ErrCodeBookingNotEligible)
}

func TestEscrow_ConcurrentAcceptCreatesSingleObligation(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	require.Len(t, failures, n-1)
	for _, err := range failures {
		ok := apperror.HasCode(err, apperror.ErrCodeInvalidTransition) ||
			apperror.HasCode(err, apperror.ErrCodeConcurrentModification)
		assert.Truef(t, ok, "unexpected error %v", err)
	}

	list, err := f.escrow.Settlement.List(f.ctx, f.admin, models.ObligationFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, valueobject.SettlementPayout, list[0].Direction)
	assert.Equal(t, valueobject.BookingStatusAccepted, f.booking(t, b.ID).Status)
}

func TestEscrow_ConcurrentResolveSettlesOnce(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	d, err := f.escrow.Disputes.OpenDispute(f.ctx, f.client, b.ID, "ролик не соответствует брифу")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		outcome := valueobject.DisputeOutcomeRefund
		if i%2 == 0 {
			outcome = valueobject.DisputeOutcomeRelease
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.escrow.Disputes.ResolveDispute(f.ctx, f.admin, d.ID, outcome, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperror.HasCode(err, apperror.ErrCodeAlreadyResolved), err)
	}
	assert.Equal(t, 1, ok)

	list, err := f.escrow.Settlement.List(f.ctx, f.admin, models.ObligationFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEscrow_SecondOpenDisputeNotEligible(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)

	_, err := f.escrow.Disputes.OpenDispute(f.ctx, f.client, b.ID, "ролик не соответствует брифу")
	require.NoError(t, err)

	_, err = f.escrow.Disputes.OpenDispute(f.ctx, f.creator, b.ID, "клиент требует лишнего")
	requireCode(t, err, apperror.ErrCodeNotEligible)
	assert.Equal(t, apperror.KindNotAllowed, apperror.Kind(err))

	open := valueobject.DisputeStatusOpen
	list, err := f.escrow.Disputes.List(f.ctx, f.admin, &open, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEscrow_DisputeWindow(t *testing.T) {
	f := newFixture(t)

	b := f.delivered(t)
	f.clock.Advance(49 * time.Hour)
	_, err := f.escrow.Disputes.OpenDispute(f.ctx, f.client, b.ID, "ролик не соответствует брифу")
	requireCode(t, err, apperror.ErrCodeNotEligible)
	assert.Equal(t, valueobject.BookingStatusDelivered, f.booking(t, b.ID).Status)

	paid := f.paid(t)
	_, err = f.escrow.Disputes.OpenDispute(f.ctx, f.client, paid.ID, "креатор не начинает работу")
	require.NoError(t, err)

	pending, _ := f.checkout(t)
	_, err = f.escrow.Disputes.OpenDispute(f.ctx, f.client, pending.ID, "платёж ещё не подтверждён")
	requireCode(t, err, apperror.ErrCodeNotEligible)
}

func TestEscrow_CreatorRejectRefundsWithOwnFee(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)

	out, err := f.escrow.Bookings.RejectByCreator(f.ctx, f.creator, b.ID, "не смогу выполнить")
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusRefunded, out.Status)

	o := f.obligation(t, b.ID)
	assert.Equal(t, valueobject.SettlementRefund, o.Direction)
	assert.True(t, o.NetAmount.Equal(decimal.NewFromInt(95)), o.NetAmount.String())
	assert.True(t, o.FeeRate.Equal(decimal.RequireFromString("0.05")))

	history, err := f.escrow.Bookings.History(f.ctx, f.creator, b.ID)
	require.NoError(t, err)
	n := len(history)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, valueobject.BookingStatusRejectedByCreator, history[n-2].ToStatus)
	assert.Equal(t, valueobject.BookingStatusRefunded, history[n-1].ToStatus)
}

func TestEscrow_RecordExecutionOnce(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	o := f.obligation(t, b.ID)

	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: "0xdeadbeef"})
	requireCode(t, err, apperror.ErrCodeValidation)

	ref := nextTxRef()
	executed, err := f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: ref})
	require.NoError(t, err)
	require.NotNil(t, executed.TxRef)
	assert.Equal(t, ref, *executed.TxRef)

	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: ref})
	requireCode(t, err, apperror.ErrCodeAlreadyExecuted)
	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: nextTxRef()})
	requireCode(t, err, apperror.ErrCodeAlreadyExecuted)

	got := f.obligation(t, b.ID)
	require.NotNil(t, got.TxRef)
	assert.Equal(t, ref, *got.TxRef)
	assert.Equal(t, f.admin.ID, *got.ExecutedBy)

	pending, err := f.escrow.Settlement.ListPending(f.ctx, f.admin, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	done, err := f.escrow.Settlement.ListExecuted(f.ctx, f.admin, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestEscrow_RecordExecutionRejectsFutureTime(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	o := f.obligation(t, b.ID)

	future := f.clock.Now().Add(time.Hour)
	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: nextTxRef(), ExecutedAt: &future})
	requireCode(t, err, apperror.ErrCodeValidation)
}

func TestEscrow_RecordExecutionRequiresBeneficiaryAddress(t *testing.T) {
	f := newFixture(t)
	f.store.SetPayoutAddress(f.creator.ID, "polygon", "")
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	o := f.obligation(t, b.ID)
	require.Empty(t, o.BeneficiaryAddress)

	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{TxRef: nextTxRef()})
	requireCode(t, err, apperror.ErrCodeValidation)
	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{
		TxRef:              nextTxRef(),
		BeneficiaryAddress: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaeD",
	})
	requireCode(t, err, apperror.ErrCodeValidation)

	got := f.obligation(t, b.ID)
	assert.False(t, got.IsExecuted())

	ref := nextTxRef()
	executed, err := f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{
		TxRef:              ref,
		BeneficiaryAddress: creatorAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, creatorAddress, executed.BeneficiaryAddress)

	got = f.obligation(t, b.ID)
	require.NotNil(t, got.TxRef)
	assert.Equal(t, ref, *got.TxRef)
	assert.Equal(t, creatorAddress, got.BeneficiaryAddress)
}

func TestEscrow_RecordExecutionKeepsStoredAddress(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	o := f.obligation(t, b.ID)
	require.Equal(t, creatorAddress, o.BeneficiaryAddress)

	_, err = f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{
		TxRef:              nextTxRef(),
		BeneficiaryAddress: clientSender,
	})
	requireCode(t, err, apperror.ErrCodeValidation)

	executed, err := f.escrow.Settlement.RecordExecution(f.ctx, f.admin, o.ID, ExecutionInput{
		TxRef:              nextTxRef(),
		BeneficiaryAddress: creatorAddress,
	})
	require.NoError(t, err)
	assert.Equal(t, creatorAddress, executed.BeneficiaryAddress)
}

func TestEscrow_CreateObligationOncePerBooking(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	b = f.booking(t, b.ID)

	err = f.escrow.Settlement.inTx(f.ctx, func(r repository.Repos, rec *recorder) error {
		_, err := f.escrow.Settlement.settle(f.ctx, r, rec, b, valueobject.SettlementPayout, DefaultEscrowRules().PayoutFee)
		return err
	})
	requireCode(t, err, apperror.ErrCodeObligationAlreadyExists)
}

func TestEscrow_Guards(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	stranger := models.Actor{ID: b.ServiceID, Role: valueobject.RoleClient}

	_, err := f.escrow.Bookings.Accept(f.ctx, f.creator, b.ID)
	requireCode(t, err, apperror.ErrCodeForbidden)

	_, err = f.escrow.Bookings.Accept(f.ctx, stranger, b.ID)
	requireCode(t, err, apperror.ErrCodeForbidden)

	_, err = f.escrow.Bookings.Get(f.ctx, stranger, b.ID)
	requireCode(t, err, apperror.ErrCodeForbidden)

	_, err = f.escrow.Bookings.Get(f.ctx, f.admin, b.ID)
	require.NoError(t, err)

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.client, b.ID, valueobject.PaymentStatusVerified)
	requireCode(t, err, apperror.ErrCodeForbidden)

	_, err = f.escrow.Bookings.StartWork(f.ctx, f.creator, b.ID)
	requireCode(t, err, apperror.ErrCodeInvalidTransition)

	_, err = f.escrow.Bookings.Deliver(f.ctx, f.creator, b.ID, DeliveryInput{})
	requireCode(t, err, apperror.ErrCodeValidation)
}

func TestEscrow_StartWorkThenDeliverWithFiles(t *testing.T) {
	f := newFixture(t)
	b := f.paid(t)

	started, err := f.escrow.Bookings.StartWork(f.ctx, f.creator, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusInProgress, started.Status)

	_, err = f.escrow.Bookings.Deliver(f.ctx, f.creator, b.ID, DeliveryInput{
		Links: []string{"https://drive.example.com/v1"},
		Files: []ArtifactFile{{URI: b.ID.String() + "/cut.mp4", MimeType: "video/mp4", Size: 2048}},
	})
	require.NoError(t, err)

	details, err := f.escrow.Bookings.Get(f.ctx, f.client, b.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.BookingStatusDelivered, details.Booking.Status)
	require.Len(t, details.Artifacts, 2)
	assert.Nil(t, details.Obligation)
	assert.Len(t, details.Payments, 1)
}

func TestEscrow_ConfirmPaymentRequiresVerifiedRecord(t *testing.T) {
	f := newFixture(t)
	b, _ := f.checkout(t)

	_, err := f.escrow.Bookings.ConfirmPayment(f.ctx, f.admin, b.ID)
	requireCode(t, err, apperror.ErrCodePaymentNotVerified)
	assert.Equal(t, valueobject.BookingStatusPendingPayment, f.booking(t, b.ID).Status)
}

func TestEscrow_CheckoutGuards(t *testing.T) {
	f := newFixture(t)

	_, err := f.escrow.Bookings.CreateBooking(f.ctx, models.Actor{ID: f.creator.ID, Role: valueobject.RoleClient}, CheckoutInput{
		ServiceID: f.service.ServiceID,
		Network:   "polygon",
		TxRef:     nextTxRef(),
	})
	requireCode(t, err, apperror.ErrCodeForbidden)

	_, err = f.escrow.Bookings.CreateBooking(f.ctx, f.client, CheckoutInput{
		ServiceID: f.service.ServiceID,
		Network:   "dogecoin",
		TxRef:     nextTxRef(),
	})
	requireCode(t, err, apperror.ErrCodeValidation)

	ref := nextTxRef()
	_, err = f.escrow.Bookings.CreateBooking(f.ctx, f.client, CheckoutInput{ServiceID: f.service.ServiceID, Network: "polygon", TxRef: ref})
	require.NoError(t, err)
	_, err = f.escrow.Bookings.CreateBooking(f.ctx, f.client, CheckoutInput{ServiceID: f.service.ServiceID, Network: "polygon", TxRef: ref})
	requireCode(t, err, apperror.ErrCodeConflict)
}

func TestEscrow_PriceFrozenAtCheckout(t *testing.T) {
	f := newFixture(t)
	b, _ := f.checkout(t)

	changed := f.service
	changed.Price = decimal.NewFromInt(500)
	f.store.AddService(changed)

	assert.True(t, f.booking(t, b.ID).Amount.Equal(decimal.NewFromInt(100)))
}

func TestEscrow_TierPayment(t *testing.T) {
	f := newFixture(t)

	_, err := f.escrow.Payments.SubmitPayment(f.ctx, f.client, SubmitPaymentInput{
		Purpose: valueobject.PaymentPurposeCreatorTier,
		Tier:    "pro",
		Network: "polygon",
		Amount:  "49.99",
		TxRef:   nextTxRef(),
	})
	requireCode(t, err, apperror.ErrCodeForbidden)

	p, err := f.escrow.Payments.SubmitPayment(f.ctx, f.creator, SubmitPaymentInput{
		Purpose: valueobject.PaymentPurposeCreatorTier,
		Tier:    "pro",
		Network: "polygon",
		Amount:  "49.99",
		TxRef:   nextTxRef(),
	})
	require.NoError(t, err)
	assert.Nil(t, p.BookingID)
	assert.Equal(t, "USDT", p.Currency)

	_, err = f.escrow.Payments.VerifyPayment(f.ctx, f.admin, p.ID, valueobject.PaymentStatusVerified)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.pub.Has(events.TypeTierGranted) }, time.Second, 5*time.Millisecond)
}

func TestEscrow_PublishesEventsAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.delivered(t)

	require.Eventually(t, func() bool {
		return f.pub.Has(events.TypeBookingCreated) &&
			f.pub.Has(events.TypePaymentSubmitted) &&
			f.pub.Has(events.TypePaymentVerified) &&
			f.pub.Has(events.TypeBookingStatusChanged)
	}, time.Second, 5*time.Millisecond)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	for _, e := range f.pub.events {
		if e.Type == events.TypeBookingStatusChanged {
			assert.Contains(t, e.Recipients, f.client.ID)
			assert.Contains(t, e.Recipients, f.creator.ID)
		}
	}
}

func TestEscrow_FailedTransactionPublishesNothing(t *testing.T) {
	f := newFixture(t)
	b := f.delivered(t)
	_, err := f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.pub.Has(events.TypeObligationCreated) }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	before := len(f.pub.Types())

	_, err = f.escrow.Bookings.Accept(f.ctx, f.client, b.ID)
	requireCode(t, err, apperror.ErrCodeInvalidTransition)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.pub.Types(), before)
}
