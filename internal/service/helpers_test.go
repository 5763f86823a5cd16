package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/events"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/repository/memory"
)

const (
	creatorAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	clientSender   = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) Has(eventType string) bool {
	for _, t := range p.Types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	ctx     context.Context
	store   *memory.Store
	escrow  *Escrow
	clock   *fakeClock
	pub     *recordingPublisher
	client  models.Actor
	creator models.Actor
	admin   models.Actor
	service models.ServiceSnapshot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}

	cache := NewCacheService(0)
	t.Cleanup(cache.Close)

	f := &fixture{
		ctx:     context.Background(),
		store:   store,
		clock:   clock,
		pub:     pub,
		client:  models.Actor{ID: uuid.New(), Role: valueobject.RoleClient},
		creator: models.Actor{ID: uuid.New(), Role: valueobject.RoleCreator},
		admin:   models.Actor{ID: uuid.New(), Role: valueobject.RoleAdmin},
	}
	f.service = models.ServiceSnapshot{
		ServiceID:    uuid.New(),
		CreatorID:    f.creator.ID,
		Title:        "Монтаж ролика",
		Price:        decimal.NewFromInt(100),
		Currency:     "USDT",
		DeliveryDays: 5,
		IsActive:     true,
	}
	store.AddService(f.service)
	store.SetPayoutAddress(f.creator.ID, "polygon", creatorAddress)

	f.escrow = NewEscrow(Deps{
		Store:     store,
		Policy:    NewAccessPolicy(store.Repos().Policies, cache, time.Minute),
		Publisher: pub,
		Rules:     DefaultEscrowRules(),
		Clock:     clock.Now,
	})
	return f
}

var txSeq struct {
	mu sync.Mutex
	n  int
}

func nextTxRef() string {
	txSeq.mu.Lock()
	defer txSeq.mu.Unlock()
	txSeq.n++
	return fmt.Sprintf("0x%064x", txSeq.n)
}

// checkout оформляет бронирование с pending-платежом.
func (f *fixture) checkout(t *testing.T) (*models.Booking, *models.PaymentRecord) {
	t.Helper()
	res, err := f.escrow.Bookings.CreateBooking(f.ctx, f.client, CheckoutInput{
		ServiceID:     f.service.ServiceID,
		Network:       "polygon",
		TxRef:         nextTxRef(),
		SenderAddress: clientSender,
	})
	require.NoError(t, err)
	return res.Booking, res.Payment
}

// paid доводит бронирование до оплаты.
func (f *fixture) paid(t *testing.T) *models.Booking {
	t.Helper()
	b, p := f.checkout(t)
	_, err := f.escrow.Payments.VerifyPayment(f.ctx, f.admin, p.ID, valueobject.PaymentStatusVerified)
	require.NoError(t, err)
	return f.booking(t, b.ID)
}

// delivered доводит бронирование до сдачи работы.
func (f *fixture) delivered(t *testing.T) *models.Booking {
	t.Helper()
	b := f.paid(t)
	_, err := f.escrow.Bookings.Deliver(f.ctx, f.creator, b.ID, DeliveryInput{
		Links: []string{"https://drive.example.com/video.mp4"},
	})
	require.NoError(t, err)
	return f.booking(t, b.ID)
}

func (f *fixture) booking(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	b, err := f.store.Repos().Bookings.GetByID(f.ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) obligation(t *testing.T, bookingID uuid.UUID) *models.SettlementObligation {
	t.Helper()
	o, err := f.store.Repos().Obligations.GetByBooking(f.ctx, bookingID)
	require.NoError(t, err)
	return o
}

func requireCode(t *testing.T, err error, code apperror.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperror.HasCode(err, code), "want %s, got %v", code, err)
}
