// Package memory хранилище в памяти с теми же условными обновлениями и уникальными
// ограничениями, что и PostgreSQL. Используется в тестах и при STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

type state struct {
	bookings      map[uuid.UUID]models.Booking
	bookingOrder  []uuid.UUID
	history       []models.BookingHistory
	artifacts     []models.DeliveryArtifact
	payments      map[uuid.UUID]models.PaymentRecord
	paymentOrder  []uuid.UUID
	tierGrants    map[uuid.UUID]models.CreatorTierGrant
	disputes      map[uuid.UUID]models.Dispute
	disputeOrder  []uuid.UUID
	obligations   map[uuid.UUID]models.SettlementObligation
	obligationIDs []uuid.UUID
	permissions   map[valueobject.Role][]string
	services      map[uuid.UUID]models.ServiceSnapshot
	addresses     map[addressKey]string
}

type addressKey struct {
	userID  uuid.UUID
	network string
}

func newState() *state {
	return &state{
		bookings:    make(map[uuid.UUID]models.Booking),
		payments:    make(map[uuid.UUID]models.PaymentRecord),
		tierGrants:  make(map[uuid.UUID]models.CreatorTierGrant),
		disputes:    make(map[uuid.UUID]models.Dispute),
		obligations: make(map[uuid.UUID]models.SettlementObligation),
		permissions: make(map[valueobject.Role][]string),
		services:    make(map[uuid.UUID]models.ServiceSnapshot),
		addresses:   make(map[addressKey]string),
	}
}

func (s *state) clone() *state {
	c := &state{
		bookings:      make(map[uuid.UUID]models.Booking, len(s.bookings)),
		bookingOrder:  append([]uuid.UUID(nil), s.bookingOrder...),
		history:       append([]models.BookingHistory(nil), s.history...),
		artifacts:     append([]models.DeliveryArtifact(nil), s.artifacts...),
		payments:      make(map[uuid.UUID]models.PaymentRecord, len(s.payments)),
		paymentOrder:  append([]uuid.UUID(nil), s.paymentOrder...),
		tierGrants:    make(map[uuid.UUID]models.CreatorTierGrant, len(s.tierGrants)),
		disputes:      make(map[uuid.UUID]models.Dispute, len(s.disputes)),
		disputeOrder:  append([]uuid.UUID(nil), s.disputeOrder...),
		obligations:   make(map[uuid.UUID]models.SettlementObligation, len(s.obligations)),
		obligationIDs: append([]uuid.UUID(nil), s.obligationIDs...),
		permissions:   make(map[valueobject.Role][]string, len(s.permissions)),
		services:      make(map[uuid.UUID]models.ServiceSnapshot, len(s.services)),
		addresses:     make(map[addressKey]string, len(s.addresses)),
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.tierGrants {
		c.tierGrants[k] = v
	}
	for k, v := range s.disputes {
		c.disputes[k] = v
	}
	for k, v := range s.obligations {
		c.obligations[k] = v
	}
	for k, v := range s.permissions {
		c.permissions[k] = append([]string(nil), v...)
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	return c
}

// Store реализация repository.Store в памяти.
// Транзакции сериализуются и работают над копией состояния, которая подменяет
// основное только при успешном завершении.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

var _ repository.Store = (*Store)(nil)

// New создаёт хранилище с матрицей прав по умолчанию.
func New() *Store {
	s := &Store{st: newState()}
	for role, actions := range DefaultPermissions() {
		s.st.permissions[role] = append([]string(nil), actions...)
	}
	return s
}

// DefaultPermissions совпадает с сидом миграции role_permissions.
func DefaultPermissions() map[valueobject.Role][]string {
	return map[valueobject.Role][]string{
		valueobject.RoleAdmin:   {"payment.verify", "dispute.resolve", "settlement.execute", "ledger.read", "policy.reload"},
		valueobject.RoleClient:  {"booking.create", "booking.accept", "dispute.open", "payment.submit"},
		valueobject.RoleCreator: {"booking.start", "booking.deliver", "booking.reject", "dispute.open", "payment.submit"},
	}
}

func (s *Store) Repos() repository.Repos {
	return newRepos(&handle{store: s})
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.st.clone()
	s.mu.RUnlock()

	if err := fn(newRepos(&handle{store: s, tx: working})); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = working
	s.mu.Unlock()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddService регистрирует услугу каталога.
func (s *Store) AddService(snapshot models.ServiceSnapshot) {
	s.write(func(st *state) error {
		st.services[snapshot.ServiceID] = snapshot
		return nil
	})
}

// SetPayoutAddress регистрирует адрес пользователя в сети.
func (s *Store) SetPayoutAddress(userID uuid.UUID, network, address string) {
	s.write(func(st *state) error {
		st.addresses[addressKey{userID: userID, network: network}] = address
		return nil
	})
}

// SetPermissions заменяет набор действий роли.
func (s *Store) SetPermissions(role valueobject.Role, actions []string) {
	s.write(func(st *state) error {
		st.permissions[role] = append([]string(nil), actions...)
		return nil
	})
}

func (s *Store) write(fn func(*state) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) read(fn func(*state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

// handle привязывает репозитории либо к основному состоянию, либо к копии транзакции.
type handle struct {
	store *Store
	tx    *state
}

func (h *handle) read(fn func(*state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	return h.store.read(fn)
}

func (h *handle) write(fn func(*state) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	return h.store.write(fn)
}

func newRepos(h *handle) repository.Repos {
	return repository.Repos{
		Bookings:    &bookingRepo{h: h},
		Payments:    &paymentRepo{h: h},
		Disputes:    &disputeRepo{h: h},
		Obligations: &obligationRepo{h: h},
		Policies:    &policyRepo{h: h},
		Directory:   &directoryRepo{h: h},
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func page[T any](items []T, limit, offset int) []T {
	limit = normalizeLimit(limit)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
