package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/repository/common"
)

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrObligationNotFound = errors.New("obligation not found")
	ErrServiceNotFound    = errors.New("service not found")
	ErrAddressNotFound    = errors.New("payout address not found")

	// ErrDuplicate нарушение уникальности (tx_ref, открытый спор, обязательство).
	ErrDuplicate = common.ErrAlreadyExists
	// ErrStaleState условное обновление не затронуло строк.
	ErrStaleState = common.ErrStaleState
)

type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// GetByIDForUpdate блокирует строку до конца транзакции; решения, зависящие
	// от набора платежей бронирования, принимаются под этой блокировкой.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListByParticipant(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	ListDueForAutoRelease(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	// Transition меняет статус только если текущий равен From, иначе ErrStaleState.
	Transition(ctx context.Context, t models.BookingTransition) error
	AppendHistory(ctx context.Context, h *models.BookingHistory) error
	ListHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingHistory, error)
	AddArtifacts(ctx context.Context, artifacts []models.DeliveryArtifact) error
	ListArtifacts(ctx context.Context, bookingID uuid.UUID) ([]models.DeliveryArtifact, error)
}

type PaymentStore interface {
	// Create возвращает ErrDuplicate, если tx_ref уже заявлен в этой сети.
	Create(ctx context.Context, p *models.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentRecord, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentRecord, error)
	CountPendingForBooking(ctx context.Context, bookingID uuid.UUID) (int, error)
	GetVerifiedForBooking(ctx context.Context, bookingID uuid.UUID) (*models.PaymentRecord, error)
	// Resolve переводит pending-запись в итоговый статус; ErrStaleState если она уже решена,
	// ErrDuplicate если у бронирования уже есть verified-запись.
	Resolve(ctx context.Context, id uuid.UUID, status valueobject.PaymentStatus, verifierID uuid.UUID, at time.Time) error
	GrantTier(ctx context.Context, g *models.CreatorTierGrant) error
}

type DisputeStore interface {
	// Create возвращает ErrDuplicate, если у бронирования уже есть открытый спор.
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	List(ctx context.Context, status *valueobject.DisputeStatus, limit, offset int) ([]models.Dispute, error)
	// Resolve закрывает только открытый спор, иначе ErrStaleState.
	Resolve(ctx context.Context, r models.DisputeResolution) error
}

type ObligationStore interface {
	// Create возвращает ErrDuplicate, если обязательство по бронированию уже есть.
	Create(ctx context.Context, o *models.SettlementObligation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SettlementObligation, error)
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.SettlementObligation, error)
	List(ctx context.Context, filter models.ObligationFilter) ([]models.SettlementObligation, error)
	// MarkExecuted записывает tx_ref один раз, иначе ErrStaleState. Пустой адрес
	// получателя заполняется из e.BeneficiaryAddress; если адреса нет нигде, ErrStaleState.
	MarkExecuted(ctx context.Context, e models.ObligationExecution) error
}

type PolicyStore interface {
	Permissions(ctx context.Context, role valueobject.Role) ([]string, error)
}

// DirectoryStore данные внешних каталога и профилей.
type DirectoryStore interface {
	ServiceSnapshot(ctx context.Context, serviceID uuid.UUID) (*models.ServiceSnapshot, error)
	PayoutAddress(ctx context.Context, userID uuid.UUID, network string) (string, error)
}

// Repos набор репозиториев, привязанных к одному соединению или транзакции.
type Repos struct {
	Bookings    BookingStore
	Payments    PaymentStore
	Disputes    DisputeStore
	Obligations ObligationStore
	Policies    PolicyStore
	Directory   DirectoryStore
}

// Store единица работы над хранилищем.
type Store interface {
	Repos() Repos
	WithinTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
}

// PostgresStore реализация Store поверх sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Repos() Repos {
	return newRepos(s.db)
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repos) error) error {
	return common.WithTransaction(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newRepos(tx))
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB для health-check статистики пула.
func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

func newRepos(db sqlx.ExtContext) Repos {
	return Repos{
		Bookings:    NewBookingRepository(db),
		Payments:    NewPaymentRepository(db),
		Disputes:    NewDisputeRepository(db),
		Obligations: NewObligationRepository(db),
		Policies:    NewPolicyRepository(db),
		Directory:   NewCatalogRepository(db),
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
