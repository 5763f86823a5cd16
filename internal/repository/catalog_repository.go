package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/models"
)

// CatalogRepository читает таблицы каталога и профилей, которыми владеют другие сервисы.
type CatalogRepository struct {
	db sqlx.ExtContext
}

func NewCatalogRepository(db sqlx.ExtContext) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ServiceSnapshot возвращает услугу для фиксации в бронировании.
func (r *CatalogRepository) ServiceSnapshot(ctx context.Context, serviceID uuid.UUID) (*models.ServiceSnapshot, error) {
	var s models.ServiceSnapshot
	err := sqlx.GetContext(ctx, r.db, &s, `
		SELECT id, creator_id, title, price, currency, delivery_days, is_active
		FROM services WHERE id = $1
	`, serviceID)
	if isNoRows(err) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog repository: service snapshot %w", err)
	}
	return &s, nil
}

func (r *CatalogRepository) PayoutAddress(ctx context.Context, userID uuid.UUID, network string) (string, error) {
	var address string
	err := sqlx.GetContext(ctx, r.db, &address, `
		SELECT address FROM payout_addresses WHERE user_id = $1 AND network = $2
	`, userID, network)
	if isNoRows(err) {
		return "", ErrAddressNotFound
	}
	if err != nil {
		return "", fmt.Errorf("catalog repository: payout address %w", err)
	}
	return address, nil
}

type PolicyRepository struct {
	db sqlx.ExtContext
}

func NewPolicyRepository(db sqlx.ExtContext) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Permissions возвращает действия, разрешённые роли.
func (r *PolicyRepository) Permissions(ctx context.Context, role valueobject.Role) ([]string, error) {
	var actions []string
	err := sqlx.SelectContext(ctx, r.db, &actions, `
		SELECT action FROM role_permissions WHERE role = $1 ORDER BY action
	`, role)
	if err != nil {
		return nil, fmt.Errorf("policy repository: permissions %w", err)
	}
	return actions, nil
}
