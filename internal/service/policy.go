package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/logger"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/repository"
)

// Действия из таблицы role_permissions.
const (
	ActionBookingCreate     = "booking.create"
	ActionBookingStart      = "booking.start"
	ActionBookingDeliver    = "booking.deliver"
	ActionBookingAccept     = "booking.accept"
	ActionBookingReject     = "booking.reject"
	ActionDisputeOpen       = "dispute.open"
	ActionDisputeResolve    = "dispute.resolve"
	ActionPaymentSubmit     = "payment.submit"
	ActionPaymentVerify     = "payment.verify"
	ActionSettlementExecute = "settlement.execute"
	ActionLedgerRead        = "ledger.read"
	ActionPolicyReload      = "policy.reload"
)

// AccessPolicy отвечает на вопрос "может ли роль выполнить действие".
// Права читаются из хранилища и кешируются на ttl.
type AccessPolicy struct {
	store repository.PolicyStore
	cache *CacheService
	ttl   time.Duration
}

func NewAccessPolicy(store repository.PolicyStore, cache *CacheService, ttl time.Duration) *AccessPolicy {
	return &AccessPolicy{store: store, cache: cache, ttl: ttl}
}

// Allowed проверяет право роли на действие.
func (p *AccessPolicy) Allowed(ctx context.Context, role valueobject.Role, action string) (bool, error) {
	if !role.IsValid() {
		return false, nil
	}

	actions, err := p.permissions(ctx, role)
	if err != nil {
		return false, err
	}
	for _, a := range actions {
		if a == action {
			return true, nil
		}
	}
	return false, nil
}

// Require возвращает Forbidden, если у роли актора нет права.
func (p *AccessPolicy) Require(ctx context.Context, actor models.Actor, action string) error {
	ok, err := p.Allowed(ctx, actor.Role, action)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return apperror.Newf(apperror.ErrCodeForbidden, "действие %s недоступно для роли %s", action, actor.Role)
	}
	return nil
}

// Invalidate сбрасывает кеш прав, например после изменения таблицы.
func (p *AccessPolicy) Invalidate() {
	if p.cache != nil {
		p.cache.InvalidateByPrefix(permissionsCachePrefix)
	}
}

// Reload сбрасывает кеш по запросу администратора, чтобы правки role_permissions
// действовали сразу, а не после истечения ttl.
func (p *AccessPolicy) Reload(ctx context.Context, actor models.Actor) error {
	if err := p.Require(ctx, actor, ActionPolicyReload); err != nil {
		return err
	}
	p.Invalidate()
	logger.WithFields(logrus.Fields{"actor_id": actor.ID}).Info("role permissions cache invalidated")
	return nil
}

func (p *AccessPolicy) permissions(ctx context.Context, role valueobject.Role) ([]string, error) {
	if p.cache == nil || p.ttl <= 0 {
		return p.store.Permissions(ctx, role)
	}

	v, err := p.cache.GetOrSet(ctx, PermissionsCacheKey(role), p.ttl, func(ctx context.Context) (interface{}, error) {
		return p.store.Permissions(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	actions, _ := v.([]string)
	return actions, nil
}

// requireOwner проверяет, что актор выступает стороной бронирования в своей роли.
func requireOwner(actor models.Actor, b *models.Booking, role valueobject.Role) error {
	if actor.Role != role {
		return apperror.ErrForbidden
	}
	switch role {
	case valueobject.RoleClient:
		if b.ClientID == actor.ID {
			return nil
		}
	case valueobject.RoleCreator:
		if b.CreatorID == actor.ID {
			return nil
		}
	}
	return apperror.ErrForbidden
}

// canView участники бронирования или роль с ledger.read.
func (c *core) canView(ctx context.Context, actor models.Actor, b *models.Booking) error {
	if b.IsParticipant(actor.ID) {
		return nil
	}
	return c.policy.Require(ctx, actor, ActionLedgerRead)
}
