package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/http/handlers/common"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

// SettlementHandler отчёты и исполнение обязательств.
type SettlementHandler struct {
	settlement *service.SettlementService
}

func NewSettlementHandler(s *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlement: s}
}

// List GET /api/admin/settlements?direction=&executed=
func (h *SettlementHandler) List(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	filter := models.ObligationFilter{Limit: limit, Offset: offset}

	if raw := common.OptionalQuery(c, "direction"); raw != nil {
		direction := valueobject.SettlementDirection(*raw)
		if !direction.IsValid() {
			common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "direction должен быть payout или refund"))
			return
		}
		filter.Direction = &direction
	}
	executed, err := common.ParseBoolQuery(c, "executed")
	if err != nil {
		common.RespondError(c, err)
		return
	}
	filter.Executed = executed

	obligations, err := h.settlement.List(c.Request.Context(), actor, filter)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondList(c, obligations, limit, offset)
}

// Execute POST /api/admin/settlements/:id/execute
func (h *SettlementHandler) Execute(c *gin.Context) {
	actor, obligationID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.ExecuteObligationRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	var executedAt *time.Time
	if req.ExecutedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExecutedAt)
		if err != nil {
			common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "executed_at должен быть в формате RFC3339"))
			return
		}
		executedAt = &t
	}

	obligation, err := h.settlement.RecordExecution(c.Request.Context(), actor, obligationID, service.ExecutionInput{
		TxRef:              req.TxRef,
		BeneficiaryAddress: req.BeneficiaryAddress,
		ExecutedAt:         executedAt,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, obligation)
}
