package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/http/handlers/common"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(s *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: s}
}

// Open POST /api/bookings/:id/disputes
func (h *DisputeHandler) Open(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.OpenDisputeRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	dispute, err := h.svc.OpenDispute(c.Request.Context(), actor, bookingID, req.Reason)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

// Get GET /api/admin/disputes/:id
func (h *DisputeHandler) Get(c *gin.Context) {
	actor, disputeID, ok := actorAndID(c)
	if !ok {
		return
	}

	info, err := h.svc.Get(c.Request.Context(), actor, disputeID)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// List GET /api/admin/disputes?status=
func (h *DisputeHandler) List(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	var status *valueobject.DisputeStatus
	if raw := common.OptionalQuery(c, "status"); raw != nil {
		s := valueobject.DisputeStatus(*raw)
		if s != valueobject.DisputeStatusOpen && s != valueobject.DisputeStatusResolved {
			common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "статус спора должен быть open или resolved"))
			return
		}
		status = &s
	}

	limit, offset := common.GetPagination(c)
	disputes, err := h.svc.List(c.Request.Context(), actor, status, limit, offset)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	common.RespondList(c, disputes, limit, offset)
}

// Resolve POST /api/admin/disputes/:id/resolve
func (h *DisputeHandler) Resolve(c *gin.Context) {
	actor, disputeID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.ResolveDisputeRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	outcome, err := valueobject.NewDisputeOutcome(req.Outcome)
	if err != nil {
		common.RespondError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "outcome должен быть refund или release"))
		return
	}

	info, err := h.svc.ResolveDispute(c.Request.Context(), actor, disputeID, outcome, req.Note)
	if err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
