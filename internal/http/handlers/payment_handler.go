package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/creator-escrow/internal/dto"
	"github.com/ignatzorin/creator-escrow/internal/http/handlers/common"
	"github.com/ignatzorin/creator-escrow/internal/models"
	"github.com/ignatzorin/creator-escrow/internal/pkg/apperror"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// SubmitForBooking POST /api/bookings/:id/payments
func (h *PaymentHandler) SubmitForBooking(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.SubmitPaymentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	record, err := h.payments.SubmitPayment(c.Request.Context(), actor, service.SubmitPaymentInput{
		Purpose:       valueobject.PaymentPurposeServiceBooking,
		BookingID:     &bookingID,
		Network:       req.Network,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TxRef:         req.TxRef,
		SenderAddress: req.SenderAddress,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// ListByBooking GET /api/bookings/:id/payments
func (h *PaymentHandler) ListByBooking(c *gin.Context) {
	actor, bookingID, ok := actorAndID(c)
	if !ok {
		return
	}

	records, err := h.payments.ListByBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": records})
}

// SubmitTier POST /api/payments/tier
func (h *PaymentHandler) SubmitTier(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	var req dto.TierPaymentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	record, err := h.payments.SubmitPayment(c.Request.Context(), actor, service.SubmitPaymentInput{
		Purpose:       valueobject.PaymentPurposeCreatorTier,
		Tier:          req.Tier,
		Network:       req.Network,
		Amount:        req.Amount,
		Currency:      req.Currency,
		TxRef:         req.TxRef,
		SenderAddress: req.SenderAddress,
	})
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// List GET /api/admin/payments?status=&purpose=
func (h *PaymentHandler) List(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	limit, offset := common.GetPagination(c)
	filter := models.PaymentFilter{Limit: limit, Offset: offset}

	if raw := common.OptionalQuery(c, "status"); raw != nil {
		status := valueobject.PaymentStatus(*raw)
		if !status.IsValid() {
			common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "неверный статус платежа"))
			return
		}
		filter.Status = &status
	}
	if raw := common.OptionalQuery(c, "purpose"); raw != nil {
		purpose := valueobject.PaymentPurpose(*raw)
		if !purpose.IsValid() {
			common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "неверное назначение платежа"))
			return
		}
		filter.Purpose = &purpose
	}

	records, err := h.payments.List(c.Request.Context(), actor, filter)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondList(c, records, limit, offset)
}

// Verify POST /api/admin/payments/:id/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	actor, paymentID, ok := actorAndID(c)
	if !ok {
		return
	}

	var req dto.VerifyPaymentRequest
	if err := common.BindJSON(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	decision, err := valueobject.NewPaymentDecision(req.Decision)
	if err != nil {
		common.RespondError(c, apperror.Wrap(err, apperror.ErrCodeValidation, "decision должен быть verified или rejected"))
		return
	}

	record, err := h.payments.VerifyPayment(c.Request.Context(), actor, paymentID, decision)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}
