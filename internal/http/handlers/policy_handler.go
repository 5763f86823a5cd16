package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/creator-escrow/internal/http/handlers/common"
	"github.com/ignatzorin/creator-escrow/internal/service"
)

// PolicyHandler управление кешем прав ролей.
type PolicyHandler struct {
	policy *service.AccessPolicy
}

func NewPolicyHandler(policy *service.AccessPolicy) *PolicyHandler {
	return &PolicyHandler{policy: policy}
}

// Reload POST /api/admin/policies/reload
func (h *PolicyHandler) Reload(c *gin.Context) {
	actor, err := common.CurrentActor(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	if err := h.policy.Reload(c.Request.Context(), actor); err != nil {
		common.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
