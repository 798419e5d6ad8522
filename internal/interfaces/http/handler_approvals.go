package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"replygate/internal/entities"
	"replygate/internal/usecases"
)

func (h *Handler) GetPendingApprovals(c *gin.Context) {
	approvals, err := h.Approvals.GetPendingApprovals(c.Request.Context(), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if approvals == nil {
		approvals = []entities.Approval{}
	}
	c.JSON(http.StatusOK, approvals)
}

func (h *Handler) GetApproval(c *gin.Context) {
	a, err := h.Approvals.GetApproval(c.Request.Context(), c.Param("id"), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// UpdateApprovalStatus records the disposition and, for APPROVED, hands
// the action to the dispatcher. A full queue does not undo the approval;
// the action is picked up again on restart.
func (h *Handler) UpdateApprovalStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	status, err := usecases.ParseApprovalStatus(req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	id := identityFrom(c)
	updated, err := h.Approvals.UpdateApprovalStatus(c.Request.Context(), c.Param("id"), status, id.UserID, id.BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if status == entities.ApprovalApproved {
		if err := h.Dispatcher.Enqueue(updated.ID); err != nil {
			h.log.Warn().Err(err).Str("approval_id", updated.ID).Msg("approved action not queued, left for periodic recovery")
		}
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.Approvals.ListRules(c.Request.Context(), identityFrom(c).BusinessID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rules == nil {
		rules = []entities.WorkflowRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) UpsertRule(c *gin.Context) {
	intent := c.Param("intent")
	if !ValidIntentName(intent) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid intent name"})
		return
	}
	var req struct {
		RequiresApproval *bool    `json:"requires_approval"`
		MinConfidence    *float64 `json:"min_confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RequiresApproval == nil || req.MinConfidence == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "requires_approval and min_confidence are required"})
		return
	}

	rule, err := h.Approvals.UpsertRule(c.Request.Context(), identityFrom(c).BusinessID, intent, *req.RequiresApproval, *req.MinConfidence)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
