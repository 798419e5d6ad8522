package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"replygate/internal/usecases"
)

func (h *Handler) Signup(c *gin.Context) {
	var req usecases.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	req.Name = TruncateString(SanitizeString(req.Name), MaxNameLength)
	req.BusinessName = TruncateString(SanitizeString(req.BusinessName), MaxNameLength)

	res, err := h.Auth.Signup(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	res, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
