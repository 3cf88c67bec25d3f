package handlers

import (
	"net/http"
	"time"

	"github.com/vilass86/cardgame/internal/service"

	"github.com/gin-gonic/gin"
)

type TokenRequest struct {
	Address string `json:"address" binding:"required"`
	// Deposit optionally funds the address; development only.
	Deposit int64 `json:"deposit"`
}

// DevToken issues a token for any address. It only exists with AUTH_DEV_TOKENS=true.
func (h *Handler) DevToken(c *gin.Context) {
	if !h.DevTokens {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "address is required")
		return
	}

	if req.Deposit > 0 {
		if _, err := h.Balances.Deposit(c.Request.Context(), req.Address, req.Deposit, map[string]interface{}{"source": "dev_token"}); err != nil {
			respondError(c, err)
			return
		}
	}

	token, err := service.GenerateJWT(req.Address, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	balance, _ := h.Balances.GetBalance(c.Request.Context(), req.Address)

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"address": req.Address,
		"balance": balance,
	})
}
