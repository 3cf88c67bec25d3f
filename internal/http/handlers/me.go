package handlers

import (
	"net/http"
	"strconv"

	"github.com/vilass86/cardgame/internal/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Me(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	balance, err := h.Balances.GetBalance(c.Request.Context(), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"balance": balance,
	})
}

func (h *Handler) MyTransactions(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	txs, err := h.Balances.History(c.Request.Context(), addr, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
