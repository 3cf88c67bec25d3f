package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/http/middleware"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/service"

	"github.com/gin-gonic/gin"
)

// AuditReader lists a session's audit trail. Only the Postgres backend has one.
type AuditReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.AuditLog, error)
}

type Handler struct {
	Sessions  *service.SessionService
	Balances  *service.BalanceService
	Audit     AuditReader
	DevTokens bool
}

func NewHandler(sessions *service.SessionService, balances *service.BalanceService) *Handler {
	return &Handler{Sessions: sessions, Balances: balances}
}

// caller returns the authenticated address or writes a 401.
func caller(c *gin.Context) (string, bool) {
	addr, ok := middleware.Address(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": domain.CodeUnauthorized})
	}
	return addr, ok
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrDuplicatePlayer),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrAlreadyFulfilled),
		errors.Is(err, domain.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProofVerificationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDeadlineNotReached):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrDeadlinePassed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "path", c.FullPath())
		c.JSON(status, gin.H{"error": "internal error", "code": domain.CodeInternal})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": domain.CodeOf(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": domain.CodeInvalidArgument})
}
