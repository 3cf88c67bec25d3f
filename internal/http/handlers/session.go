package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/service"

	"github.com/gin-gonic/gin"
)

type CreateSessionRequest struct {
	Stake      int64      `json:"stake"`
	Capacity   int        `json:"capacity"`
	MinPlayers int        `json:"min_players"`
	TTLSeconds int64      `json:"ttl_seconds"`
	Deadline   *time.Time `json:"deadline"`
	Ranker     string     `json:"ranker"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	p := service.CreateParams{
		Stake:      req.Stake,
		Capacity:   req.Capacity,
		MinPlayers: req.MinPlayers,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
		Ranker:     req.Ranker,
	}
	if req.Deadline != nil {
		p.Deadline = *req.Deadline
	}

	s, err := h.Sessions.Create(c.Request.Context(), addr, p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type callerInstruction func(ctx context.Context, id, addr string) (*domain.Session, error)

// callerAction runs an instruction on behalf of the authenticated caller.
func callerAction(c *gin.Context, fn callerInstruction) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	s, err := fn(c.Request.Context(), c.Param("id"), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) JoinSession(c *gin.Context)   { callerAction(c, h.Sessions.Join) }
func (h *Handler) LeaveSession(c *gin.Context)  { callerAction(c, h.Sessions.Leave) }
func (h *Handler) LockSession(c *gin.Context)   { callerAction(c, h.Sessions.Lock) }
func (h *Handler) CancelSession(c *gin.Context) { callerAction(c, h.Sessions.Cancel) }

func (h *Handler) RequestRandomness(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	req, err := h.Sessions.RequestRandomness(c.Request.Context(), c.Param("id"), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, req)
}

// ResolveSession may be called by anyone once randomness is fulfilled.
func (h *Handler) ResolveSession(c *gin.Context) {
	s, res, err := h.Sessions.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s, "result": res})
}

// ExpireSession may be called by anyone once the deadline passes.
func (h *Handler) ExpireSession(c *gin.Context) {
	s, err := h.Sessions.Expire(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) ClaimRefund(c *gin.Context) {
	addr, ok := caller(c)
	if !ok {
		return
	}
	r, err := h.Sessions.ClaimRefund(c.Request.Context(), c.Param("id"), addr)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) VerifySession(c *gin.Context) {
	v, err := h.Sessions.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) SessionAudit(c *gin.Context) {
	if h.Audit == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "audit trail requires the postgres backend"})
		return
	}
	logs, err := h.Audit.ListBySession(c.Request.Context(), c.Param("id"), 200)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []*domain.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}
