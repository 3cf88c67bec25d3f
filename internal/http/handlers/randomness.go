package handlers

import (
	"encoding/hex"
	"net/http"

	"github.com/vilass86/cardgame/internal/vrf"

	"github.com/gin-gonic/gin"
)

type FulfillRequest struct {
	Nonce    string `json:"nonce" binding:"required"`
	RawValue string `json:"raw_value" binding:"required"`
	Proof    string `json:"proof" binding:"required"`
}

// FulfillRandomness accepts an oracle response. No token is needed: the
// proof is the only credential.
func (h *Handler) FulfillRandomness(c *gin.Context) {
	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "nonce, raw_value and proof are required")
		return
	}
	raw, err := hex.DecodeString(req.RawValue)
	if err != nil {
		badRequest(c, "raw_value must be hex")
		return
	}
	proof, err := hex.DecodeString(req.Proof)
	if err != nil {
		badRequest(c, "proof must be hex")
		return
	}

	s, err := h.Sessions.FulfillRandomness(c.Request.Context(), req.Nonce, raw, proof)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) PublicKey(c *gin.Context) {
	pub := h.Sessions.Coordinator().PublicKey()
	c.JSON(http.StatusOK, gin.H{
		"public_key":  pub.Hex(),
		"suite":       "Ed25519",
		"proof_size":  vrf.ProofSize(),
		"output_size": vrf.OutputSize,
	})
}
