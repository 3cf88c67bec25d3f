package middleware

import (
	"net/http"
	"strings"

	"github.com/vilass86/cardgame/internal/domain"
	"github.com/vilass86/cardgame/internal/service"

	"github.com/gin-gonic/gin"
)

// AddressKey is where JWT stores the caller's ledger address.
const AddressKey = "address"

// JWT requires a bearer token and sets the caller address on the context.
func JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "code": domain.CodeUnauthorized})
			return
		}

		address, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": domain.CodeUnauthorized})
			return
		}

		c.Set(AddressKey, address)
		c.Next()
	}
}

// Address returns the authenticated caller, if any.
func Address(c *gin.Context) (string, bool) {
	v, ok := c.Get(AddressKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
