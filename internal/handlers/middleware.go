package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxUserID is the gin context key holding the authenticated user id.
const ctxUserID = "userId"

func (h *Handler) userIdMiddleware(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
		return
	}

	userId, err := h.services.ParseToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	c.Set(ctxUserID, userId)
	c.Next()
}
