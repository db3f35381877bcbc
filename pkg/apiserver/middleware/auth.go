package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/panelstack/quotad/pkg/auth"
	"github.com/panelstack/quotad/pkg/config"
)

// ContextSubject is the gin context key holding the authenticated token
// subject, used as the actor in audit entries.
const ContextSubject = "auth_subject"

func Auth(cfg config.AuthConfig) gin.HandlerFunc {
	var manager *auth.ServiceTokenManager
	if cfg.JWTSecret != "" {
		manager = auth.NewServiceTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL)
	}

	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization"})
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}
		if manager != nil {
			claims, err := manager.ValidateToken(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.Set(ContextSubject, claims.Subject)
		}
		c.Next()
	}
}
