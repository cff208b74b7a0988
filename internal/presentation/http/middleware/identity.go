// Package middleware provides HTTP middleware for the presentation layer.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/security"
	"github.com/slatedeck/slatedeck-go/pkg/config"
)

const participantKey = "participant"

// IdentityMiddleware verifies the participant token issued by the identity
// service and stores the verified participant on the request context.
// Websocket upgrades carry the token as a query parameter because browsers
// cannot set headers on websocket requests.
func IdentityMiddleware(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		claims, err := security.ValidateJWT(token, config.JWTSecret)
		if err != nil {
			logger.Auth().Warn("Token validation failed", "path", c.Request.URL.Path, "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		participant, err := security.ParticipantFromClaims(claims)
		if err != nil {
			logger.Auth().Warn("Token missing participant identity", "path", c.Request.URL.Path)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(participantKey, participant)
		c.Next()
	}
}

// GetParticipant returns the verified participant stored by
// IdentityMiddleware.
func GetParticipant(c *gin.Context) (*entities.Participant, bool) {
	value, exists := c.Get(participantKey)
	if !exists {
		return nil, false
	}
	participant, ok := value.(*entities.Participant)
	return participant, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
