package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mehrbod2002/mtdesk/internal/config"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func UserAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		userID, ok := claims["user_id"].(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in token"})
			return
		}
		if _, err := primitive.ObjectIDFromHex(userID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID format"})
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}
