package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/utils"
)

// WebSocketAuthMiddleware resolves who is opening the push channel. Staff
// pass a JWT in ?token=; customers connect with role=customer and their
// session scope, which the handler checks against the database.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.ToLower(c.Query("role"))

		if role == "" || role == models.RoleCustomer {
			if c.Query("scope") == "" {
				c.AbortWithStatus(http.StatusBadRequest)
				return
			}
			c.Set(CtxRole, models.RoleCustomer)
			c.Next()
			return
		}

		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(CtxRole, claims.Role)
		c.Set(CtxUserID, claims.UserID)

		c.Next()
	}
}
