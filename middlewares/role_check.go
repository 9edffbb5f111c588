package middlewares

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-qr/models"
	"github.com/yeremiapane/restaurant-qr/utils"
)

// RequireRoles lets the request through when the authenticated role is one
// of roles. Admin is always allowed.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles)+1)
	for _, r := range roles {
		allowed[strings.ToLower(r)] = true
	}
	allowed[models.RoleAdmin] = true
	denied := fmt.Errorf("%s access required", strings.Join(append([]string{models.RoleAdmin}, roles...), " or "))

	return func(c *gin.Context) {
		userRole, exists := c.Get(CtxRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		if !allowed[strings.ToLower(role)] {
			utils.RespondError(c, http.StatusForbidden, denied)
			c.Abort()
			return
		}

		c.Next()
	}
}
