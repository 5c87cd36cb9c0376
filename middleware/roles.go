package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"teacher-dashboard-api/utils"
)

const (
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// RequireRole lets the request through only when the authenticated role is one
// of allowedRoles. It must run after RequireAuth.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			utils.RespondWithUnauthorized(c, "User role not found")
			c.Abort()
			return
		}

		if !slices.Contains(allowedRoles, role) {
			utils.RespondWithError(c, http.StatusForbidden, "forbidden", "Insufficient permissions", gin.H{
				"required_roles": allowedRoles,
				"user_role":      role,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func GetRole(c *gin.Context) string {
	if v, ok := c.Get("role"); ok {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}
