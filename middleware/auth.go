package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"teacher-dashboard-api/utils"
)

// RequireAuth checks a bearer JWT signed with secret. An empty secret
// disables the check.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(tokenString, secret)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token", gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Subject)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
