package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func SetupRootRoutes(router *gin.Engine, vectorBackend string) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Teacher Dashboard API is running"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"vector_backend": vectorBackend,
			"timestamp":      time.Now().UTC(),
		})
	})
}
