package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/services/quota"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports the live quota scheduler state per connected account
func Status(registry *quota.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"schedulers": registry.Stats(),
		})
	}
}
