package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter creates and configures the HTTP router with all endpoints.
// Uses RouterConfig to receive all dependencies, improving testability
// and reducing parameter count.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())

	// Panics surface as the generic error envelope; details stay in the log.
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"reason": "internal-error",
		})
	}))

	// Health endpoints
	health := NewHealthController(cfg.Database, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Info endpoint used by clients to check server build compatibility
	router.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"build": gin.H{
				"name":    "syncserver",
				"version": cfg.Version,
			},
		})
	})

	if cfg.AccountController != nil {
		cfg.AccountController.RegisterRoutes(router)
	}
	if cfg.SecretsController != nil {
		cfg.SecretsController.RegisterRoutes(router)
	}

	return router
}
