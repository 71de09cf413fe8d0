// Package http exposes a small monitor surface for long batch runs:
// liveness, progress counters and Prometheus metrics.
package http

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ukclimate/gridalign/internal/batch"
)

// ProgressReporter is the slice of the batch manager the monitor needs.
type ProgressReporter interface {
	Progress() batch.Progress
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(reporter ProgressReporter) *gin.Engine {
	router := gin.Default()

	// A dashboard polling progress may live on another origin.
	corsConfig := cors.DefaultConfig()
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/v1")
	v1.GET("/progress", func(c *gin.Context) {
		c.JSON(http.StatusOK, reporter.Progress())
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
