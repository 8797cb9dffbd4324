// Package server exposes an ElevationService over HTTP.
package server

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/twpayne/go-hgt"
	"github.com/twpayne/go-hgt/internal/config"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(service *hgt.ElevationService, cfg config.ServerConfig, logger *slog.Logger) (*gin.Engine, error) {
	defaultMethod, err := hgt.ParseMethod(cfg.DefaultMethod)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	// Only listed proxies may set the client address with X-Forwarded-For,
	// so rate limiting is keyed on the connection's peer by default.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(requestLogger(logger), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	handler := NewHandler(service, defaultMethod, logger)

	elevation := router.Group("/v1/elevation")
	if cfg.RateLimit > 0 {
		elevation.Use(newRateLimiter(cfg.RateLimit, cfg.RateBurst).middleware())
	}
	elevation.GET("/json", handler.GetElevation)
	elevation.POST("/json", handler.PostElevations)
	if cfg.VizEnabled {
		elevation.GET("/viz", handler.GetViz)
	}

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.DebugContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
		)
	}
}
