// Package api is the reference HTTP host. The dispatcher and engine are
// transport-agnostic; everything gin-specific stays in this package and in
// internal/middleware.
package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/admingate/admingate/internal/app"
	"github.com/admingate/admingate/internal/dispatch"
	"github.com/admingate/admingate/internal/handlers"
	"github.com/admingate/admingate/internal/middleware"
	"github.com/admingate/admingate/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the command
// endpoint plus the token administration surface.
func NewRouter(cfg *app.Config, dispatcher *dispatch.Dispatcher, tokens *services.TokenService) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher must be provided")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	if cfg.Monitoring.Health.Enabled {
		r.GET("/api/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	commandHandler, err := handlers.NewCommandHandler(dispatcher)
	if err != nil {
		return nil, err
	}
	tokenHandler, err := handlers.NewTokenHandler(tokens)
	if err != nil {
		return nil, err
	}

	requireAuth := middleware.Auth(tokens)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.POST("/mcp", commandHandler.Invoke)
	api.GET("/mcp/commands", commandHandler.List)

	// Token administration rides on the same bearer auth; bootstrap tokens
	// are minted out of band.
	adminTokens := api.Group("/tokens")
	{
		adminTokens.POST("", tokenHandler.Create)
		adminTokens.GET("", tokenHandler.List)
		adminTokens.POST("/:id/regenerate", tokenHandler.Regenerate)
		adminTokens.DELETE("/:id", tokenHandler.Deactivate)
	}

	return r, nil
}
