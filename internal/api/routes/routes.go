package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/vigil-sec/vigil/internal/api/handlers"
	"github.com/vigil-sec/vigil/internal/api/middleware"
	"github.com/vigil-sec/vigil/internal/config"
	"github.com/vigil-sec/vigil/internal/models"
	"github.com/vigil-sec/vigil/internal/store"
	"github.com/vigil-sec/vigil/internal/telemetry"
)

// Deps carries the pipeline components the routes wire into.
type Deps struct {
	Store       store.Store
	Interceptor *middleware.Interceptor
	Sink        *telemetry.Sink
	Registry    *prometheus.Registry
}

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg *config.Config, deps Deps) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.RequestRecord{},
		&models.CalibratedCase{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(cfg.Environment != "production"))

	router.GET("/api/v1/health", handlers.HealthHandler)
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	// Operator API. Not intercepted: enforcement decisions must stay
	// reachable while an incident is in progress.
	mitigationHandler := handlers.NewMitigationHandler(db, deps.Store, deps.Sink)
	api := router.Group("/api/v1")
	api.GET("/mitigations", mitigationHandler.ListMitigations)
	api.DELETE("/mitigations/:entity_type/:entity", mitigationHandler.DeleteMitigation)
	api.GET("/cases", mitigationHandler.ListCases)
	api.PATCH("/cases/:uuid/outcome", mitigationHandler.UpdateOutcome)
	api.GET("/requests", mitigationHandler.ListRequests)

	// Protected demo application. Everything below goes through the
	// interceptor and feeds the analysis pipeline.
	protected := router.Group("/")
	protected.Use(deps.Interceptor.Handler())

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	protected.POST("/auth/login", authHandler.Login)

	demoHandler := handlers.NewDemoHandler()
	protected.GET("/api/search", demoHandler.Search)
	protected.GET("/api/products", demoHandler.Products)

	return nil
}
