package router

import (
	"net/http"
	"time"

	"school_resources_backend/internal/handlers"
	"school_resources_backend/internal/middleware"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/internal/services"
	"school_resources_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Store          repositories.Store
	Gate           services.Gate
	Metrics        *services.Metrics
	Gatherer       prometheus.Gatherer // nil disables /metrics
	AllowedOrigins []string
	Now            func() time.Time
}

// New builds an engine with the standard middleware chain and all routes.
func New(deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(utils.GinLogger())

	config := cors.DefaultConfig()
	config.AllowOrigins = deps.AllowedOrigins
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	config.ExposeHeaders = []string{middleware.RequestIDHeader}
	config.AllowCredentials = true
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = nil
		config.AllowAllOrigins = true
		config.AllowCredentials = false
	}
	engine.Use(cors.New(config))

	Setup(engine, deps)
	return engine
}

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, deps Dependencies) {
	gate := deps.Gate
	if gate == nil {
		gate = services.ClaimsGate{}
	}

	// Initialize Services
	inventoryService := services.NewInventoryService(deps.Store, gate, deps.Metrics)
	requestService := services.NewRequestService(deps.Store, gate, deps.Metrics)
	libraryService := services.NewLibraryService(deps.Store, gate, deps.Metrics, deps.Now)
	labService := services.NewLabService(deps.Store, gate, deps.Metrics)

	// Initialize Handlers
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	requestHandler := handlers.NewRequestHandler(requestService)
	libraryHandler := handlers.NewLibraryHandler(libraryService)
	labHandler := handlers.NewLabHandler(labService)

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	apiV1 := engine.Group("/api/v1")

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupInventoryRoutes(authenticated, inventoryHandler)
		SetupRequestRoutes(authenticated, requestHandler)
		SetupLibraryRoutes(authenticated, libraryHandler)
		SetupLabRoutes(authenticated, labHandler)
	}
}
