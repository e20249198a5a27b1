package api

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/framez/framez-core/docs"
	"github.com/framez/framez-core/internal/api/handler"
	"github.com/framez/framez-core/internal/api/middleware"
	"github.com/framez/framez-core/internal/core/ports"
)

// Dependencies are the services and backing stores the router exposes.
// Mongo, Redis and Postgres are optional and only feed the readiness probe.
type Dependencies struct {
	Sessions ports.SessionService
	Posts    ports.PostService
	Feeds    ports.FeedService

	Mongo    *mongo.Database
	Redis    *redis.Client
	Postgres *pgxpool.Pool

	// Registerer receives the HTTP request metrics. Nil means the default
	// registry.
	Registerer prometheus.Registerer

	Log zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "framez",
		Registerer: deps.Registerer,
	}))

	authHandler := handler.NewAuthHandler(deps.Sessions)
	postHandler := handler.NewPostHandler(deps.Posts, deps.Sessions)
	feedHandler := handler.NewFeedHandler(deps.Feeds, deps.Sessions, deps.Log)
	requireSession := middleware.RequireSession(deps.Sessions)

	v1 := e.Group("/v1")

	// --- Auth routes ---
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)
	v1.POST("/auth/logout", authHandler.Logout, requireSession)
	v1.GET("/auth/session", authHandler.Session)

	// --- Post routes ---
	v1.GET("/posts", postHandler.List)
	v1.GET("/users/:id/posts", postHandler.ListByAuthor)
	v1.POST("/posts", postHandler.Create, requireSession)
	v1.DELETE("/posts/:id", postHandler.Delete, requireSession)

	// --- Live feed ---
	v1.GET("/feed/live", feedHandler.Live)

	// --- Health probes (no auth required) ---
	health := handler.NewHealthHandler(deps.Sessions)
	readiness := handler.NewReadinessHandler(deps.Mongo, deps.Redis, deps.Postgres)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", readiness.Readiness)

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
