package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcsh-server/auth"
	"mcsh-server/ingestion"
	"mcsh-server/middleware"
	"mcsh-server/models"
)

// Store is what the HTTP layer reads directly, outside of GraphQL.
type Store interface {
	AdminStore
	Pinger
}

type RouterConfig struct {
	Schema      *graphql.Schema
	Tokens      *auth.TokenManager
	Store       Store
	Importer    *ingestion.Importer
	Gatherer    prometheus.Gatherer
	Log         *zap.Logger
	Playground  bool
	CORSOrigins []string
}

// NewRouter wires every route of the server.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log.Named("http")
	router := gin.New()
	router.HTMLRender = NewRenderer()
	router.Use(gin.Recovery(), middleware.Logger(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
	}))
	router.Use(middleware.Identity(cfg.Tokens, log))

	router.POST("/graphql", GraphQL(cfg.Schema, log))
	if cfg.Playground {
		router.GET("/playground", Playground("/graphql"))
	}
	router.GET("/healthz", Health(cfg.Store, log))
	router.GET("/metrics", Metrics(cfg.Gatherer))

	staff := middleware.RequireRole(models.RoleAdmin, models.RoleTeacher)
	admin := router.Group("/admin")
	{
		admin.GET("/dashboard", staff, AdminDashboard(cfg.Store, log))
		admin.GET("/question_stats", staff, AdminQuestionStats(cfg.Store, log))
		admin.GET("/error_logs", middleware.RequireRole(models.RoleAdmin), AdminErrorLogs(cfg.Store, log))
		admin.POST("/import", staff, ImportExam(cfg.Importer, log))
	}
	return router
}
