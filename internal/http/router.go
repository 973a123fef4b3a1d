package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-mastery/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-mastery/internal/http/middleware"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string
	AuthMiddleware *httpMW.AuthMiddleware

	OutcomeHandler   *httpH.OutcomeHandler
	MasteryHandler   *httpH.MasteryHandler
	SkillHandler     *httpH.SkillHandler
	MemoryHandler    *httpH.MemoryHandler
	VelocityHandler  *httpH.VelocityHandler
	RecommendHandler *httpH.RecommendHandler
	FeedbackHandler  *httpH.FeedbackHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.AllowedOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET(httpMW.MetricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Outcomes
	if cfg.OutcomeHandler != nil {
		api.POST("/outcomes", cfg.OutcomeHandler.Record)
	}

	// Skills
	if cfg.SkillHandler != nil {
		api.GET("/skills", cfg.SkillHandler.List)
		api.POST("/skills", cfg.SkillHandler.Register)
		api.GET("/skills/:id", cfg.SkillHandler.Get)
		api.GET("/skills/:id/dependents", cfg.SkillHandler.Dependents)
	}

	// Mastery
	if cfg.MasteryHandler != nil {
		api.GET("/mastery", cfg.MasteryHandler.List)
		api.GET("/mastery/next", cfg.MasteryHandler.Next)
		api.GET("/mastery/history", cfg.MasteryHandler.History)
		api.GET("/skills/:id/mastery", cfg.MasteryHandler.Get)
	}

	// Memory
	if cfg.MemoryHandler != nil {
		api.GET("/reviews/due", cfg.MemoryHandler.Due)
		api.GET("/skills/:id/memory", cfg.MemoryHandler.Curve)
		api.GET("/skills/:id/retrievability", cfg.MemoryHandler.Retrievability)
	}

	// Velocity
	if cfg.VelocityHandler != nil {
		api.GET("/velocity", cfg.VelocityHandler.Profile)
		api.POST("/velocity", cfg.VelocityHandler.Track)
		api.GET("/skills/:id/estimate", cfg.VelocityHandler.Estimate)
		api.GET("/skills/:id/blockers", cfg.VelocityHandler.Blockers)
	}

	// Recommendations
	if cfg.RecommendHandler != nil {
		api.GET("/path", cfg.RecommendHandler.Path)
		api.GET("/path/next", cfg.RecommendHandler.Next)
		api.GET("/insights", cfg.RecommendHandler.Insights)
		api.GET("/skills/:id/recommendations", cfg.RecommendHandler.Adaptive)
	}

	// Feedback
	if cfg.FeedbackHandler != nil {
		api.GET("/history", cfg.FeedbackHandler.History)
		api.GET("/difficulty", cfg.FeedbackHandler.DifficultyRatings)
		api.GET("/improvements", cfg.FeedbackHandler.Improvements)
		api.POST("/improvements/:id/resolve", cfg.FeedbackHandler.Resolve)
		api.GET("/interventions/best", cfg.FeedbackHandler.BestIntervention)
		api.GET("/skills/:id/thresholds", cfg.FeedbackHandler.Thresholds)
		api.GET("/skills/:id/difficulty", cfg.FeedbackHandler.Difficulty)
		api.POST("/skills/:id/struggle", cfg.FeedbackHandler.Classify)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
