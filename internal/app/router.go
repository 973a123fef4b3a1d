package app

import (
	httpserver "github.com/yungbote/neurobridge-mastery/internal/http"
	"github.com/yungbote/neurobridge-mastery/internal/observability"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, m *observability.Metrics, handlers Handlers, middleware Middleware) *httpserver.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = ServiceName
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:              log,
		Metrics:          m,
		ServiceName:      serviceName,
		AllowedOrigins:   cfg.AllowedOrigins,
		AuthMiddleware:   middleware.Auth,
		OutcomeHandler:   handlers.Outcome,
		MasteryHandler:   handlers.Mastery,
		SkillHandler:     handlers.Skill,
		MemoryHandler:    handlers.Memory,
		VelocityHandler:  handlers.Velocity,
		RecommendHandler: handlers.Recommend,
		FeedbackHandler:  handlers.Feedback,
		HealthHandler:    handlers.Health,
	})
}
