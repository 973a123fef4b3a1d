package app

import (
	httpMW "github.com/yungbote/neurobridge-mastery/internal/http/middleware"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	auth := httpMW.NewAuthMiddleware(log, cfg.JWTSecret, cfg.JWTIssuer)
	if !auth.Enabled() {
		log.Warn("JWT_SECRET_KEY not set; requests act as the X-User-Id header or the default learner")
	}
	return Middleware{Auth: auth}
}
