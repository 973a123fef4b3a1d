package app

import (
	httpH "github.com/yungbote/neurobridge-mastery/internal/http/handlers"
	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Handlers struct {
	Outcome   *httpH.OutcomeHandler
	Mastery   *httpH.MasteryHandler
	Skill     *httpH.SkillHandler
	Memory    *httpH.MemoryHandler
	Velocity  *httpH.VelocityHandler
	Recommend *httpH.RecommendHandler
	Feedback  *httpH.FeedbackHandler
	Health    *httpH.HealthHandler
}

// wireHandlers routes outcome writes through recorder, which is either the
// engine or the Temporal dispatcher; reads always go to the engine.
func wireHandlers(log *logger.Logger, e *engine.Engine, recorder httpH.OutcomeRecorder, deps map[string]httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Outcome:   httpH.NewOutcomeHandler(recorder),
		Mastery:   httpH.NewMasteryHandler(e.Mastery),
		Skill:     httpH.NewSkillHandler(e.Skills),
		Memory:    httpH.NewMemoryHandler(e.Memory),
		Velocity:  httpH.NewVelocityHandler(e.Velocity),
		Recommend: httpH.NewRecommendHandler(e.Ranker),
		Feedback:  httpH.NewFeedbackHandler(e.Feedback),
		Health:    httpH.NewHealthHandler(deps),
	}
}
