package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
)

type FeedbackHandler struct {
	loop *feedback.Loop
}

func NewFeedbackHandler(loop *feedback.Loop) *FeedbackHandler {
	return &FeedbackHandler{loop: loop}
}

// GET /api/skills/:id/thresholds
func (h *FeedbackHandler) Thresholds(c *gin.Context) {
	t, err := h.loop.GetThresholds(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"thresholds": t})
}

// POST /api/skills/:id/struggle
func (h *FeedbackHandler) Classify(c *gin.Context) {
	var s feedback.Signals
	if err := c.ShouldBindJSON(&s); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	level, err := h.loop.ClassifyStruggle(c.Request.Context(), c.Param("id"), s)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill_id": c.Param("id"), "struggle_level": level})
}

// GET /api/skills/:id/difficulty
func (h *FeedbackHandler) Difficulty(c *gin.Context) {
	d, err := h.loop.DifficultyRating(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"difficulty": d})
}

// GET /api/difficulty
func (h *FeedbackHandler) DifficultyRatings(c *gin.Context) {
	list, err := h.loop.DifficultyRatings(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ratings": list})
}

// GET /api/improvements
func (h *FeedbackHandler) Improvements(c *gin.Context) {
	list, err := h.loop.PendingImprovements(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"improvements": list})
}

// POST /api/improvements/:id/resolve
func (h *FeedbackHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_improvement_id", err)
		return
	}
	imp, err := h.loop.ResolveImprovement(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"improvement": imp})
}

// GET /api/history?skill=css-grid&limit=50
func (h *FeedbackHandler) History(c *gin.Context) {
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	list, err := h.loop.History(c.Request.Context(), feedback.HistoryFilter{
		SkillID: c.Query("skill"),
		UserID:  requestUser(c),
		Limit:   limit,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": list})
}

// GET /api/interventions/best?misconception=off-by-one
func (h *FeedbackHandler) BestIntervention(c *gin.Context) {
	best, ok, err := h.loop.Interventions().BestIntervention(c.Request.Context(), c.Query("misconception"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if !ok {
		response.RespondOK(c, gin.H{"intervention": nil})
		return
	}
	response.RespondOK(c, gin.H{"intervention": best})
}
