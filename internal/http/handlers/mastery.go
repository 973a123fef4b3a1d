package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/bkt"
)

type MasteryHandler struct {
	est *bkt.Estimator
}

func NewMasteryHandler(est *bkt.Estimator) *MasteryHandler {
	return &MasteryHandler{est: est}
}

// GET /api/skills/:id/mastery
func (h *MasteryHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	user, skill := requestUser(c), c.Param("id")
	m, err := h.est.GetMastery(ctx, user, skill)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	p, err := h.est.PredictCorrect(ctx, user, skill)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"skill_id":          skill,
		"mastery":           m,
		"predicted_correct": p,
		"is_mastered":       m >= h.est.Config().MasteryThreshold,
	})
}

// GET /api/mastery?skills=a,b
// Without skills it returns the full report of the learner.
func (h *MasteryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	user := requestUser(c)
	if ids := listQuery(c, "skills"); len(ids) > 0 {
		m, err := h.est.MasteryMany(ctx, user, ids)
		if err != nil {
			response.RespondErr(c, err)
			return
		}
		response.RespondOK(c, gin.H{"mastery": m})
		return
	}
	report, err := h.est.MasteryReport(ctx, user)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

// GET /api/mastery/next?candidates=a,b
func (h *MasteryHandler) Next(c *gin.Context) {
	sel, ok, err := h.est.SelectNextKC(c.Request.Context(), requestUser(c), listQuery(c, "candidates"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if !ok {
		response.RespondOK(c, gin.H{"selection": nil, "all_mastered": true})
		return
	}
	response.RespondOK(c, gin.H{"selection": sel, "all_mastered": false})
}

// GET /api/mastery/history
func (h *MasteryHandler) History(c *gin.Context) {
	obs, err := h.est.History(c.Request.Context(), requestUser(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"observations": obs})
}
