package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/recommend"
)

type RecommendHandler struct {
	ranker *recommend.Ranker
}

func NewRecommendHandler(ranker *recommend.Ranker) *RecommendHandler {
	return &RecommendHandler{ranker: ranker}
}

// GET /api/path?skills=a,b
func (h *RecommendHandler) Path(c *gin.Context) {
	p, err := h.ranker.GenerateLearningPath(c.Request.Context(), requestUser(c), listQuery(c, "skills"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"path": p})
}

// GET /api/path/next?limit=3
func (h *RecommendHandler) Next(c *gin.Context) {
	limit, err := intQuery(c, "limit", 3)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	items, err := h.ranker.GetNextConcepts(c.Request.Context(), requestUser(c), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"concepts": items})
}

// GET /api/skills/:id/recommendations
func (h *RecommendHandler) Adaptive(c *gin.Context) {
	rec, err := h.ranker.GetAdaptiveRecommendations(c.Request.Context(), requestUser(c), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"recommendations": rec})
}

// GET /api/insights
func (h *RecommendHandler) Insights(c *gin.Context) {
	in, err := h.ranker.Insights(c.Request.Context(), requestUser(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"insights": in})
}
