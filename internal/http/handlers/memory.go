package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
)

type MemoryHandler struct {
	model *memory.Model
}

func NewMemoryHandler(model *memory.Model) *MemoryHandler {
	return &MemoryHandler{model: model}
}

// GET /api/reviews/due
func (h *MemoryHandler) Due(c *gin.Context) {
	due, err := h.model.GetConceptsDueForReview(c.Request.Context(), requestUser(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"due": due})
}

// GET /api/skills/:id/memory?retention=0.9
func (h *MemoryHandler) Curve(c *gin.Context) {
	ctx := c.Request.Context()
	user, skill := requestUser(c), c.Param("id")
	retention, err := floatQuery(c, "retention", 0)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_retention", err)
		return
	}
	curve, err := h.model.Curve(ctx, user, skill)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	interval, err := h.model.GetNextInterval(ctx, user, skill, retention)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	body := gin.H{"curve": curve, "interval_days": interval}
	r, ok, err := h.model.CurrentRetrievability(ctx, user, skill)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if ok {
		body["retrievability"] = r
	}
	response.RespondOK(c, body)
}

// GET /api/skills/:id/retrievability?days=3
func (h *MemoryHandler) Retrievability(c *gin.Context) {
	days, err := floatQuery(c, "days", 0)
	if err == nil && days < 0 {
		err = errors.New("days must not be negative")
	}
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_days", err)
		return
	}
	r, err := h.model.GetRetrievability(c.Request.Context(), requestUser(c), c.Param("id"), days)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill_id": c.Param("id"), "days": days, "retrievability": r})
}
