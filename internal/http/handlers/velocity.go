package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/velocity"
)

type VelocityHandler struct {
	tracker *velocity.Tracker
}

func NewVelocityHandler(tracker *velocity.Tracker) *VelocityHandler {
	return &VelocityHandler{tracker: tracker}
}

// GET /api/velocity
func (h *VelocityHandler) Profile(c *gin.Context) {
	p, err := h.tracker.Profile(c.Request.Context(), requestUser(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	body := gin.H{"profile": p}
	if v, ok := p.OverallVelocity(); ok {
		body["overall_velocity"] = v
	}
	response.RespondOK(c, body)
}

type trackRequest struct {
	SkillID string  `json:"skill_id" binding:"required"`
	Minutes float64 `json:"minutes" binding:"gte=0"`
	Success bool    `json:"success"`
}

// POST /api/velocity
// Records time spent outside the outcome pipeline, e.g. reading material.
func (h *VelocityHandler) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	p, err := h.tracker.TrackVelocityProgress(c.Request.Context(), requestUser(c), req.SkillID, req.Minutes, req.Success)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}

// GET /api/skills/:id/estimate
func (h *VelocityHandler) Estimate(c *gin.Context) {
	est, err := h.tracker.EstimateTimeToMastery(c.Request.Context(), requestUser(c), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"estimate": est})
}

// GET /api/skills/:id/blockers
func (h *VelocityHandler) Blockers(c *gin.Context) {
	blockers, err := h.tracker.IdentifyVelocityBlockers(c.Request.Context(), requestUser(c), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill_id": c.Param("id"), "blockers": blockers})
}
