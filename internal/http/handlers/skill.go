package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
)

type SkillHandler struct {
	reg *skills.Registry
}

func NewSkillHandler(reg *skills.Registry) *SkillHandler {
	return &SkillHandler{reg: reg}
}

// GET /api/skills
func (h *SkillHandler) List(c *gin.Context) {
	all, err := h.reg.All(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skills": all})
}

// GET /api/skills/:id
// Unknown skills are created from the prerequisite graph on first reference.
func (h *SkillHandler) Get(c *gin.Context) {
	kc, err := h.reg.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill": kc})
}

// POST /api/skills
func (h *SkillHandler) Register(c *gin.Context) {
	var req skills.KnowledgeComponent
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	kc, err := h.reg.Register(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"skill": kc})
}

// GET /api/skills/:id/dependents
func (h *SkillHandler) Dependents(c *gin.Context) {
	deps, err := h.reg.Dependents(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"skill_id": c.Param("id"), "dependents": deps})
}
