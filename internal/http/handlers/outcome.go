package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/http/response"
	"github.com/yungbote/neurobridge-mastery/internal/learning/engine"
)

// OutcomeRecorder runs the outcome pipeline, either in-process or through a
// durable workflow.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, out engine.Outcome) (engine.Result, error)
}

type OutcomeHandler struct {
	recorder OutcomeRecorder
}

func NewOutcomeHandler(recorder OutcomeRecorder) *OutcomeHandler {
	return &OutcomeHandler{recorder: recorder}
}

// POST /api/outcomes
func (h *OutcomeHandler) Record(c *gin.Context) {
	var out engine.Outcome
	if err := c.ShouldBindJSON(&out); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	// The token's subject wins over whatever the body claims.
	out.UserID = requestUser(c)
	res, err := h.recorder.RecordOutcome(c.Request.Context(), out)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}
