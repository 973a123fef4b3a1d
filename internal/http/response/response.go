package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/data/kv"
	"github.com/yungbote/neurobridge-mastery/internal/learning/feedback"
	"github.com/yungbote/neurobridge-mastery/internal/learning/memory"
	"github.com/yungbote/neurobridge-mastery/internal/learning/skills"
	"github.com/yungbote/neurobridge-mastery/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var domainErrors = []apierr.Rule{
	{Target: feedback.ErrInvalidOutcome, Status: http.StatusBadRequest, Code: "invalid_outcome"},
	{Target: memory.ErrInvalidRating, Status: http.StatusBadRequest, Code: "invalid_rating"},
	{Target: skills.ErrEmptySkillID, Status: http.StatusBadRequest, Code: "missing_skill_id"},
	{Target: skills.ErrCyclicPrerequisites, Status: http.StatusConflict, Code: "cyclic_prerequisites"},
	{Target: skills.ErrUnknownSkill, Status: http.StatusNotFound, Code: "unknown_skill"},
	{Target: feedback.ErrUnknownImprovement, Status: http.StatusNotFound, Code: "unknown_improvement"},
	{Target: kv.ErrEmptyKey, Status: http.StatusBadRequest, Code: "invalid_key"},
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondErr classifies err against the learner-model sentinels. Store
// failures surface as 500 with a generic message.
func RespondErr(c *gin.Context, err error) {
	status, code := apierr.Classify(err, domainErrors...)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, ErrorEnvelope{Error: APIError{Message: "internal error", Code: code}})
		return
	}
	RespondError(c, status, code, err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
