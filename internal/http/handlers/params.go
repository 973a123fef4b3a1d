package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/platform/ctxutil"
)

// requestUser is the learner the auth middleware attached, or the default
// learner when the route is mounted without it.
func requestUser(c *gin.Context) string {
	return learner.ID(ctxutil.UserID(c.Request.Context()))
}

// listQuery splits a comma separated query parameter, dropping blanks.
func listQuery(c *gin.Context, name string) []string {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func floatQuery(c *gin.Context, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return f, nil
}
