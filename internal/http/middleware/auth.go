package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/neurobridge-mastery/internal/learning/learner"
	"github.com/yungbote/neurobridge-mastery/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

const headerUserID = "X-User-Id"

// AuthMiddleware resolves the learner id of each request. With a signing
// secret configured it requires an HS256 bearer token whose subject is the
// user id; without one it trusts the X-User-Id header and falls back to the
// default learner.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
	issuer string
}

func NewAuthMiddleware(log *logger.Logger, secret, issuer string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
	}
}

func (am *AuthMiddleware) Enabled() bool { return len(am.secret) > 0 }

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			rd := &ctxutil.RequestData{UserID: learner.ID(strings.TrimSpace(c.GetHeader(headerUserID)))}
			c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
			c.Next()
			return
		}
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		userID, err := am.subject(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		rd := &ctxutil.RequestData{UserID: userID, Authenticated: true}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func (am *AuthMiddleware) subject(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if am.issuer != "" {
		opts = append(opts, jwt.WithIssuer(am.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
