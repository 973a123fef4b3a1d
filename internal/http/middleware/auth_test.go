package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/neurobridge-mastery/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

func whoami(am *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(am.RequireAuth())
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.UserID(c.Request.Context()))
	})
	return r
}

func sign(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestAuthWithoutSecretUsesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := whoami(NewAuthMiddleware(logger.NewNop(), "", ""))

	cases := []struct {
		header string
		want   string
	}{
		{"learner-7", "learner-7"},
		{"", "default"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("X-User-Id", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != tc.want {
			t.Fatalf("header %q: status=%d body=%q", tc.header, rec.Code, rec.Body.String())
		}
	}
}

func TestAuthRequiresValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const secret = "s3cret"
	r := whoami(NewAuthMiddleware(logger.NewNop(), secret, "neurobridge"))
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := []struct {
		name   string
		token  string
		status int
		body   string
	}{
		{"valid", sign(t, secret, jwt.RegisteredClaims{Subject: "u42", Issuer: "neurobridge", ExpiresAt: exp}), http.StatusOK, "u42"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong secret", sign(t, "other", jwt.RegisteredClaims{Subject: "u42", Issuer: "neurobridge", ExpiresAt: exp}), http.StatusUnauthorized, ""},
		{"wrong issuer", sign(t, secret, jwt.RegisteredClaims{Subject: "u42", Issuer: "elsewhere", ExpiresAt: exp}), http.StatusUnauthorized, ""},
		{"no subject", sign(t, secret, jwt.RegisteredClaims{Issuer: "neurobridge", ExpiresAt: exp}), http.StatusUnauthorized, ""},
		{"expired", sign(t, secret, jwt.RegisteredClaims{Subject: "u42", Issuer: "neurobridge", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}
