package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codegrader/internal/common/auth"
	commonmw "codegrader/internal/common/http/middleware"
	"codegrader/internal/testutil"
	pkgerrors "codegrader/pkg/errors"
	"codegrader/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return token
}

func newAuthRouter(t *testing.T, verifier commonmw.TokenVerifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AuthMiddleware(verifier))
	router.GET("/me", func(c *gin.Context) {
		ctxUser, _ := c.Request.Context().Value(contextkey.UserID).(string)
		c.JSON(http.StatusOK, gin.H{
			"user_id":     commonmw.UserID(c),
			"ctx_user_id": ctxUser,
		})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	verifier, err := auth.NewVerifier(auth.Config{JWTSecret: testSecret, JWTIssuer: "identity"})
	if err != nil {
		t.Fatalf("new verifier failed: %v", err)
	}
	router := newAuthRouter(t, verifier)
	now := time.Now()

	cases := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   pkgerrors.ErrorCode
		wantUser   string
	}{
		{
			name:       "missing header",
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.Unauthorized,
		},
		{
			name:       "not a bearer token",
			header:     "Basic abc",
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.Unauthorized,
		},
		{
			name: "valid token",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": "user-1", "iss": "identity", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusOK,
			wantUser:   "user-1",
		},
		{
			name: "expired token",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": "user-1", "iss": "identity", "exp": now.Add(-time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.TokenExpired,
		},
		{
			name: "wrong secret",
			header: "Bearer " + signToken(t, "other", jwt.MapClaims{
				"sub": "user-1", "iss": "identity", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.TokenInvalid,
		},
		{
			name: "wrong issuer",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"sub": "user-1", "iss": "someone-else", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.TokenInvalid,
		},
		{
			name: "missing subject",
			header: "Bearer " + signToken(t, testSecret, jwt.MapClaims{
				"iss": "identity", "exp": now.Add(time.Hour).Unix(),
			}),
			wantStatus: http.StatusUnauthorized,
			wantCode:   pkgerrors.TokenInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				env := testutil.DecodeEnvelope(t, rec.Body.Bytes(), nil)
				if env.Code != tc.wantCode {
					t.Fatalf("expected code %d, got %d", tc.wantCode, env.Code)
				}
				if env.TraceID == "" {
					t.Fatalf("expected trace id in error envelope")
				}
				return
			}
			var body map[string]string
			testutil.MustUnmarshalJSON(t, rec.Body.Bytes(), &body)
			if body["user_id"] != tc.wantUser || body["ctx_user_id"] != tc.wantUser {
				t.Fatalf("expected user %s in both contexts, got %v", tc.wantUser, body)
			}
		})
	}
}

func TestAuthMiddleware_NilVerifier(t *testing.T) {
	router := newAuthRouter(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	if _, err := auth.NewVerifier(auth.Config{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
