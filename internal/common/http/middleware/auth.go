package middleware

import (
	"strings"

	"codegrader/internal/common/auth"
	pkgerrors "codegrader/pkg/errors"
	"codegrader/pkg/utils/contextkey"
	"codegrader/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token into a caller identity.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// AuthMiddleware rejects requests without a valid bearer token and
// stores the caller's user id under contextkey.UserID.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, pkgerrors.ServiceUnavailable, "auth verifier unavailable")
			return
		}
		identity, err := verifier.Verify(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		setContextValue(c, contextkey.UserID, identity.UserID)
		c.Set("user_role", identity.Role)
		c.Next()
	}
}

// UserID returns the authenticated user id set by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(string(contextkey.UserID))
}

func extractBearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
