// README: Bearer-token auth middleware; exposes the caller's uid and role to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"foodline/internal/infra"
	"foodline/internal/types"
)

const (
	ctxCallerUID  = "caller_uid"
	ctxCallerRole = "caller_role"
)

// Auth verifies the bearer token with verifier. WebSocket clients cannot set
// headers from browsers, so the access_token query parameter is accepted too.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed authorization"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxCallerUID, token.UID)
		c.Set(ctxCallerRole, string(token.Role()))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		raw, found := strings.CutPrefix(h, "Bearer ")
		raw = strings.TrimSpace(raw)
		return raw, found && raw != ""
	}
	if q := c.Query("access_token"); q != "" {
		return q, true
	}
	return "", false
}

func CallerUID(c *gin.Context) types.ID {
	return types.ID(c.GetString(ctxCallerUID))
}

func CallerRole(c *gin.Context) types.Role {
	return types.Role(c.GetString(ctxCallerRole))
}
