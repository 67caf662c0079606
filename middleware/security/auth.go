package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	userservice "PulseIM/module/user/service"
	"PulseIM/tools/errs"
)

// context keys downstream handlers read
const (
	CtxUserIDKey   = "userId"
	CtxNicknameKey = "nickname"
)

// Middleware authenticates Authorization: Bearer tokens on the REST
// support surface (unread counts, history) with the same verifier the
// socket handshake uses.
func Middleware(verifier *userservice.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		identity, err := verifier.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			if errs.Code(err) == errs.CodeIdentityBanned {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "authentication failed"})
			return
		}
		c.Set(CtxUserIDKey, identity.UserID)
		c.Set(CtxNicknameKey, identity.Nickname)
		c.Next()
	}
}

// UserID reads the authenticated identity set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
