package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"samchat/internal/pkg/jwtutil"
	"samchat/internal/transport/http/response"
)

const ContextUserEmailKey = "user_email"

// AuthJWT requires a bearer access token. A missing credential is 403 and a
// bad one is 401.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Abort(c, http.StatusForbidden, "Not authenticated")
			return
		}

		claims, err := jwtutil.ParseToken(secret, strings.TrimSpace(token))
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(ContextUserEmailKey, claims.Email())
		c.Next()
	}
}

func UserEmail(c *gin.Context) (string, bool) {
	email := c.GetString(ContextUserEmailKey)
	return email, email != ""
}
