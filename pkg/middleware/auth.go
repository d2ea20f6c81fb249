package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/pkg/errors"
	"github.com/libohan-ha/BaiHe-sub001/pkg/jwt"
	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

// JWTAuthMiddleware checks that the request has a valid access token
// and adds its claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		if strings.HasPrefix(token, "Bearer ") {
			token = strings.TrimPrefix(token, "Bearer ")
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("invalid access token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userId", claims.UserID)

		c.Next()
	}
}

// UserID returns the authenticated user id from the context
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get("userId")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
