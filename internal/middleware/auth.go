package middleware

import (
	"phrasal_tutor_backend/internal/util"
	"phrasal_tutor_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenVerifier 与 service.TokenVerifier 同形，避免 middleware 依赖 service 包
type TokenVerifier interface {
	Verify(token string) (*util.Claims, error)
}

func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			tokenString = c.Query("token")
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Log.Debug("JWT verification failed", zap.String("path", c.FullPath()), zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}
