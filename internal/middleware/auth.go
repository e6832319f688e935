package middleware

import (
	"strings"

	"quiz_engine/internal/model"
	"quiz_engine/internal/util"
	"quiz_engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware 校验 Bearer Token 并写入调用者
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret)
		if err != nil {
			logger.Log.Debug("JWT rejected", zap.String("path", c.FullPath()), zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		util.SetCaller(c, claims.Caller())
		c.Next()
	}
}

// RoleMiddleware 角色校验，管理员始终放行，课程级权限在 service 层校验
func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := util.GetCallerFromContext(c)
		if !ok {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		hasRole := caller.IsAdmin()
		for _, role := range roles {
			if caller.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
