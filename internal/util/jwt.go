package util

import (
	"errors"
	"time"

	"quiz_engine/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerKey = "caller"

type Claims struct {
	UserID   uint           `json:"user_id"`
	Role     model.UserRole `json:"role"`
	SchoolID uint           `json:"school_id"`
	jwt.RegisteredClaims
}

// Caller 将已验证的声明转换为调用者身份
func (c *Claims) Caller() model.Caller {
	return model.Caller{UserID: c.UserID, Role: c.Role, SchoolID: c.SchoolID}
}

func GenerateJWT(caller model.Caller, secret string, expiration time.Duration) (string, error) {
	expirationTime := time.Now().Add(expiration)

	claims := &Claims{
		UserID:   caller.UserID,
		Role:     caller.Role,
		SchoolID: caller.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	switch claims.Role {
	case model.Student, model.Teacher, model.Admin:
	default:
		return nil, errors.New("unknown role in token")
	}
	return claims, nil
}

func SetCaller(c *gin.Context, caller model.Caller) {
	c.Set(callerKey, caller)
}

// GetCallerFromContext 获取认证中间件写入的调用者
func GetCallerFromContext(c *gin.Context) (model.Caller, bool) {
	v, exists := c.Get(callerKey)
	if !exists {
		return model.Caller{}, false
	}
	caller, ok := v.(model.Caller)
	return caller, ok
}
