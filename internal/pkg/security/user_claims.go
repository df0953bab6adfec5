package security

import (
	"Fitlink/internal/pkg/consts"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	JWTSecret         string = "Fitlink"
	JWTExpirationTime        = time.Hour * 24
)

// UserClaims 定义了 Token 中需要包含的业务信息
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// IsStaff 是否持有客服/管理员角色
func (c *UserClaims) IsStaff() bool {
	return slices.Contains(c.Roles, consts.RoleStaff)
}
