package models

import (
	"github.com/golang-jwt/jwt/v5"
)

type UserClaims struct {
	jwt.RegisteredClaims
	UserID uint `json:"user_id"`
	Role   Role `json:"role"`
}

func (c *UserClaims) Caller() Caller {
	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return Caller{UserID: c.UserID, Role: role}
}
