package models

import (
	apperrors "cardpay/internal/errors"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleDeveloper Role = "developer"
	RoleAdmin     Role = "admin"
)

// Caller is the authenticated identity a request acts as.
type Caller struct {
	UserID uint
	Role   Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Require fails with ErrForbidden unless the caller holds one of roles.
func (c Caller) Require(roles ...Role) error {
	for _, r := range roles {
		if c.Role == r {
			return nil
		}
	}
	return apperrors.Newf(apperrors.ErrForbidden, "role %q is not allowed to perform this action", c.Role)
}

// Owns reports whether the caller may act on a resource owned by userID.
func (c Caller) Owns(userID uint) bool {
	return c.IsAdmin() || c.UserID == userID
}
