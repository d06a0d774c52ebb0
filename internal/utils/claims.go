package utils

import (
	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalsCaller    = "caller"
	LocalsDeveloper = "developer"
)

// GetCaller extracts the authenticated caller from the Fiber context.
func GetCaller(c *fiber.Ctx) (models.Caller, error) {
	caller, ok := c.Locals(LocalsCaller).(models.Caller)
	if !ok || caller.UserID == 0 {
		return models.Caller{}, apperrors.ErrUnauthorized
	}
	return caller, nil
}

// GetDeveloper extracts the developer account authenticated by API key.
func GetDeveloper(c *fiber.Ctx) (*models.DeveloperAccount, error) {
	dev, ok := c.Locals(LocalsDeveloper).(*models.DeveloperAccount)
	if !ok || dev == nil {
		return nil, apperrors.ErrUnauthorized
	}
	return dev, nil
}
