package handlers

import (
	"strconv"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const idempotencyHeader = "Idempotency-Key"

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.Newf(apperrors.ErrValidation, "invalid request body")
	}
	return validation.ValidateStruct(dst)
}

func uintParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Newf(apperrors.ErrValidation, "invalid %s", name)
	}
	return uint(id), nil
}

// idempotencyKey prefers the header over the body field.
func idempotencyKey(c *fiber.Ctx, fromBody string) string {
	if key := c.Get(idempotencyHeader); key != "" {
		return key
	}
	return fromBody
}
