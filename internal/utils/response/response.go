package response

import (
	"errors"

	apperrors "cardpay/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Error(c *fiber.Ctx, status int, code apperrors.Code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": message,
		},
	})
}

func Unauthorized(c *fiber.Ctx) error {
	return Error(c, fiber.StatusUnauthorized, apperrors.CodeUnauthorized, "Unauthorized")
}

// Status maps an error code to its HTTP status.
func Status(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation, apperrors.CodeInvalidChannel:
		return fiber.StatusBadRequest
	case apperrors.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case apperrors.CodeInsufficientFunds:
		return fiber.StatusPaymentRequired
	case apperrors.CodeForbidden, apperrors.CodeAccountInactive:
		return fiber.StatusForbidden
	case apperrors.CodeNotFound:
		return fiber.StatusNotFound
	case apperrors.CodeLimitExceeded, apperrors.CodeDuplicateRequest,
		apperrors.CodeRequestInProgress, apperrors.CodeInvalidState, apperrors.CodeDeliveryExhausted,
		apperrors.CodeExpired:
		return fiber.StatusConflict
	case apperrors.CodeAccountBlocked:
		return fiber.StatusLocked
	case apperrors.CodeCompensatedFailure, apperrors.CodeRateUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// FromError writes err as a JSON error. Errors without a domain code are
// logged and hidden behind a generic 500.
func FromError(c *fiber.Ctx, err error) error {
	var de *apperrors.DomainError
	if !errors.As(err, &de) {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return Error(c, fe.Code, apperrors.CodeValidation, fe.Message)
		}
		log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		return Error(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	status := Status(de.Code)
	if apperrors.Transient(err) {
		c.Set(fiber.HeaderRetryAfter, "1")
	}
	return Error(c, status, de.Code, de.Message)
}

// ErrorHandler is the fiber error handler for the application.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return FromError(c, err)
}
