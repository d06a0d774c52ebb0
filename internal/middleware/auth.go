// Package middleware provides authentication and authorization middleware
// for the fiber routes.
package middleware

import (
	"context"
	"strings"

	apperrors "cardpay/internal/errors"
	"cardpay/internal/models"
	"cardpay/internal/utils"
	"cardpay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// AuthMiddleware validates user JWTs and stores the caller in the request
// context.
type AuthMiddleware struct {
	secret string
	log    zerolog.Logger
}

func NewAuthMiddleware(secret string, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: secret, log: log.With().Str("component", "auth").Logger()}
}

// Handler checks for a Bearer token with a valid signature, issuer and
// expiry.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	token, ok := bearer(c)
	if !ok {
		return response.Unauthorized(c)
	}

	claims, err := utils.ParseToken(m.secret, token)
	if err != nil {
		m.log.Debug().Err(err).Str("path", c.Path()).Msg("rejected token")
		return response.Unauthorized(c)
	}

	c.Locals("claims", claims)
	c.Locals(utils.LocalsCaller, claims.Caller())
	return c.Next()
}

// RequireRole lets the request through only for the listed roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := utils.GetCaller(c)
		if err != nil {
			return response.Unauthorized(c)
		}
		if err := caller.Require(roles...); err != nil {
			return response.FromError(c, err)
		}
		return c.Next()
	}
}

// APIKeyAuthenticator resolves a developer API key.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.DeveloperAccount, error)
}

// APIKeyMiddleware authenticates developer API calls.
func APIKeyMiddleware(auth APIKeyAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, ok := bearer(c)
		if !ok {
			return response.Unauthorized(c)
		}
		dev, err := auth.Authenticate(c.UserContext(), key)
		if err != nil {
			if apperrors.CodeOf(err) == "" {
				return err
			}
			return response.FromError(c, err)
		}
		c.Locals(utils.LocalsDeveloper, dev)
		return c.Next()
	}
}

func bearer(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
}
