package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
)

const callerKey = "caller"

// TokenVerifier resolves an access token to the address it was issued to.
type TokenVerifier interface {
	Verify(token string) (common.Address, error)
}

// JWTAuth validates bearer access tokens and stores the caller address.
func JWTAuth(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		caller, err := tokens.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// Caller returns the authenticated caller. The zero address is returned on
// routes without JWTAuth.
func Caller(c *fiber.Ctx) common.Address {
	caller, _ := c.Locals(callerKey).(common.Address)
	return caller
}
