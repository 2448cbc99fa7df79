package middleware_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwill/lastwill/internal/auth"
	"github.com/smartwill/lastwill/internal/middleware"
)

func TestJWTAuthSetsCaller(t *testing.T) {
	tokens := auth.NewService("secret", "lastwill", time.Minute, nil)
	want := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	token, err := tokens.Issue(want)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(middleware.JWTAuth(tokens))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(middleware.Caller(c).Hex())
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token.AccessToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, want.Hex(), string(got))

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
