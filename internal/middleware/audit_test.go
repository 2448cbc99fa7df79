package middleware

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/logging"
)

func TestAuditAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(RequestID())
	app.Use(Audit(logging.NewWithWriter(&buf, "test", "debug")))
	app.Use(JWTAuth(headerVerifier{}))
	app.Post("/denied", func(c *fiber.Ctx) error { return apperr.ErrNotOwner })

	caller := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	req := httptest.NewRequest(fiber.MethodPost, "/denied", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+caller.Hex())
	req.Header.Set(requestIDHeader, "req-1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get(requestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "request rejected", line["msg"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, caller.Hex(), line["caller"])
	assert.Equal(t, "NotOwner", line["code"])
	assert.EqualValues(t, fiber.StatusForbidden, line["status"])
}

func TestRequestIDAssignsFreshID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	id := resp.Header.Get(requestIDHeader)
	assert.Len(t, id, 36)
}
