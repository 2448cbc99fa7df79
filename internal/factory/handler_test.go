package factory_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwill/lastwill/internal/auth"
	"github.com/smartwill/lastwill/internal/factory"
	"github.com/smartwill/lastwill/internal/logging"
	"github.com/smartwill/lastwill/internal/middleware"
)

func TestHandlerCreatesWillAndManagesWhitelist(t *testing.T) {
	f := newFixture(t)
	tokens := auth.NewService("test-secret", "lastwill", time.Hour, nil)
	h := factory.NewHandler(factory.NewService(f.store, f.sys.Factory, logging.Discard(), nil))
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	h.RegisterReads(app)
	h.RegisterWrites(app.Group("", middleware.JWTAuth(tokens)))

	call := func(method, path string, caller common.Address, body string) (int, map[string]any) {
		t.Helper()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		token, err := tokens.Issue(caller)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token.AccessToken)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]any{}
		if resp.StatusCode != http.StatusNoContent {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	due := strconv.FormatInt(future, 10)
	status, body := call(http.MethodPost, "/wills", alice, `{"due_date":`+due+`}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, crypto.CreateAddress(f.addrs.Factory, 0).Hex(), body["address"])

	status, body = call(http.MethodPost, "/wills", alice, `{"due_date":`+due+`}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "WillAlreadyExists", body["error"])

	status, body = call(http.MethodGet, "/testators/"+alice.Hex()+"/will", bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["exists"])

	status, body = call(http.MethodPost, "/whitelist", alice, `{"asset":"`+usdc.Hex()+`"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotOwner", body["error"])

	status, body = call(http.MethodPost, "/whitelist", admin, `{"asset":"`+usdc.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, float64(6), body["decimals"])

	status, body = call(http.MethodGet, "/whitelist", bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["tokens"], 1)

	status, _ = call(http.MethodDelete, "/whitelist/"+usdc.Hex(), admin, "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = call(http.MethodGet, "/whitelist/"+usdc.Hex(), bob, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["allowed"])
}
