package server

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartwill/lastwill/internal/config"
	"github.com/smartwill/lastwill/internal/deploy"
	"github.com/smartwill/lastwill/internal/logging"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/routes"
	"github.com/smartwill/lastwill/internal/store"
)

type wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	token   string
}

type testServer struct {
	t     *testing.T
	app   *fiber.App
	addrs deploy.Addresses
	keys  int
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func newTestServer(t *testing.T, admin common.Address) *testServer {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	ctx := context.Background()
	st := store.NewMemory()
	sys := deploy.NewSystem(nil)
	addrs, err := deploy.Bootstrap(ctx, st, sys, admin)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv, err := New(routes.Deps{
		Cfg: config.Config{
			AppName:        "LastWill",
			AppEnv:         "test",
			JWTSecret:      "test-secret",
			AccessTokenTTL: time.Hour,
			ChallengeTTL:   time.Minute,
			IdempotencyTTL: time.Minute,
		},
		Store:     st,
		System:    sys,
		Addresses: addrs,
		Cache:     cache,
		Logger:    logging.Discard(),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
	})
	require.NoError(t, err)
	return &testServer{t: t, app: srv.App(), addrs: addrs}
}

// request sends a JSON request. Mutations carry a fresh idempotency key
// unless key is given.
func (s *testServer) request(method, path string, w *wallet, body, key string) (int, []byte) {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if w != nil && w.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+w.token)
	}
	if method != http.MethodGet {
		if key == "" {
			s.keys++
			key = "key-" + strconv.Itoa(s.keys)
		}
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp.StatusCode, raw
}

func (s *testServer) json(method, path string, w *wallet, body string) (int, map[string]any) {
	s.t.Helper()
	status, raw := s.request(method, path, w, body, "")
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(s.t, json.Unmarshal(raw, &out))
	}
	return status, out
}

func (s *testServer) login(w *wallet) {
	s.t.Helper()
	status, body := s.json(http.MethodPost, "/api/v1/auth/challenge", nil, `{"address":"`+w.address.Hex()+`"}`)
	require.Equal(s.t, http.StatusCreated, status, body)
	message, _ := body["message"].(string)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(s.t, err)
	sig[crypto.RecoveryIDOffset] += 27

	status, body = s.json(http.MethodPost, "/api/v1/auth/login", nil,
		`{"address":"`+w.address.Hex()+`","signature":"`+hexutil.Encode(sig)+`"}`)
	require.Equal(s.t, http.StatusOK, status, body)
	w.token, _ = body["access_token"].(string)
	require.NotEmpty(s.t, w.token)
}

func TestEndToEndWillLifecycle(t *testing.T) {
	admin, testator := newWallet(t), newWallet(t)
	heir := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdc := common.HexToAddress("0x000000000000000000000000000000000000c0c0")
	s := newTestServer(t, admin.address)

	status, _ := s.json(http.MethodPost, "/api/v1/wills", testator, `{"due_date":1}`)
	assert.Equal(t, http.StatusUnauthorized, status)

	s.login(admin)
	s.login(testator)

	status, body := s.json(http.MethodGet, "/api/v1/me", testator, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, testator.address.Hex(), body["address"])

	status, body = s.json(http.MethodPost, "/api/v1/assets", admin, `{"asset":"`+usdc.Hex()+`","symbol":"USDC","decimals":6}`)
	require.Equal(t, http.StatusCreated, status, body)
	status, body = s.json(http.MethodPost, "/api/v1/whitelist", admin, `{"asset":"`+usdc.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, status, body)
	status, body = s.json(http.MethodPost, "/api/v1/assets/"+usdc.Hex()+"/mint", admin, `{"to":"`+testator.address.Hex()+`","amount":"1000"}`)
	require.Equal(t, http.StatusOK, status, body)

	due := strconv.FormatInt(time.Now().Unix()+3600, 10)
	status, body = s.json(http.MethodPost, "/api/v1/wills", testator, `{"due_date":`+due+`}`)
	require.Equal(t, http.StatusCreated, status, body)
	willAddr, _ := body["address"].(string)
	assert.Equal(t, crypto.CreateAddress(s.addrs.Factory, 0).Hex(), willAddr)

	status, body = s.json(http.MethodPost, "/api/v1/assets/"+usdc.Hex()+"/approve", testator, `{"spender":"`+willAddr+`","amount":"100"}`)
	require.Equal(t, http.StatusOK, status, body)

	addHeir := `{"wallet":"` + heir.Hex() + `","tokens":["` + usdc.Hex() + `"],"amounts":["100"]}`
	status, first := s.request(http.MethodPost, "/api/v1/wills/"+willAddr+"/heirs", testator, addHeir, "add-heir-1")
	require.Equal(t, http.StatusCreated, status, string(first))

	// a replay returns the stored response instead of failing HeirAlreadyExists
	status, replay := s.request(http.MethodPost, "/api/v1/wills/"+willAddr+"/heirs", testator, addHeir, "add-heir-1")
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, string(first), string(replay))

	status, body = s.json(http.MethodPost, "/api/v1/wills/"+willAddr+"/heirs", testator, addHeir)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "HeirAlreadyExists", body["error"])

	status, body = s.json(http.MethodGet, "/api/v1/escrow/wills/"+willAddr+"/balances/"+usdc.Hex(), nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "100", body["amount"])

	status, body = s.json(http.MethodGet, "/api/v1/assets/"+usdc.Hex()+"/balances/"+testator.address.Hex(), nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "900", body["balance"])

	status, body = s.json(http.MethodGet, "/api/v1/heirs/"+heir.Hex()+"/wills", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{willAddr}, body["wills"])

	status, body = s.json(http.MethodGet, "/api/v1/registry/wills/"+willAddr, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["registered"])

	status, body = s.json(http.MethodPost, "/api/v1/wills/"+willAddr+"/heirs/"+heir.Hex()+"/execute", admin, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NotDueYet", body["error"])

	status, raw := s.request(http.MethodGet, "/metrics", nil, "", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `lastwill_operations_total{component="will",operation="add_heir",outcome="ok"} 1`)

	status, body = s.json(http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"postgres": "disabled", "redis": "ok"}, body["status"])
}

func TestLoginRejectsWrongSigner(t *testing.T) {
	alice, mallory := newWallet(t), newWallet(t)
	s := newTestServer(t, alice.address)

	status, body := s.json(http.MethodPost, "/api/v1/auth/challenge", nil, `{"address":"`+alice.address.Hex()+`"}`)
	require.Equal(t, http.StatusCreated, status)
	message, _ := body["message"].(string)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), mallory.key)
	require.NoError(t, err)
	status, _ = s.json(http.MethodPost, "/api/v1/auth/login", nil,
		`{"address":"`+alice.address.Hex()+`","signature":"`+hexutil.Encode(sig)+`"}`)
	assert.Equal(t, http.StatusUnauthorized, status)
}
