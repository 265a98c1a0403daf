package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"escrow-market/internal/address"
	"escrow-market/internal/market"
	"escrow-market/pkg/auth"
	"escrow-market/pkg/config"
	"escrow-market/pkg/custody"
	"escrow-market/pkg/database"
	"escrow-market/pkg/metadata"
	"escrow-market/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	ledger   *custody.Ledger
	registry *metadata.Registry
	engine   *market.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	deriver, err := address.NewDeriver(solana.NewWallet().PublicKey())
	require.NoError(t, err)

	ledger := custody.NewLedger(nil)
	journal := custody.NewJournal(ledger, db)
	registry := metadata.NewRegistry(db)
	store := database.NewStore(db)
	engine, err := market.NewEngine(market.Dependencies{
		Store:     store,
		Custody:   journal,
		Oracle:    registry,
		Addresser: deriver,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server:    config.ServerConfig{Host: "market.test"},
		JWT:       config.JWTConfig{SecretKey: "secret", Issuer: "escrow-market", ExpiresIn: time.Minute, RefreshExpiresIn: time.Hour},
		Market:    config.MarketConfig{TokenDecimals: 6, ChallengeTTL: time.Minute},
		RateLimit: config.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}

	router := gin.New()
	require.NoError(t, SetupRoutes(router, Dependencies{
		Config:  cfg,
		DB:      db,
		Engine:  engine,
		Browser: store,
		Journal: journal,
		Nonces:  auth.NewMemoryNonceStore(),
	}))

	return &testEnv{router: router, db: db, ledger: ledger, registry: registry, engine: engine}
}

type response struct {
	code int
	body map[string]interface{}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	out := response{code: w.Code}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out.body), w.Body.String())
	}
	return out
}

func (r response) data() map[string]interface{} {
	d, _ := r.body["data"].(map[string]interface{})
	return d
}

// login runs the challenge flow and returns the access and refresh tokens.
func (e *testEnv) login(t *testing.T, w *solana.Wallet) (string, string) {
	t.Helper()
	res := e.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.PublicKey().String()})
	require.Equal(t, http.StatusOK, res.code)
	message, _ := res.data()["message"].(string)
	require.NotEmpty(t, message)

	sig, err := w.PrivateKey.Sign([]byte(message))
	require.NoError(t, err)
	res = e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"wallet":    w.PublicKey().String(),
		"signature": sig.String(),
	})
	require.Equal(t, http.StatusOK, res.code, res.body)
	tokens := res.body["tokens"].(map[string]interface{})
	return tokens["access_token"].(string), tokens["refresh_token"].(string)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "healthy", res.body["status"])
}

// treasuryFields collects every "treasuries" request property in an OpenAPI
// document.
func treasuryFields(node interface{}, out *[]map[string]interface{}) {
	switch n := node.(type) {
	case map[string]interface{}:
		for k, v := range n {
			if field, ok := v.(map[string]interface{}); ok && k == "treasuries" && field["type"] == "array" {
				*out = append(*out, field)
			}
			treasuryFields(v, out)
		}
	case []interface{}:
		for _, v := range n {
			treasuryFields(v, out)
		}
	}
}

func TestOpenAPIDescribesTreasuryDefault(t *testing.T) {
	prev := SpecPath
	SpecPath = filepath.Join("..", "..", "docs", "swagger.yaml")
	t.Cleanup(func() { SpecPath = prev })
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/v1/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, res.code)

	var fields []map[string]interface{}
	treasuryFields(res.body, &fields)
	require.Len(t, fields, 3)
	for _, field := range fields {
		assert.Contains(t, field["description"], "treasury_mismatch")
	}
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	w := solana.NewWallet()
	access, refresh := env.login(t, w)

	res := env.do(t, http.MethodGet, "/api/v1/auth/profile", access, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, w.PublicKey().String(), res.data()["wallet"])
	assert.Nil(t, res.data()["ledger"])

	res = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, res.code)
	rotated := res.body["tokens"].(map[string]interface{})["refresh_token"].(string)
	assert.NotEqual(t, refresh, rotated)

	// the old refresh token is spent
	res = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, res.code)

	res = env.do(t, http.MethodPost, "/api/v1/auth/logout", access, gin.H{"refresh_token": rotated})
	assert.Equal(t, http.StatusOK, res.code)
	res = env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, res.code)
}

func TestLoginRejectsWrongSigner(t *testing.T) {
	env := newTestEnv(t)
	w, impostor := solana.NewWallet(), solana.NewWallet()

	res := env.do(t, http.MethodPost, "/api/v1/auth/challenge", "", gin.H{"wallet": w.PublicKey().String()})
	require.Equal(t, http.StatusOK, res.code)
	sig, err := impostor.PrivateKey.Sign([]byte(res.data()["message"].(string)))
	require.NoError(t, err)

	res = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"wallet":    w.PublicKey().String(),
		"signature": sig.String(),
	})
	assert.Equal(t, http.StatusUnauthorized, res.code)

	var attempts []models.LoginAttempt
	require.NoError(t, env.db.Find(&attempts).Error)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "INVALID_SIGNATURE", attempts[0].Reason)
}

func TestTradingRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodPost, "/api/v1/ledger", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.code)
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, solana.NewWallet())

	res := env.do(t, http.MethodPost, "/api/v1/ledger/deposit", token, gin.H{"sol": "-5", "token": "1.5"})
	require.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "Validation failed", res.body["error"])
	assert.Len(t, res.body["details"], 2)

	res = env.do(t, http.MethodPost, "/api/v1/listings/not-an-address", token, gin.H{"price_sol": "1", "price_token": "1"})
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = env.do(t, http.MethodPost, "/api/v1/admin/fees", token, nil)
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, "Route not found", res.body["error"])
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	admin, stranger := solana.NewWallet(), solana.NewWallet()
	adminToken, _ := env.login(t, admin)
	strangerToken, _ := env.login(t, stranger)

	res := env.do(t, http.MethodGet, "/api/v1/ledgers/"+stranger.PublicKey().String(), "", nil)
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, string(market.CodeRecordNotFound), res.body["code"])

	res = env.do(t, http.MethodPost, "/api/v1/admin/initialize", adminToken, gin.H{"fee_rate_sol": 250, "fee_rate_token": 100})
	require.Equal(t, http.StatusCreated, res.code, res.body)

	res = env.do(t, http.MethodPut, "/api/v1/admin/fees", strangerToken, gin.H{"fee_rate_sol": 0, "fee_rate_token": 0})
	assert.Equal(t, http.StatusForbidden, res.code)
	assert.Equal(t, string(market.CodeNotSuperAdmin), res.body["code"])

	res = env.do(t, http.MethodPost, "/api/v1/admin/initialize", adminToken, gin.H{"fee_rate_sol": 250, "fee_rate_token": 100})
	assert.Equal(t, http.StatusConflict, res.code)

	res = env.do(t, http.MethodPost, "/api/v1/ledger", strangerToken, nil)
	require.Equal(t, http.StatusCreated, res.code)
	res = env.do(t, http.MethodPost, "/api/v1/ledger/withdraw", strangerToken, gin.H{"sol": "1"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.code)
	assert.Equal(t, "arithmetic", res.body["category"])
}

func TestPurchaseOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin, seller, buyer := solana.NewWallet(), solana.NewWallet(), solana.NewWallet()
	treasury, collection, asset := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()

	require.NoError(t, env.ledger.Mint(asset, seller.PublicKey()))
	require.NoError(t, env.ledger.Fund(buyer.PublicKey(), 10_000, 0))
	require.NoError(t, env.registry.Register(ctx, asset, []models.AssetCreator{
		{Creator: collection.String(), Verified: true},
	}))

	adminToken, _ := env.login(t, admin)
	sellerToken, _ := env.login(t, seller)
	buyerToken, _ := env.login(t, buyer)

	res := env.do(t, http.MethodPost, "/api/v1/admin/initialize", adminToken, gin.H{"fee_rate_sol": 250, "fee_rate_token": 100})
	require.Equal(t, http.StatusCreated, res.code, res.body)
	res = env.do(t, http.MethodPost, "/api/v1/admin/treasuries", adminToken, gin.H{"treasury": treasury.String(), "rate": 10_000})
	require.Equal(t, http.StatusCreated, res.code, res.body)

	for _, token := range []string{sellerToken, buyerToken} {
		res = env.do(t, http.MethodPost, "/api/v1/ledger", token, nil)
		require.Equal(t, http.StatusCreated, res.code, res.body)
	}
	res = env.do(t, http.MethodPost, "/api/v1/ledger/deposit", buyerToken, gin.H{"sol": "2000"})
	require.Equal(t, http.StatusOK, res.code, res.body)

	path := "/api/v1/listings/" + asset.String()
	res = env.do(t, http.MethodPost, path+"/init", sellerToken, nil)
	require.Equal(t, http.StatusCreated, res.code, res.body)
	res = env.do(t, http.MethodPost, path, sellerToken, gin.H{"price_sol": "1000", "price_token": "500"})
	require.Equal(t, http.StatusOK, res.code, res.body)

	holder, _ := env.ledger.HolderOf(asset)
	assert.Equal(t, env.engine.Vault(), holder)

	res = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, collection.String(), res.data()["collection"])
	assert.Equal(t, "0.000001", res.data()["price_sol_display"])

	// no treasuries in the body: the stored order is used
	res = env.do(t, http.MethodPost, path+"/purchase", buyerToken, gin.H{"currency": "sol"})
	require.Equal(t, http.StatusOK, res.code, res.body)
	dist := res.data()["distribution"].(map[string]interface{})
	assert.Equal(t, float64(25), dist["fee"])

	holder, _ = env.ledger.HolderOf(asset)
	assert.Equal(t, buyer.PublicKey(), holder)
	sellerSol, _ := env.ledger.Balance(seller.PublicKey())
	assert.Equal(t, uint64(975), sellerSol)
	treasurySol, _ := env.ledger.Balance(treasury)
	assert.Equal(t, uint64(25), treasurySol)
	buyerSol, _ := env.ledger.Balance(buyer.PublicKey())
	assert.Equal(t, uint64(10_000-2000-1000), buyerSol)

	res = env.do(t, http.MethodGet, "/api/v1/ledger", buyerToken, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, float64(2000), res.data()["escrow_sol"])
	assert.Equal(t, float64(1000), res.data()["traded_sol_volume"])

	res = env.do(t, http.MethodPost, path+"/purchase", buyerToken, gin.H{"currency": "sol"})
	assert.Equal(t, http.StatusConflict, res.code)
	assert.Equal(t, string(market.CodeNotListed), res.body["code"])

	res = env.do(t, http.MethodGet, "/api/v1/settlements", buyerToken, nil)
	require.Equal(t, http.StatusOK, res.code)
	history := res.body["data"].([]interface{})
	require.Len(t, history, 2)

	id := history[0].(map[string]interface{})["id"].(string)
	res = env.do(t, http.MethodGet, "/api/v1/settlements/"+id, buyerToken, nil)
	assert.Equal(t, http.StatusOK, res.code)
	res = env.do(t, http.MethodGet, "/api/v1/settlements/missing", buyerToken, nil)
	assert.Equal(t, http.StatusNotFound, res.code)
}

func TestAuctionBrowse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := solana.NewWallet()
	asset, collection := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	require.NoError(t, env.ledger.Mint(asset, creator.PublicKey()))
	require.NoError(t, env.registry.Register(ctx, asset, []models.AssetCreator{
		{Creator: collection.String(), Verified: true},
	}))

	token, _ := env.login(t, creator)
	path := "/api/v1/auctions/" + asset.String()
	res := env.do(t, http.MethodPost, path+"/init", token, nil)
	require.Equal(t, http.StatusCreated, res.code, res.body)

	end := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	res = env.do(t, http.MethodPost, path, token, gin.H{
		"start_price":   "1000",
		"min_increment": "50",
		"currency":      "sol",
		"end_time":      end,
	})
	require.Equal(t, http.StatusOK, res.code, res.body)

	res = env.do(t, http.MethodGet, "/api/v1/auctions", "", nil)
	require.Equal(t, http.StatusOK, res.code)
	require.Len(t, res.body["data"], 1)

	res = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "active", res.data()["status"])
	assert.Equal(t, creator.PublicKey().String(), res.data()["creator"])

	res = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/auctions/%s", solana.NewWallet().PublicKey()), "", nil)
	assert.Equal(t, http.StatusNotFound, res.code)
}
