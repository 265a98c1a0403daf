package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"escrow-market/pkg/auth"
	"escrow-market/pkg/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", false)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	jwtService := auth.NewJWTService("secret", "escrow-market", time.Minute, time.Hour)
	am := NewAuthMiddleware(jwtService, newTestDB(t))
	wallet := solana.NewWallet().PublicKey()

	r := gin.New()
	r.GET("/me", am.JWTAuth(), func(c *gin.Context) {
		w, ok := GetWalletFromContext(c)
		require.True(t, ok)
		c.String(http.StatusOK, w.String())
	})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	pair, err := jwtService.GenerateTokenPair(wallet)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, wallet.String(), w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	am := NewAuthMiddleware(auth.NewJWTService("secret", "escrow-market", time.Minute, time.Hour), newTestDB(t))
	r := gin.New()
	r.GET("/", am.OptionalAuth(), func(c *gin.Context) {
		_, ok := GetWalletFromContext(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())
}

func TestRequireAdminOTP(t *testing.T) {
	key, err := auth.GenerateSecret("Escrow Market", "admin")
	require.NoError(t, err)
	svc := auth.NewTOTPService("Escrow Market", key.Secret())

	r := gin.New()
	r.POST("/admin", RequireAdminOTP(svc), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/open", RequireAdminOTP(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodPost, "/admin", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(HeaderAdminOTP, "000000x")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/admin", nil)
	req.Header.Set(HeaderAdminOTP, code)
	assert.Equal(t, http.StatusNoContent, serve(r, req).Code)

	assert.Equal(t, http.StatusNoContent, serve(r, httptest.NewRequest(http.MethodPost, "/open", nil)).Code)
}

func TestRateLimitDatabase(t *testing.T) {
	rl := NewRateLimitMiddleware(false, newTestDB(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/", rl.RateLimit(PublicRateLimit(2, time.Minute)), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	now = now.Add(time.Minute)
	w = serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
}

func TestSessions(t *testing.T) {
	sm := NewSessionMiddleware(newTestDB(t))
	wallet := solana.NewWallet().PublicKey().String()

	_, err := sm.CreateSession(wallet, "r1", "127.0.0.1", "test", time.Hour)
	require.NoError(t, err)

	found, err := sm.FindSession("r1")
	require.NoError(t, err)
	assert.Equal(t, wallet, found.Wallet)

	s, err := sm.RotateSession("r1", "r2", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, wallet, s.Wallet)

	_, err = sm.RotateSession("r1", "r3", time.Hour)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = sm.FindSession("r1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	active, err := sm.GetActiveSessions(wallet)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, sm.InvalidateSession("r2"))
	assert.ErrorIs(t, sm.InvalidateSession("r2"), ErrSessionNotFound)

	_, err = sm.CreateSession(wallet, "r4", "127.0.0.1", "test", time.Hour)
	require.NoError(t, err)
	require.NoError(t, sm.InvalidateAllWalletSessions(wallet))

	removed, err := sm.CleanupExpiredSessions()
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestSessionExpiry(t *testing.T) {
	sm := NewSessionMiddleware(newTestDB(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sm.now = func() time.Time { return now }

	_, err := sm.CreateSession("w", "r1", "127.0.0.1", "test", time.Minute)
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	_, err = sm.RotateSession("r1", "r2", time.Minute)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
