package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"escrow-market/internal/market"
	"escrow-market/pkg/auth"
	"escrow-market/pkg/cache"
	"escrow-market/pkg/config"
	"escrow-market/pkg/database"
	"escrow-market/pkg/middleware"
	"escrow-market/pkg/models"
	"escrow-market/pkg/websocket"
)

// Dependencies are the services the HTTP surface is built on. Browser,
// Journal and Hub are optional.
type Dependencies struct {
	Config   *config.Config
	DB       *gorm.DB
	Engine   *market.Engine
	Browser  Browser
	Journal  SettlementJournal
	Hub      *websocket.Hub
	Nonces   auth.NonceStore
	UseRedis bool
}

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) error {
	if deps.Config == nil || deps.DB == nil || deps.Engine == nil || deps.Nonces == nil {
		return errors.New("api requires config, database, engine and nonce store")
	}
	cfg := deps.Config

	jwtService := auth.NewJWTService(cfg.JWT.SecretKey, cfg.JWT.Issuer, cfg.JWT.ExpiresIn, cfg.JWT.RefreshExpiresIn)
	wallets := auth.NewWalletAuthenticator(cfg.Server.Host, cfg.Market.ChallengeTTL, deps.Nonces)

	var totpService *auth.TOTPService
	if cfg.Admin.TOTPSecret != "" {
		svc, err := auth.NewTOTPServiceFromEncrypted(cfg.Admin.TOTPIssuer, cfg.Admin.TOTPSecret, cfg.Admin.TOTPPassphrase)
		if err != nil {
			return fmt.Errorf("failed to load admin TOTP secret: %w", err)
		}
		totpService = svc
	}

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, deps.DB)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(deps.UseRedis, deps.DB)
	sessionMiddleware := middleware.NewSessionMiddleware(deps.DB)

	tokenDecimals := int32(cfg.Market.TokenDecimals)
	authHandlers := NewAuthHandlers(deps.Engine, jwtService, wallets, authMiddleware, sessionMiddleware, tokenDecimals)
	marketHandlers := NewMarketHandlers(deps.Engine, deps.Browser, deps.Journal, deps.Hub, tokenDecimals)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "escrow-market",
			"version": SwaggerInfo.Version,
		})
	})

	setupSwagger(router)

	publicLimit := rateLimitMiddleware.RateLimit(middleware.PublicRateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	tradingLimit := rateLimitMiddleware.RateLimit(middleware.TradingRateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))

	v1 := router.Group("/api/v1")
	{
		// Public authentication endpoints
		authGroup := v1.Group("/auth")
		authGroup.Use(publicLimit)
		{
			authGroup.POST("/challenge", authHandlers.Challenge)
			authGroup.POST("/login", authHandlers.Login)
			authGroup.POST("/refresh", authHandlers.RefreshToken)
		}

		authProtected := v1.Group("/auth")
		authProtected.Use(authMiddleware.JWTAuth())
		{
			authProtected.POST("/logout", authHandlers.Logout)
			authProtected.GET("/profile", authHandlers.GetProfile)
		}

		// Public read endpoints
		public := v1.Group("")
		public.Use(publicLimit)
		{
			public.GET("/config", marketHandlers.GetConfig)
			public.GET("/ledgers/:owner", marketHandlers.GetLedger)
			public.GET("/listings/:asset", marketHandlers.GetListing)
			public.GET("/offers/:asset", marketHandlers.GetOffers)
			public.GET("/offers/:asset/:bidder", marketHandlers.GetOffer)
			public.GET("/auctions", marketHandlers.GetAuctions)
			public.GET("/auctions/:asset", marketHandlers.GetAuction)
		}

		// Market operations act for the authenticated wallet
		trading := v1.Group("")
		trading.Use(authMiddleware.JWTAuth())
		trading.Use(tradingLimit)
		{
			trading.POST("/ledger", marketHandlers.InitLedger)
			trading.GET("/ledger", marketHandlers.GetMyLedger)
			trading.POST("/ledger/deposit", marketHandlers.Deposit)
			trading.POST("/ledger/withdraw", marketHandlers.Withdraw)

			trading.POST("/listings/:asset/init", marketHandlers.InitListing)
			trading.POST("/listings/:asset", marketHandlers.List)
			trading.DELETE("/listings/:asset", marketHandlers.Delist)
			trading.POST("/listings/:asset/purchase", marketHandlers.Purchase)

			trading.POST("/offers/:asset/init", marketHandlers.InitOffer)
			trading.POST("/offers/:asset", marketHandlers.MakeOffer)
			trading.DELETE("/offers/:asset", marketHandlers.CancelOffer)
			trading.POST("/offers/:asset/accept", marketHandlers.AcceptOffer)

			trading.POST("/auctions/:asset/init", marketHandlers.InitAuction)
			trading.POST("/auctions/:asset", marketHandlers.CreateAuction)
			trading.POST("/auctions/:asset/bids", marketHandlers.PlaceBid)
			trading.POST("/auctions/:asset/claim", marketHandlers.ClaimAuction)
			trading.DELETE("/auctions/:asset", marketHandlers.CancelAuction)

			trading.GET("/settlements", marketHandlers.GetSettlements)
			trading.GET("/settlements/:id", marketHandlers.GetSettlement)
		}

		// Anonymous clients get public channels, authenticated ones also their user channel
		ws := v1.Group("/ws")
		ws.Use(authMiddleware.OptionalAuth())
		{
			ws.GET("", marketHandlers.HandleWebSocket)
		}

		// Admin operations; the engine still requires the super admin wallet
		admin := v1.Group("/admin")
		admin.Use(authMiddleware.JWTAuth())
		admin.Use(middleware.RequireAdminOTP(totpService))
		{
			admin.POST("/initialize", marketHandlers.Initialize)
			admin.PUT("/fees", marketHandlers.UpdateFee)
			admin.POST("/treasuries", marketHandlers.AddTreasury)
			admin.DELETE("/treasuries/:address", marketHandlers.RemoveTreasury)

			admin.GET("/health/database", CheckDatabaseHealth)
			admin.GET("/health/redis", CheckRedisHealth)
			admin.GET("/metrics", metricsHandler(deps.DB, deps.Hub))
		}
	}
	return nil
}

// CheckDatabaseHealth checks database connectivity
func CheckDatabaseHealth(c *gin.Context) {
	if err := database.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CheckRedisHealth checks Redis connectivity
func CheckRedisHealth(c *gin.Context) {
	if !cache.Enabled() {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}
	if err := cache.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func metricsHandler(db *gorm.DB, hub *websocket.Hub) gin.HandlerFunc {
	started := time.Now()
	return func(c *gin.Context) {
		var listings, auctions, ledgers, settlements, sessions int64
		q := db.WithContext(c.Request.Context())
		q.Model(&models.ListingRecord{}).Where("active = ?", true).Count(&listings)
		q.Model(&models.AuctionRecord{}).Where("status = ?", market.AuctionActive.String()).Count(&auctions)
		q.Model(&models.UserLedgerRecord{}).Count(&ledgers)
		q.Model(&models.SettlementRecord{}).Count(&settlements)
		q.Model(&models.WalletSession{}).Where("revoked = ? AND expires_at > ?", false, time.Now().UTC()).Count(&sessions)

		clients := 0
		if hub != nil {
			clients = hub.ClientCount()
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"active_listings":   listings,
				"active_auctions":   auctions,
				"ledgers":           ledgers,
				"settlements":       settlements,
				"active_sessions":   sessions,
				"websocket_clients": clients,
				"uptime_seconds":    int64(time.Since(started).Seconds()),
			},
		})
	}
}
