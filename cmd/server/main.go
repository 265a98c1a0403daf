package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/address"
	"escrow-market/internal/market"
	"escrow-market/internal/watcher"
	"escrow-market/pkg/api"
	"escrow-market/pkg/auth"
	"escrow-market/pkg/cache"
	"escrow-market/pkg/config"
	"escrow-market/pkg/custody"
	"escrow-market/pkg/database"
	"escrow-market/pkg/metadata"
	"escrow-market/pkg/middleware"
	"escrow-market/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	logger := setupLogging(cfg)

	logrus.Info("Starting Escrow Market...")

	// Initialize database
	if err := database.Initialize(cfg); err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		logrus.Fatalf("Failed to run database migrations: %v", err)
	}
	db := database.GetDB()

	// Custody holds wallet balances and asset ownership in process
	ledger := custody.NewLedger(logger)
	if cfg.Market.SeedFile != "" {
		seed, err := custody.LoadSeed(cfg.Market.SeedFile)
		if err != nil {
			logrus.Fatalf("Failed to load seed: %v", err)
		}
		if err := seed.Apply(ledger); err != nil {
			logrus.Fatalf("Failed to apply seed: %v", err)
		}
		if err := database.SeedData(seed.Creators()); err != nil {
			logrus.Fatalf("Failed to seed database: %v", err)
		}
	}
	replayed, err := custody.Replay(context.Background(), db, ledger)
	if err != nil {
		logrus.Fatalf("Failed to rebuild custody from the settlement journal: %v", err)
	}
	logrus.WithField("settlements", replayed).Info("Custody rebuilt from journal")

	// Initialize Redis cache; the server runs without it
	useRedis := false
	if cfg.Redis.Enabled {
		if err := cache.Initialize(cfg); err != nil {
			logrus.Warnf("Redis unavailable, continuing without it: %v", err)
		} else {
			useRedis = true
			defer cache.Close()
		}
	}

	programID, err := cfg.ProgramID()
	if err != nil {
		logrus.Fatal(err)
	}
	deriver, err := address.NewDeriver(programID)
	if err != nil {
		logrus.Fatalf("Failed to create address deriver: %v", err)
	}

	registry := metadata.NewRegistry(db)
	var oracle market.MetadataOracle = registry
	var nonces auth.NonceStore = auth.NewMemoryNonceStore()
	if useRedis {
		oracle = metadata.NewCachedOracle(registry, cache.CollectionCache{}, logger)
		nonces = cache.NonceStore{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := database.NewStore(db)
	journal := custody.NewJournal(ledger, db)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// With redis every instance publishes there and relays back to its own
	// hub, so clients see trades from all instances exactly once.
	var engine *market.Engine
	lookup := func(ctx context.Context, asset solana.PublicKey) (*market.Auction, error) {
		return engine.Auction(ctx, asset)
	}
	var live market.EventSink = hub
	if useRedis {
		live = cache.NewEventPublisher(logger)
	}
	auctions := watcher.New(lookup, live, nil, logger)

	engine, err = market.NewEngine(market.Dependencies{
		Store:     store,
		Custody:   journal,
		Oracle:    oracle,
		Addresser: deriver,
		Events:    market.EventSinks{live, auctions},
		Logger:    logger,
	})
	if err != nil {
		logrus.Fatalf("Failed to create market engine: %v", err)
	}

	active, err := store.ActiveAuctions(ctx)
	if err != nil {
		logrus.Fatalf("Failed to load active auctions: %v", err)
	}
	for _, a := range active {
		auctions.Track(a.Asset, a.EndTime)
	}
	logrus.Infof("Tracking %d active auctions", len(active))
	go auctions.Run(ctx, cfg.Market.SweepInterval)

	if useRedis {
		go func() {
			if err := cache.RelayEvents(ctx, hub, logger); err != nil {
				logrus.Errorf("Event relay stopped: %v", err)
			}
		}()
	}

	// Setup HTTP server
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	if cfg.IsDevelopment() || len(cfg.Server.AllowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		middleware.HeaderAdminOTP,
	}
	corsConfig.ExposeHeaders = []string{
		"X-RateLimit-Limit",
		"X-RateLimit-Remaining",
		"X-RateLimit-Reset",
	}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Initialize API routes
	err = api.SetupRoutes(router, api.Dependencies{
		Config:   cfg,
		DB:       db,
		Engine:   engine,
		Browser:  store,
		Journal:  journal,
		Hub:      hub,
		Nonces:   nonces,
		UseRedis: useRedis,
	})
	if err != nil {
		logrus.Fatalf("Failed to setup routes: %v", err)
	}

	go cleanupSessions(ctx, middleware.NewSessionMiddleware(db), time.Hour)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logrus.Infof("Escrow Market server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down Escrow Market...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Escrow Market stopped successfully")
}

func cleanupSessions(ctx context.Context, sessions *middleware.SessionMiddleware, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanupExpiredSessions()
			if err != nil {
				logrus.Warnf("Failed to clean up sessions: %v", err)
				continue
			}
			if n > 0 {
				logrus.Debugf("Removed %d expired sessions", n)
			}
		}
	}
}

func setupLogging(cfg *config.Config) *logrus.Logger {
	// Set log format
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	// Set log level
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging initialized")
	return logrus.StandardLogger()
}
