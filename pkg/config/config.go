package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "escrow-market-secret-key"

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Market    MarketConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Environment    string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver     string // postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
	MaxOpen    int
	MaxIdle    int
	MaxLife    time.Duration
	LogQueries bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	Database int
	PoolSize int
}

type JWTConfig struct {
	SecretKey        string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
	Issuer           string
}

// MarketConfig holds the on-ledger identity of the marketplace.
type MarketConfig struct {
	ProgramID     string
	TokenMint     string
	TokenDecimals int
	SeedFile      string
	ChallengeTTL  time.Duration
	SweepInterval time.Duration
}

// AdminConfig guards admin operations with a TOTP code. The secret is stored
// encrypted with the passphrase.
type AdminConfig struct {
	TOTPSecret     string
	TOTPPassphrase string
	TOTPIssuer     string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:    getEnv("ENVIRONMENT", "development"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "escrow_market"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "escrow-market.db"),
			MaxOpen:    getIntEnv("DB_MAX_OPEN", 25),
			MaxIdle:    getIntEnv("DB_MAX_IDLE", 5),
			MaxLife:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			LogQueries: getBoolEnv("DB_LOG_QUERIES", false),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			Database: getIntEnv("REDIS_DATABASE", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		JWT: JWTConfig{
			SecretKey:        getEnv("JWT_SECRET_KEY", defaultJWTSecret),
			ExpiresIn:        getDurationEnv("JWT_EXPIRES_IN", 15*time.Minute),
			RefreshExpiresIn: getDurationEnv("JWT_REFRESH_EXPIRES_IN", 7*24*time.Hour),
			Issuer:           getEnv("JWT_ISSUER", "escrow-market"),
		},
		Market: MarketConfig{
			ProgramID:     getEnv("MARKET_PROGRAM_ID", ""),
			TokenMint:     getEnv("MARKET_TOKEN_MINT", ""),
			TokenDecimals: getIntEnv("MARKET_TOKEN_DECIMALS", 6),
			SeedFile:      getEnv("MARKET_SEED_FILE", ""),
			ChallengeTTL:  getDurationEnv("MARKET_CHALLENGE_TTL", 5*time.Minute),
			SweepInterval: getDurationEnv("MARKET_AUCTION_SWEEP", time.Second),
		},
		Admin: AdminConfig{
			TOTPSecret:     getEnv("ADMIN_TOTP_SECRET", ""),
			TOTPPassphrase: getEnv("ADMIN_TOTP_PASSPHRASE", ""),
			TOTPIssuer:     getEnv("ADMIN_TOTP_ISSUER", "Escrow Market"),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Market.ProgramID == "" {
		return fmt.Errorf("MARKET_PROGRAM_ID is required")
	}
	if _, err := c.ProgramID(); err != nil {
		return err
	}
	if c.Market.TokenMint != "" {
		if _, err := solana.PublicKeyFromBase58(c.Market.TokenMint); err != nil {
			return fmt.Errorf("invalid MARKET_TOKEN_MINT: %w", err)
		}
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.IsProduction() && c.JWT.SecretKey == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET_KEY must be set in production")
	}
	if (c.Admin.TOTPSecret == "") != (c.Admin.TOTPPassphrase == "") {
		return fmt.Errorf("ADMIN_TOTP_SECRET and ADMIN_TOTP_PASSPHRASE must be set together")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// ProgramID parses the configured program ID.
func (c *Config) ProgramID() (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(c.Market.ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid MARKET_PROGRAM_ID: %w", err)
	}
	return key, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) GetDatabaseURL() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return "postgres://" + c.Database.User + ":" + c.Database.Password + "@" + c.Database.Host + ":" + c.Database.Port + "/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

func (c *Config) GetRedisURL() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
