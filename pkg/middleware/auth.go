package middleware

import (
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"escrow-market/pkg/auth"
	"escrow-market/pkg/models"
)

const (
	ctxWallet = "wallet"
	ctxClaims = "claims"

	// HeaderAdminOTP carries the admin one-time code.
	HeaderAdminOTP = "X-Admin-OTP"
)

// AuthMiddleware handles authentication
type AuthMiddleware struct {
	jwtService *auth.JWTService
	db         *gorm.DB
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(jwtService *auth.JWTService, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		db:         db,
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth middleware for JWT authentication. The wallet in the token becomes
// the caller of every market operation in the request.
func (am *AuthMiddleware) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := am.jwtService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set(ctxClaims, claims)
		c.Set(ctxWallet, claims.WalletKey())
		c.Next()
	}
}

// OptionalAuth sets the wallet when a valid token is present and never rejects
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := am.jwtService.ValidateToken(token); err == nil {
				c.Set(ctxClaims, claims)
				c.Set(ctxWallet, claims.WalletKey())
			}
		}
		c.Next()
	}
}

// RequireAdminOTP requires a valid one-time code on admin routes. A nil
// service disables the check; the market still enforces the super admin.
func RequireAdminOTP(totp *auth.TOTPService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if totp == nil {
			c.Next()
			return
		}
		code := c.GetHeader(HeaderAdminOTP)
		if code == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Admin one-time code required"})
			c.Abort()
			return
		}
		if !totp.Validate(code) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid admin one-time code"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// LogLogin logs login attempts
func (am *AuthMiddleware) LogLogin(wallet, ipAddress, userAgent string, success bool, reason string) {
	loginAttempt := models.LoginAttempt{
		Wallet:    wallet,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   success,
		Reason:    reason,
	}
	if err := am.db.Create(&loginAttempt).Error; err != nil {
		logrus.WithField("wallet", wallet).Warnf("Failed to record login attempt: %v", err)
	}
}

// GetWalletFromContext gets the authenticated wallet from gin context
func GetWalletFromContext(c *gin.Context) (solana.PublicKey, bool) {
	v, exists := c.Get(ctxWallet)
	if !exists {
		return solana.PublicKey{}, false
	}
	wallet, ok := v.(solana.PublicKey)
	return wallet, ok
}

// GetClaimsFromContext gets the token claims from gin context
func GetClaimsFromContext(c *gin.Context) (*auth.JWTClaims, bool) {
	v, exists := c.Get(ctxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.JWTClaims)
	return claims, ok
}
