package api

import (
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"escrow-market/internal/market"
	"escrow-market/pkg/auth"
	"escrow-market/pkg/middleware"
)

// AuthHandlers contains wallet login and session handlers
type AuthHandlers struct {
	engine            *market.Engine
	jwtService        *auth.JWTService
	wallets           *auth.WalletAuthenticator
	authMiddleware    *middleware.AuthMiddleware
	sessionMiddleware *middleware.SessionMiddleware
	view              display
}

// NewAuthHandlers creates new authentication handlers
func NewAuthHandlers(engine *market.Engine, jwtService *auth.JWTService, wallets *auth.WalletAuthenticator,
	authMiddleware *middleware.AuthMiddleware, sessionMiddleware *middleware.SessionMiddleware, tokenDecimals int32) *AuthHandlers {
	return &AuthHandlers{
		engine:            engine,
		jwtService:        jwtService,
		wallets:           wallets,
		authMiddleware:    authMiddleware,
		sessionMiddleware: sessionMiddleware,
		view:              display{tokenDecimals: tokenDecimals},
	}
}

// ChallengeRequest asks for a login nonce
type ChallengeRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

// LoginRequest proves wallet ownership with a signed challenge
type LoginRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest ends one session, or all of the wallet's sessions
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	AllSessions  bool   `json:"all_sessions"`
}

// Challenge issues a one-time message for the wallet to sign
func (ah *AuthHandlers) Challenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := NewValidator()
	wallet := v.ValidateAddress("wallet", req.Wallet, true)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	challenge, err := ah.wallets.NewChallenge(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    challenge,
	})
}

// Login verifies the signed challenge and opens a session
func (ah *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v := NewValidator()
	wallet := v.ValidateAddress("wallet", req.Wallet, true)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	ip, ua := c.ClientIP(), c.Request.UserAgent()
	if err := ah.wallets.Verify(c.Request.Context(), wallet, req.Signature); err != nil {
		reason := "INVALID_SIGNATURE"
		switch {
		case errors.Is(err, auth.ErrNoChallenge):
			reason = "NO_CHALLENGE"
		case !errors.Is(err, auth.ErrInvalidSignature):
			reason = "MALFORMED_SIGNATURE"
		}
		ah.authMiddleware.LogLogin(wallet.String(), ip, ua, false, reason)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid wallet signature"})
		return
	}

	tokenPair, err := ah.jwtService.GenerateTokenPair(wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}
	if _, err := ah.sessionMiddleware.CreateSession(wallet.String(), tokenPair.RefreshToken, ip, ua, ah.jwtService.RefreshTTL()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	ah.authMiddleware.LogLogin(wallet.String(), ip, ua, true, "SUCCESS")

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"wallet":  wallet.String(),
		"tokens":  tokenPair,
	})
}

// Logout revokes the given refresh token, or every session of the wallet
func (ah *AuthHandlers) Logout(c *gin.Context) {
	wallet, ok := middleware.GetWalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req LogoutRequest
	if !bind(c, &req) {
		return
	}

	switch {
	case req.AllSessions:
		if err := ah.sessionMiddleware.InvalidateAllWalletSessions(wallet.String()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke sessions"})
			return
		}
	case req.RefreshToken != "":
		session, err := ah.sessionMiddleware.FindSession(req.RefreshToken)
		if err == nil && session.Wallet != wallet.String() {
			err = middleware.ErrSessionNotFound
		}
		if err == nil {
			err = ah.sessionMiddleware.InvalidateSession(req.RefreshToken)
		}
		if errors.Is(err, middleware.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke session"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token or all_sessions is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// RefreshToken rotates a refresh token and issues a new access token
func (ah *AuthHandlers) RefreshToken(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := ah.sessionMiddleware.FindSession(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}
	wallet, err := solana.PublicKeyFromBase58(session.Wallet)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	tokenPair, err := ah.jwtService.GenerateTokenPair(wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}
	if _, err := ah.sessionMiddleware.RotateSession(req.RefreshToken, tokenPair.RefreshToken, ah.jwtService.RefreshTTL()); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Token refreshed",
		"tokens":  tokenPair,
	})
}

// GetProfile returns the wallet, its escrow ledger if any and its sessions
func (ah *AuthHandlers) GetProfile(c *gin.Context) {
	wallet, ok := middleware.GetWalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	sessions, err := ah.sessionMiddleware.GetActiveSessions(wallet.String())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sessions"})
		return
	}

	profile := gin.H{
		"wallet":   wallet.String(),
		"sessions": sessions,
		"ledger":   nil,
	}
	ledger, err := ah.engine.UserLedger(c.Request.Context(), wallet)
	switch {
	case err == nil:
		profile["ledger"] = ah.view.ledger(ledger)
	case !market.IsCode(err, market.CodeRecordNotFound):
		SendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    profile,
	})
}
