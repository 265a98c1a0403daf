package middleware

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"escrow-market/pkg/auth"
	"escrow-market/pkg/models"
)

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionMiddleware manages refresh-token sessions
type SessionMiddleware struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(db *gorm.DB) *SessionMiddleware {
	return &SessionMiddleware{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession stores a new session for the refresh token
func (sm *SessionMiddleware) CreateSession(wallet, refreshToken, ipAddress, userAgent string, ttl time.Duration) (*models.WalletSession, error) {
	session := &models.WalletSession{
		Wallet:           wallet,
		RefreshTokenHash: auth.HashRefreshToken(refreshToken),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        sm.now().Add(ttl),
	}
	if err := sm.db.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// FindSession returns the live session of a refresh token
func (sm *SessionMiddleware) FindSession(refreshToken string) (*models.WalletSession, error) {
	var session models.WalletSession
	err := sm.db.Where("refresh_token_hash = ? AND revoked = ? AND expires_at > ?",
		auth.HashRefreshToken(refreshToken), false, sm.now()).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RotateSession swaps a valid refresh token for a new one and extends the
// session. The old token stops working.
func (sm *SessionMiddleware) RotateSession(oldToken, newToken string, ttl time.Duration) (*models.WalletSession, error) {
	var session models.WalletSession
	err := sm.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("refresh_token_hash = ? AND revoked = ? AND expires_at > ?",
			auth.HashRefreshToken(oldToken), false, sm.now()).First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		session.RefreshTokenHash = auth.HashRefreshToken(newToken)
		session.ExpiresAt = sm.now().Add(ttl)
		return tx.Save(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// InvalidateSession revokes the session of a refresh token
func (sm *SessionMiddleware) InvalidateSession(refreshToken string) error {
	res := sm.db.Model(&models.WalletSession{}).
		Where("refresh_token_hash = ? AND revoked = ?", auth.HashRefreshToken(refreshToken), false).
		Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InvalidateAllWalletSessions revokes every session of a wallet
func (sm *SessionMiddleware) InvalidateAllWalletSessions(wallet string) error {
	return sm.db.Model(&models.WalletSession{}).
		Where("wallet = ? AND revoked = ?", wallet, false).
		Update("revoked", true).Error
}

// GetActiveSessions gets active sessions for a wallet
func (sm *SessionMiddleware) GetActiveSessions(wallet string) ([]models.WalletSession, error) {
	var sessions []models.WalletSession
	err := sm.db.Where("wallet = ? AND revoked = ? AND expires_at > ?", wallet, false, sm.now()).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

// CleanupExpiredSessions removes expired and revoked sessions
func (sm *SessionMiddleware) CleanupExpiredSessions() (int64, error) {
	res := sm.db.Where("expires_at < ? OR revoked = ?", sm.now(), true).Delete(&models.WalletSession{})
	return res.RowsAffected, res.Error
}
