package models

import (
	"time"
)

// WalletSession tracks an issued refresh token for a wallet
type WalletSession struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Wallet           string    `gorm:"not null;size:44;index" json:"wallet"`
	RefreshTokenHash string    `gorm:"unique;not null;size:64" json:"-"` // sha256 hex
	IPAddress        string    `gorm:"not null" json:"ip_address"`
	UserAgent        string    `json:"user_agent"`
	Revoked          bool      `gorm:"not null;default:false" json:"revoked"`
	ExpiresAt        time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Valid reports whether the session can still refresh tokens.
func (s *WalletSession) Valid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// LoginAttempt represents login attempts for security monitoring
type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Wallet    string    `gorm:"not null;size:44;index" json:"wallet"`
	IPAddress string    `gorm:"not null;index" json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Success   bool      `gorm:"not null;index" json:"success"`
	Reason    string    `json:"reason,omitempty"` // Failure reason
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// RateLimit is the database fallback for rate limiting when redis is off
type RateLimit struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"unique;not null" json:"key"` // IP or wallet
	Count       int       `gorm:"not null" json:"count"`
	WindowStart time.Time `gorm:"not null;index" json:"window_start"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName methods
func (WalletSession) TableName() string { return "wallet_sessions" }
func (LoginAttempt) TableName() string  { return "login_attempts" }
func (RateLimit) TableName() string     { return "rate_limits" }
