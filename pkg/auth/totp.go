package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize         = 32
	pbkdf2Iterations = 10000
)

// TOTPService guards admin operations with a time-based one-time code
type TOTPService struct {
	issuer string
	secret string
	now    func() time.Time
}

// NewTOTPService creates a TOTP service for the given plaintext secret
func NewTOTPService(issuer, secret string) *TOTPService {
	return &TOTPService{issuer: issuer, secret: secret, now: time.Now}
}

// NewTOTPServiceFromEncrypted decrypts the configured secret first
func NewTOTPServiceFromEncrypted(issuer, encrypted, passphrase string) (*TOTPService, error) {
	secret, err := DecryptSecret(encrypted, passphrase)
	if err != nil {
		return nil, err
	}
	return NewTOTPService(issuer, secret), nil
}

// GenerateSecret generates a new TOTP secret for an account
func GenerateSecret(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		SecretSize:  32,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key, nil
}

// Validate accepts the current code and the codes one period either side
func (s *TOTPService) Validate(code string) bool {
	ok, err := totp.ValidateCustom(code, s.secret, s.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// EncryptSecret encrypts a TOTP secret using AES-256-GCM
func EncryptSecret(secret, password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// salt | nonce | ciphertext
	out := append(salt, gcm.Seal(nonce, nonce, []byte(secret), nil)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptSecret decrypts a TOTP secret using AES-256-GCM
func DecryptSecret(encryptedSecret, password string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encryptedSecret)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	if len(data) < saltSize {
		return "", fmt.Errorf("invalid encrypted secret length")
	}

	gcm, err := newGCM(password, data[:saltSize])
	if err != nil {
		return "", err
	}
	ciphertext := data[saltSize:]
	if len(ciphertext) < gcm.NonceSize() {
		return "", fmt.Errorf("invalid ciphertext length")
	}

	plaintext, err := gcm.Open(nil, ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
