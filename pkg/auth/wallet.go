package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/xid"
)

var (
	ErrNoChallenge      = errors.New("no pending challenge for wallet")
	ErrInvalidSignature = errors.New("signature does not match wallet")
)

// NonceStore keeps one pending challenge nonce per wallet.
type NonceStore interface {
	Put(ctx context.Context, wallet solana.PublicKey, nonce string, ttl time.Duration) error
	// Take returns and deletes the pending nonce.
	Take(ctx context.Context, wallet solana.PublicKey) (string, error)
}

// Challenge is what a wallet signs to log in.
type Challenge struct {
	Wallet    string    `json:"wallet"`
	Nonce     string    `json:"nonce"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WalletAuthenticator issues login challenges and verifies their signatures.
type WalletAuthenticator struct {
	domain string
	ttl    time.Duration
	nonces NonceStore
}

func NewWalletAuthenticator(domain string, ttl time.Duration, nonces NonceStore) *WalletAuthenticator {
	return &WalletAuthenticator{domain: domain, ttl: ttl, nonces: nonces}
}

// ChallengeMessage is the exact text a wallet signs.
func ChallengeMessage(domain string, wallet solana.PublicKey, nonce string) string {
	return fmt.Sprintf("%s wants you to sign in with your wallet:\n%s\n\nNonce: %s", domain, wallet, nonce)
}

// NewChallenge creates and stores a fresh challenge, replacing any pending one.
func (a *WalletAuthenticator) NewChallenge(ctx context.Context, wallet solana.PublicKey) (*Challenge, error) {
	nonce := xid.New().String()
	if err := a.nonces.Put(ctx, wallet, nonce, a.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}
	return &Challenge{
		Wallet:    wallet.String(),
		Nonce:     nonce,
		Message:   ChallengeMessage(a.domain, wallet, nonce),
		ExpiresAt: time.Now().UTC().Add(a.ttl),
	}, nil
}

// Verify consumes the pending challenge and checks the base58 signature over
// its message. A challenge can be tried once.
func (a *WalletAuthenticator) Verify(ctx context.Context, wallet solana.PublicKey, signature string) error {
	nonce, err := a.nonces.Take(ctx, wallet)
	if err != nil || nonce == "" {
		return ErrNoChallenge
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	if !sig.Verify(wallet, []byte(ChallengeMessage(a.domain, wallet, nonce))) {
		return ErrInvalidSignature
	}
	return nil
}

// MemoryNonceStore is a NonceStore for single-process deployments.
type MemoryNonceStore struct {
	mu      sync.Mutex
	pending map[solana.PublicKey]memoryNonce
	now     func() time.Time
}

type memoryNonce struct {
	value   string
	expires time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{pending: make(map[solana.PublicKey]memoryNonce), now: time.Now}
}

func (s *MemoryNonceStore) Put(_ context.Context, wallet solana.PublicKey, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[wallet] = memoryNonce{value: nonce, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryNonceStore) Take(_ context.Context, wallet solana.PublicKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.pending[wallet]
	delete(s.pending, wallet)
	if !ok || !s.now().Before(n.expires) {
		return "", ErrNoChallenge
	}
	return n.value, nil
}
