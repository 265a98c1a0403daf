package custody

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"gopkg.in/yaml.v2"

	"escrow-market/pkg/models"
)

// Seed describes development wallets and assets.
//
//	wallets:
//	  - address: <base58>
//	    sol: 5000000000
//	    token: 1000000
//	assets:
//	  - address: <base58>
//	    owner: <base58>
//	    creators:
//	      - address: <base58>
//	        verified: true
type Seed struct {
	Wallets []SeedWallet `yaml:"wallets"`
	Assets  []SeedAsset  `yaml:"assets"`
}

type SeedWallet struct {
	Address string `yaml:"address"`
	Sol     uint64 `yaml:"sol"`
	Token   uint64 `yaml:"token"`
}

type SeedAsset struct {
	Address  string        `yaml:"address"`
	Owner    string        `yaml:"owner"`
	Creators []SeedCreator `yaml:"creators"`
}

type SeedCreator struct {
	Address  string `yaml:"address"`
	Verified bool   `yaml:"verified"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates seed YAML.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	for _, w := range s.Wallets {
		if _, err := solana.PublicKeyFromBase58(w.Address); err != nil {
			return nil, fmt.Errorf("invalid wallet %q: %w", w.Address, err)
		}
	}
	for _, a := range s.Assets {
		if _, err := solana.PublicKeyFromBase58(a.Address); err != nil {
			return nil, fmt.Errorf("invalid asset %q: %w", a.Address, err)
		}
		if _, err := solana.PublicKeyFromBase58(a.Owner); err != nil {
			return nil, fmt.Errorf("invalid owner of %s: %w", a.Address, err)
		}
		for _, c := range a.Creators {
			if _, err := solana.PublicKeyFromBase58(c.Address); err != nil {
				return nil, fmt.Errorf("invalid creator of %s: %w", a.Address, err)
			}
		}
	}
	return &s, nil
}

// Apply funds the wallets and mints the assets on l.
func (s *Seed) Apply(l *Ledger) error {
	for _, w := range s.Wallets {
		if err := l.Fund(solana.MustPublicKeyFromBase58(w.Address), w.Sol, w.Token); err != nil {
			return err
		}
	}
	for _, a := range s.Assets {
		asset := solana.MustPublicKeyFromBase58(a.Address)
		if err := l.Mint(asset, solana.MustPublicKeyFromBase58(a.Owner)); err != nil {
			return fmt.Errorf("failed to mint %s: %w", a.Address, err)
		}
	}
	return nil
}

// Creators returns the creator rows to store for metadata resolution.
func (s *Seed) Creators() []models.AssetCreator {
	var out []models.AssetCreator
	for _, a := range s.Assets {
		for i, c := range a.Creators {
			out = append(out, models.AssetCreator{
				Asset:    a.Address,
				Position: i,
				Creator:  c.Address,
				Verified: c.Verified,
			})
		}
	}
	return out
}
