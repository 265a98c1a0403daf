// Package address derives the deterministic record addresses used by the
// marketplace. Every record lives at a program-derived address computed from a
// fixed seed prefix plus the record's logical key, so a caller can never point
// an operation at a record it does not own.
package address

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed prefixes for each record kind.
const (
	SeedGlobal  = "global-authority-v1"
	SeedUser    = "user-info-v1"
	SeedListing = "sell-info-v1"
	SeedOffer   = "offer-info-v1"
	SeedAuction = "auction-info-v1"
	SeedVault   = "escrow-vault"
)

// Deriver computes record addresses under one program ID.
type Deriver struct {
	programID solana.PublicKey
}

// NewDeriver creates a deriver for the given program ID
func NewDeriver(programID solana.PublicKey) (*Deriver, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("program id must not be empty")
	}
	return &Deriver{programID: programID}, nil
}

// ProgramID returns the program the addresses are derived under.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// Config returns the address of the global market configuration.
func (d *Deriver) Config() (solana.PublicKey, error) {
	return d.derive(SeedGlobal)
}

// Vault returns the address of the pooled escrow vault.
func (d *Deriver) Vault() (solana.PublicKey, error) {
	return d.derive(SeedVault)
}

// UserLedger returns the ledger address of a participant.
func (d *Deriver) UserLedger(owner solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(SeedUser, owner)
}

// Listing returns the listing address of an asset.
func (d *Deriver) Listing(asset solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(SeedListing, asset)
}

// Offer returns the address of a bidder's offer on an asset.
func (d *Deriver) Offer(asset, bidder solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(SeedOffer, asset, bidder)
}

// Auction returns the auction address of an asset.
func (d *Deriver) Auction(asset solana.PublicKey) (solana.PublicKey, error) {
	return d.derive(SeedAuction, asset)
}

func (d *Deriver) derive(prefix string, keys ...solana.PublicKey) (solana.PublicKey, error) {
	seeds := make([][]byte, 0, len(keys)+1)
	seeds = append(seeds, []byte(prefix))
	for _, k := range keys {
		if k.IsZero() {
			return solana.PublicKey{}, fmt.Errorf("empty key for %s address", prefix)
		}
		seeds = append(seeds, k.Bytes())
	}

	addr, _, err := solana.FindProgramAddress(seeds, d.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive %s address: %w", prefix, err)
	}
	return addr, nil
}
