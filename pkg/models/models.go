package models

/*
Escrow Market Database Models

This package contains the gorm models, organized by domain:

- market.go     - MarketConfigRecord and its ordered TreasuryRecord rows
- user.go       - UserLedgerRecord (escrow balances and traded volume)
- trading.go    - ListingRecord, OfferRecord and AuctionRecord
- settlement.go - journal of executed custody batches
- metadata.go   - asset creators used to resolve collections
- auth.go       - wallet sessions, login attempts and rate limits
- amount.go     - the dialect-aware amount column type
- utils.go      - amount and address conversions

Every record keyed by a derived address stores it base58 encoded in the
`address` primary key. Amounts are uint64 minor units held in Amount columns:
numeric(20,0) on PostgreSQL and exact decimal text on SQLite, so the full range
survives a round trip on either driver.

Each record converts to and from its internal/market counterpart with
NewXRecord and ToDomain.
*/
