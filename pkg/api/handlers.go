package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"escrow-market/internal/market"
	"escrow-market/pkg/middleware"
	"escrow-market/pkg/websocket"
)

// Browser lists the open offers of an asset and the running auctions.
type Browser interface {
	ActiveOffers(ctx context.Context, asset solana.PublicKey) ([]*market.Offer, error)
	ActiveAuctions(ctx context.Context) ([]*market.Auction, error)
}

// SettlementJournal reads executed settlements.
type SettlementJournal interface {
	Get(ctx context.Context, id string) (market.Settlement, error)
	History(ctx context.Context, party solana.PublicKey, limit int) ([]market.Settlement, error)
}

// MarketHandlers exposes the escrow engine over HTTP. The authenticated
// wallet is the caller of every mutating operation.
type MarketHandlers struct {
	engine  *market.Engine
	browser Browser
	journal SettlementJournal
	hub     *websocket.Hub
	view    display
}

// NewMarketHandlers creates market handlers. browser, journal and hub may be
// nil; their endpoints then answer 503.
func NewMarketHandlers(engine *market.Engine, browser Browser, journal SettlementJournal, hub *websocket.Hub, tokenDecimals int32) *MarketHandlers {
	return &MarketHandlers{
		engine:  engine,
		browser: browser,
		journal: journal,
		hub:     hub,
		view:    display{tokenDecimals: tokenDecimals},
	}
}

// Request bodies. Amounts are decimal strings in base units.

type FeeBody struct {
	FeeRateSol   int64         `json:"fee_rate_sol"`
	FeeRateToken int64         `json:"fee_rate_token"`
	Claims       ClaimsRequest `json:"claims"`
}

type TreasuryBody struct {
	Treasury string        `json:"treasury"`
	Rate     int64         `json:"rate"`
	Claims   ClaimsRequest `json:"claims"`
}

type BalanceBody struct {
	Sol    string        `json:"sol"`
	Token  string        `json:"token"`
	Claims ClaimsRequest `json:"claims"`
}

type ListBody struct {
	PriceSol   string        `json:"price_sol"`
	PriceToken string        `json:"price_token"`
	Claims     ClaimsRequest `json:"claims"`
}

type PurchaseBody struct {
	Currency   string        `json:"currency"`
	Treasuries []string      `json:"treasuries"`
	Claims     ClaimsRequest `json:"claims"`
}

type OfferBody struct {
	Price    string        `json:"price"`
	Currency string        `json:"currency"`
	Claims   ClaimsRequest `json:"claims"`
}

type AcceptOfferBody struct {
	Bidder     string        `json:"bidder"`
	Treasuries []string      `json:"treasuries"`
	Claims     ClaimsRequest `json:"claims"`
}

type AuctionBody struct {
	StartPrice   string        `json:"start_price"`
	MinIncrement string        `json:"min_increment"`
	Currency     string        `json:"currency"`
	EndTime      string        `json:"end_time"`
	Claims       ClaimsRequest `json:"claims"`
}

type BidBody struct {
	Price    string        `json:"price"`
	RefundTo string        `json:"refund_to"`
	Claims   ClaimsRequest `json:"claims"`
}

type ClaimAuctionBody struct {
	Creator    string        `json:"creator"`
	Treasuries []string      `json:"treasuries"`
	Claims     ClaimsRequest `json:"claims"`
}

type AssetBody struct {
	Claims ClaimsRequest `json:"claims"`
}

// bind decodes an optional JSON body. An empty body leaves dst untouched.
func bind(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func caller(c *gin.Context) (solana.PublicKey, bool) {
	wallet, ok := middleware.GetWalletFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return wallet, ok
}

func assetParam(c *gin.Context, v *Validator) solana.PublicKey {
	return v.ValidateAddress("asset", c.Param("asset"), true)
}

// treasuries returns the caller's references, or the stored order when the
// caller sent none. That fallback is read before the trade's unit of work, so a
// treasury change in between fails the trade with treasury_mismatch.
func (h *MarketHandlers) treasuries(ctx context.Context, refs []solana.PublicKey) ([]solana.PublicKey, error) {
	if len(refs) > 0 {
		return refs, nil
	}
	cfg, err := h.engine.Config(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]solana.PublicKey, 0, len(cfg.Treasuries))
	for _, t := range cfg.Treasuries {
		out = append(out, t.Address)
	}
	return out, nil
}

func receipt(c *gin.Context, status int, r *market.Receipt, err error) {
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(status, gin.H{
		"success": true,
		"data":    r,
	})
}

// Admin Handlers

// Initialize creates the market configuration with the caller as super admin
func (h *MarketHandlers) Initialize(c *gin.Context) {
	h.fees(c, http.StatusCreated, h.engine.Initialize)
}

// UpdateFee replaces both fee rates
func (h *MarketHandlers) UpdateFee(c *gin.Context) {
	h.fees(c, http.StatusOK, h.engine.UpdateFee)
}

func (h *MarketHandlers) fees(c *gin.Context, status int, op func(context.Context, market.FeeRequest) (*market.Receipt, error)) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body FeeBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.FeeRequest{
		Caller:       wallet,
		FeeRateSol:   v.ValidateRate("fee_rate_sol", body.FeeRateSol),
		FeeRateToken: v.ValidateRate("fee_rate_token", body.FeeRateToken),
		Claims:       v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := op(c.Request.Context(), req)
	receipt(c, status, r, err)
}

// AddTreasury appends a fee beneficiary
func (h *MarketHandlers) AddTreasury(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body TreasuryBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.TreasuryRequest{
		Caller:   wallet,
		Treasury: v.ValidateAddress("treasury", body.Treasury, true),
		Rate:     v.ValidateRate("rate", body.Rate),
		Claims:   v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := h.engine.AddTreasury(c.Request.Context(), req)
	receipt(c, http.StatusCreated, r, err)
}

// RemoveTreasury removes a fee beneficiary. The last treasury moves into the
// freed position.
func (h *MarketHandlers) RemoveTreasury(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body AssetBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.TreasuryRequest{
		Caller:   wallet,
		Treasury: v.ValidateAddress("treasury", c.Param("address"), true),
		Claims:   v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := h.engine.RemoveTreasury(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// GetConfig returns the market configuration
func (h *MarketHandlers) GetConfig(c *gin.Context) {
	cfg, err := h.engine.Config(c.Request.Context())
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cfg,
	})
}

// Ledger Handlers

// InitLedger creates the caller's escrow ledger
func (h *MarketHandlers) InitLedger(c *gin.Context) {
	h.balance(c, http.StatusCreated, h.engine.InitUserLedger)
}

// Deposit moves funds into escrow
func (h *MarketHandlers) Deposit(c *gin.Context) {
	h.balance(c, http.StatusOK, h.engine.Deposit)
}

// Withdraw moves funds out of escrow
func (h *MarketHandlers) Withdraw(c *gin.Context) {
	h.balance(c, http.StatusOK, h.engine.Withdraw)
}

func (h *MarketHandlers) balance(c *gin.Context, status int, op func(context.Context, market.LedgerRequest) (*market.Receipt, error)) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body BalanceBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.LedgerRequest{
		Caller: wallet,
		Sol:    v.ValidateAmount("sol", body.Sol, false),
		Token:  v.ValidateAmount("token", body.Token, false),
		Claims: v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := op(c.Request.Context(), req)
	receipt(c, status, r, err)
}

// GetMyLedger returns the caller's ledger
func (h *MarketHandlers) GetMyLedger(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	h.writeLedger(c, wallet)
}

// GetLedger returns any participant's ledger
func (h *MarketHandlers) GetLedger(c *gin.Context) {
	v := NewValidator()
	owner := v.ValidateAddress("owner", c.Param("owner"), true)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	h.writeLedger(c, owner)
}

func (h *MarketHandlers) writeLedger(c *gin.Context, owner solana.PublicKey) {
	l, err := h.engine.UserLedger(c.Request.Context(), owner)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.view.ledger(l),
	})
}

// Listing Handlers

// InitListing creates the listing record of an asset
func (h *MarketHandlers) InitListing(c *gin.Context) {
	h.assetOp(c, http.StatusCreated, h.engine.InitListing)
}

// Delist withdraws a listing
func (h *MarketHandlers) Delist(c *gin.Context) {
	h.assetOp(c, http.StatusOK, h.engine.Delist)
}

// InitOffer creates the caller's offer record on an asset
func (h *MarketHandlers) InitOffer(c *gin.Context) {
	h.assetOp(c, http.StatusCreated, h.engine.InitOffer)
}

// CancelOffer withdraws the caller's offer
func (h *MarketHandlers) CancelOffer(c *gin.Context) {
	h.assetOp(c, http.StatusOK, h.engine.CancelOffer)
}

// InitAuction creates the auction record of an asset
func (h *MarketHandlers) InitAuction(c *gin.Context) {
	h.assetOp(c, http.StatusCreated, h.engine.InitAuction)
}

// CancelAuction returns an unsold asset to its creator
func (h *MarketHandlers) CancelAuction(c *gin.Context) {
	h.assetOp(c, http.StatusOK, h.engine.CancelAuction)
}

func (h *MarketHandlers) assetOp(c *gin.Context, status int, op func(context.Context, market.AssetRequest) (*market.Receipt, error)) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body AssetBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.AssetRequest{
		Caller: wallet,
		Asset:  assetParam(c, v),
		Claims: v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := op(c.Request.Context(), req)
	receipt(c, status, r, err)
}

// List puts an asset up for sale
func (h *MarketHandlers) List(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body ListBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.ListRequest{
		Caller:     wallet,
		Asset:      assetParam(c, v),
		PriceSol:   v.ValidateAmount("price_sol", body.PriceSol, true),
		PriceToken: v.ValidateAmount("price_token", body.PriceToken, true),
		Claims:     v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := h.engine.List(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// Purchase buys a listed asset at its price
func (h *MarketHandlers) Purchase(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body PurchaseBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.PurchaseRequest{
		Caller:     wallet,
		Asset:      assetParam(c, v),
		Currency:   v.ValidateCurrency("currency", body.Currency),
		Treasuries: v.ValidateAddresses("treasuries", body.Treasuries),
		Claims:     v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	var err error
	if req.Treasuries, err = h.treasuries(c.Request.Context(), req.Treasuries); err != nil {
		SendError(c, err)
		return
	}
	r, err := h.engine.Purchase(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// GetListing returns the listing of an asset
func (h *MarketHandlers) GetListing(c *gin.Context) {
	v := NewValidator()
	asset := assetParam(c, v)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	l, err := h.engine.Listing(c.Request.Context(), asset)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.view.listing(l),
	})
}

// Offer Handlers

// MakeOffer escrows an offer below the listing price
func (h *MarketHandlers) MakeOffer(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body OfferBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.MakeOfferRequest{
		Caller:   wallet,
		Asset:    assetParam(c, v),
		Price:    v.ValidateAmount("price", body.Price, true),
		Currency: v.ValidateCurrency("currency", body.Currency),
		Claims:   v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := h.engine.MakeOffer(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// AcceptOffer sells the asset to one bidder
func (h *MarketHandlers) AcceptOffer(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body AcceptOfferBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.AcceptOfferRequest{
		Caller:     wallet,
		Asset:      assetParam(c, v),
		Bidder:     v.ValidateAddress("bidder", body.Bidder, true),
		Treasuries: v.ValidateAddresses("treasuries", body.Treasuries),
		Claims:     v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	var err error
	if req.Treasuries, err = h.treasuries(c.Request.Context(), req.Treasuries); err != nil {
		SendError(c, err)
		return
	}
	r, err := h.engine.AcceptOffer(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// GetOffer returns one bidder's offer on an asset
func (h *MarketHandlers) GetOffer(c *gin.Context) {
	v := NewValidator()
	asset := assetParam(c, v)
	bidder := v.ValidateAddress("bidder", c.Param("bidder"), true)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	o, err := h.engine.Offer(c.Request.Context(), asset, bidder)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.view.offer(o),
	})
}

// GetOffers returns the open offers on an asset
func (h *MarketHandlers) GetOffers(c *gin.Context) {
	if h.browser == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Offer index unavailable"})
		return
	}

	v := NewValidator()
	asset := assetParam(c, v)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	offers, err := h.browser.ActiveOffers(c.Request.Context(), asset)
	if err != nil {
		SendError(c, err)
		return
	}
	views := make([]OfferView, 0, len(offers))
	for _, o := range offers {
		views = append(views, h.view.offer(o))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}

// Auction Handlers

// CreateAuction starts an auction on an asset the caller owns
func (h *MarketHandlers) CreateAuction(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body AuctionBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.CreateAuctionRequest{
		Caller:       wallet,
		Asset:        assetParam(c, v),
		StartPrice:   v.ValidateAmount("start_price", body.StartPrice, true),
		MinIncrement: v.ValidateAmount("min_increment", body.MinIncrement, true),
		Currency:     v.ValidateCurrency("currency", body.Currency),
		EndTime:      v.ValidateTime("end_time", body.EndTime),
		Claims:       v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}
	r, err := h.engine.CreateAuction(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// PlaceBid outbids the current highest bidder
func (h *MarketHandlers) PlaceBid(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body BidBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.PlaceBidRequest{
		Caller:   wallet,
		Asset:    assetParam(c, v),
		Price:    v.ValidateAmount("price", body.Price, true),
		RefundTo: v.ValidateAddress("refund_to", body.RefundTo, false),
		Claims:   v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	// the refund target defaults to the current highest bidder
	if req.RefundTo.IsZero() {
		a, err := h.engine.Auction(c.Request.Context(), req.Asset)
		if err != nil {
			SendError(c, err)
			return
		}
		req.RefundTo = a.HighestBidder
	}
	r, err := h.engine.PlaceBid(c.Request.Context(), req)
	receipt(c, http.StatusOK, r, err)
}

// ClaimAuction settles an ended auction for its winner
func (h *MarketHandlers) ClaimAuction(c *gin.Context) {
	wallet, ok := caller(c)
	if !ok {
		return
	}
	var body ClaimAuctionBody
	if !bind(c, &body) {
		return
	}

	v := NewValidator()
	req := market.ClaimAuctionRequest{
		Caller:     wallet,
		Asset:      assetParam(c, v),
		Creator:    v.ValidateAddress("creator", body.Creator, false),
		Treasuries: v.ValidateAddresses("treasuries", body.Treasuries),
		Claims:     v.ValidateClaims(body.Claims),
	}
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	ctx := c.Request.Context()
	if req.Creator.IsZero() {
		a, err := h.engine.Auction(ctx, req.Asset)
		if err != nil {
			SendError(c, err)
			return
		}
		req.Creator = a.Creator
	}
	var err error
	if req.Treasuries, err = h.treasuries(ctx, req.Treasuries); err != nil {
		SendError(c, err)
		return
	}
	r, err := h.engine.ClaimAuction(ctx, req)
	receipt(c, http.StatusOK, r, err)
}

// GetAuction returns the auction of an asset
func (h *MarketHandlers) GetAuction(c *gin.Context) {
	v := NewValidator()
	asset := assetParam(c, v)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	a, err := h.engine.Auction(c.Request.Context(), asset)
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.view.auction(a),
	})
}

// GetAuctions returns active auctions, soonest end first
func (h *MarketHandlers) GetAuctions(c *gin.Context) {
	if h.browser == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Auction index unavailable"})
		return
	}

	auctions, err := h.browser.ActiveAuctions(c.Request.Context())
	if err != nil {
		SendError(c, err)
		return
	}
	views := make([]AuctionView, 0, len(auctions))
	for _, a := range auctions {
		views = append(views, h.view.auction(a))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
	})
}

// Settlement Handlers

// GetSettlements returns the caller's settlement history
func (h *MarketHandlers) GetSettlements(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Settlement journal unavailable"})
		return
	}
	wallet, ok := caller(c)
	if !ok {
		return
	}

	v := NewValidator()
	limit := v.ValidateLimit("limit", c.Query("limit"), 50, 200)
	if v.HasErrors() {
		SendValidationErrors(c, v.GetErrors())
		return
	}

	history, err := h.journal.History(c.Request.Context(), wallet, limit)
	if err != nil {
		SendError(c, err)
		return
	}
	if history == nil {
		history = []market.Settlement{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    history,
	})
}

// GetSettlement returns one settlement
func (h *MarketHandlers) GetSettlement(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Settlement journal unavailable"})
		return
	}

	s, err := h.journal.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Settlement not found"})
		return
	}
	if err != nil {
		SendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    s,
	})
}

// WebSocket Handler
func (h *MarketHandlers) HandleWebSocket(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event stream unavailable"})
		return
	}
	wallet, _ := middleware.GetWalletFromContext(c)
	h.hub.ServeWS(c, wallet)
}
