package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/market"
	"escrow-market/pkg/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

// Validator collects field errors while converting request strings into
// domain values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// GetErrors returns all validation errors
func (v *Validator) GetErrors() ValidationErrors {
	return v.errors
}

// ValidateAddress parses a base58 address.
func (v *Validator) ValidateAddress(field, value string, required bool) solana.PublicKey {
	if value == "" {
		if required {
			v.AddError(field, fmt.Sprintf("%s is required", field))
		}
		return solana.PublicKey{}
	}

	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		v.AddError(field, "invalid base58 address")
		return solana.PublicKey{}
	}
	return key
}

// ValidateAddresses parses an ordered address list.
func (v *Validator) ValidateAddresses(field string, values []string) []solana.PublicKey {
	if len(values) > market.MaxTreasuries {
		v.AddError(field, fmt.Sprintf("at most %d addresses", market.MaxTreasuries))
		return nil
	}
	out := make([]solana.PublicKey, 0, len(values))
	for i, value := range values {
		out = append(out, v.ValidateAddress(fmt.Sprintf("%s[%d]", field, i), value, true))
	}
	return out
}

// ValidateAmount parses a non-negative integer amount in base units. Amounts
// travel as strings so clients never round them through a float.
func (v *Validator) ValidateAmount(field, value string, required bool) uint64 {
	if value == "" {
		if required {
			v.AddError(field, fmt.Sprintf("%s is required", field))
		}
		return 0
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		v.AddError(field, "invalid amount format")
		return 0
	}
	amount, err := models.Uint64FromDecimal(d)
	if err != nil {
		v.AddError(field, "amount must be a whole number of base units within 64 bits")
		return 0
	}
	return amount
}

// ValidateRate parses a rate in basis points.
func (v *Validator) ValidateRate(field string, rate int64) uint64 {
	if rate < 0 || uint64(rate) > market.Permyriad {
		v.AddError(field, fmt.Sprintf("rate must be between 0 and %d basis points", market.Permyriad))
		return 0
	}
	return uint64(rate)
}

// ValidateCurrency parses sol or token.
func (v *Validator) ValidateCurrency(field, value string) market.Currency {
	c, err := market.ParseCurrency(strings.ToLower(value))
	if err != nil {
		v.AddError(field, "currency must be sol or token")
		return ""
	}
	return c
}

// ValidateTime parses an RFC 3339 timestamp.
func (v *Validator) ValidateTime(field, value string) time.Time {
	if value == "" {
		v.AddError(field, fmt.Sprintf("%s is required", field))
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		v.AddError(field, "timestamp must be RFC 3339")
		return time.Time{}
	}
	return t.UTC()
}

// ValidateClaims parses caller-supplied record addresses.
func (v *Validator) ValidateClaims(req ClaimsRequest) market.Claims {
	return market.Claims{
		Config:             v.ValidateAddress("claims.config", req.Config, false),
		Ledger:             v.ValidateAddress("claims.ledger", req.Ledger, false),
		CounterpartyLedger: v.ValidateAddress("claims.counterparty_ledger", req.CounterpartyLedger, false),
		Listing:            v.ValidateAddress("claims.listing", req.Listing, false),
		Offer:              v.ValidateAddress("claims.offer", req.Offer, false),
		Auction:            v.ValidateAddress("claims.auction", req.Auction, false),
	}
}

// ValidateLimit validates pagination limit
func (v *Validator) ValidateLimit(field, value string, defaultLimit, maxLimit int) int {
	if value == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 {
		v.AddError(field, "limit must be a positive integer")
		return defaultLimit
	}
	if limit > maxLimit {
		v.AddError(field, fmt.Sprintf("limit cannot exceed %d", maxLimit))
		return maxLimit
	}
	return limit
}

// ClaimsRequest carries optional record addresses the caller expects the
// operation to touch.
type ClaimsRequest struct {
	Config             string `json:"config"`
	Ledger             string `json:"ledger"`
	CounterpartyLedger string `json:"counterparty_ledger"`
	Listing            string `json:"listing"`
	Offer              string `json:"offer"`
	Auction            string `json:"auction"`
}

// SendValidationErrors sends validation errors as JSON response
func SendValidationErrors(c *gin.Context, errors ValidationErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Validation failed",
		"details": errors,
	})
}

// SendError renders a market error with its code and category. Anything else
// is logged and hidden behind a 500.
func SendError(c *gin.Context, err error) {
	var me *market.Error
	if !errors.As(err, &me) {
		logrus.WithField("path", c.FullPath()).Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(me.Code.HTTPStatus(), gin.H{
		"error":    me.Error(),
		"code":     me.Code,
		"category": me.Code.Category(),
	})
}
