package market

import (
	"errors"
	"fmt"
	"net/http"

	"escrow-market/pkg/safe"
)

// Code identifies a specific failure.
type Code string

// Category groups codes by the kind of mistake a caller made.
type Category string

const (
	CategoryAuthorization Category = "authorization"
	CategoryState         Category = "state"
	CategoryValidation    Category = "validation"
	CategoryArithmetic    Category = "arithmetic"
	CategoryExternal      Category = "external"
)

const (
	// authorization
	CodeNotSuperAdmin         Code = "not_super_admin"
	CodeSellerMismatch        Code = "seller_mismatch"
	CodeBidderMismatch        Code = "bidder_mismatch"
	CodeCreatorMismatch       Code = "creator_mismatch"
	CodeOwnerMismatch         Code = "owner_mismatch"
	CodeRecordAddressMismatch Code = "record_address_mismatch"
	CodeSelfDealing           Code = "self_dealing"
	CodeConsecutiveBid        Code = "consecutive_bid"
	CodeBidFromCreator        Code = "bid_from_creator"

	// state
	CodeRecordNotFound    Code = "record_not_found"
	CodeRecordExists      Code = "record_exists"
	CodeNotListed         Code = "not_listed"
	CodeAlreadyListed     Code = "already_listed"
	CodeOfferInactive     Code = "offer_inactive"
	CodeStaleOffer        Code = "stale_offer"
	CodeAuctionNotActive  Code = "auction_not_active"
	CodeAuctionInProgress Code = "auction_in_progress"
	CodeAuctionEnded      Code = "auction_ended"
	CodeAuctionNotEnded   Code = "auction_not_ended"
	CodeAuctionHasBid     Code = "auction_has_bid"
	CodeAuctionHasNoBid   Code = "auction_has_no_bid"
	CodeNoTreasury        Code = "no_treasury"

	// validation
	CodeInvalidFeeRate      Code = "invalid_fee_rate"
	CodeInvalidTreasuryRate Code = "invalid_treasury_rate"
	CodeTreasuryExists      Code = "treasury_exists"
	CodeTreasuryCapacity    Code = "treasury_capacity"
	CodeTreasuryRateSum     Code = "treasury_rate_sum"
	CodeTreasuryNotFound    Code = "treasury_not_found"
	CodeTreasuryMismatch    Code = "treasury_mismatch"
	CodeInvalidPrice        Code = "invalid_price"
	CodeInvalidAmount       Code = "invalid_amount"
	CodeInvalidCurrency     Code = "invalid_currency"
	CodeOfferOutOfRange     Code = "offer_out_of_range"
	CodeInvalidIncrement    Code = "invalid_increment"
	CodeInvalidEndTime      Code = "invalid_end_time"
	CodeBidTooLow           Code = "bid_too_low"
	CodeRefundMismatch      Code = "refund_mismatch"
	CodeCreatorRefMismatch  Code = "creator_reference_mismatch"

	// arithmetic
	CodeOverflow           Code = "overflow"
	CodeUnderflow          Code = "underflow"
	CodeInsufficientEscrow Code = "insufficient_escrow"

	// external
	CodeNoVerifiedCreator   Code = "no_verified_creator"
	CodeMetadataUnavailable Code = "metadata_unavailable"
	CodeCustodyFailed       Code = "custody_failed"
	CodeAddressDerivation   Code = "address_derivation"
)

// Category returns the code's category.
func (c Code) Category() Category {
	switch c {
	case CodeNotSuperAdmin, CodeSellerMismatch, CodeBidderMismatch, CodeCreatorMismatch,
		CodeOwnerMismatch, CodeRecordAddressMismatch, CodeSelfDealing, CodeConsecutiveBid,
		CodeBidFromCreator:
		return CategoryAuthorization
	case CodeRecordNotFound, CodeRecordExists, CodeNotListed, CodeAlreadyListed, CodeOfferInactive,
		CodeStaleOffer, CodeAuctionNotActive, CodeAuctionInProgress, CodeAuctionEnded,
		CodeAuctionNotEnded, CodeAuctionHasBid, CodeAuctionHasNoBid, CodeNoTreasury:
		return CategoryState
	case CodeOverflow, CodeUnderflow, CodeInsufficientEscrow:
		return CategoryArithmetic
	case CodeNoVerifiedCreator, CodeMetadataUnavailable, CodeCustodyFailed, CodeAddressDerivation:
		return CategoryExternal
	default:
		return CategoryValidation
	}
}

// HTTPStatus maps the code to a response status.
func (c Code) HTTPStatus() int {
	if c == CodeRecordNotFound {
		return http.StatusNotFound
	}
	switch c.Category() {
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryState:
		return http.StatusConflict
	case CategoryArithmetic:
		return http.StatusUnprocessableEntity
	case CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// Error is a domain failure. Two errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the domain code from err, or "" for infrastructure errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Sentinels for errors.Is.
var (
	ErrNotSuperAdmin         = &Error{Code: CodeNotSuperAdmin, Message: "caller is not the super admin"}
	ErrRecordNotFound        = &Error{Code: CodeRecordNotFound, Message: "record not found"}
	ErrRecordExists          = &Error{Code: CodeRecordExists, Message: "record already exists"}
	ErrRecordAddressMismatch = &Error{Code: CodeRecordAddressMismatch, Message: "record address does not match derivation"}
	ErrNotListed             = &Error{Code: CodeNotListed, Message: "asset is not listed"}
	ErrAlreadyListed         = &Error{Code: CodeAlreadyListed, Message: "asset is already listed"}
	ErrSelfDealing           = &Error{Code: CodeSelfDealing, Message: "caller cannot trade with itself"}
	ErrOfferInactive         = &Error{Code: CodeOfferInactive, Message: "offer is not active"}
	ErrStaleOffer            = &Error{Code: CodeStaleOffer, Message: "offer was made against an earlier listing"}
	ErrAuctionNotActive      = &Error{Code: CodeAuctionNotActive, Message: "auction is not active"}
	ErrAuctionEnded          = &Error{Code: CodeAuctionEnded, Message: "auction has ended"}
	ErrAuctionNotEnded       = &Error{Code: CodeAuctionNotEnded, Message: "auction has not ended"}
	ErrNoTreasury            = &Error{Code: CodeNoTreasury, Message: "no treasury configured"}
	ErrTreasuryMismatch      = &Error{Code: CodeTreasuryMismatch, Message: "treasury references do not match stored order"}
	ErrOverflow              = &Error{Code: CodeOverflow, Message: "arithmetic overflow"}
	ErrUnderflow             = &Error{Code: CodeUnderflow, Message: "arithmetic underflow"}
	ErrNoVerifiedCreator     = &Error{Code: CodeNoVerifiedCreator, Message: "asset has no verified creator"}
)

// arith converts a checked-math failure into a domain error.
func arith(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, safe.ErrOverflow):
		return wrapError(CodeOverflow, err, "%s", what)
	case errors.Is(err, safe.ErrUnderflow):
		return wrapError(CodeUnderflow, err, "%s", what)
	default:
		return wrapError(CodeOverflow, err, "%s", what)
	}
}
