package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrLockHeld            = errors.New("lock already held")
	ErrBidTooLow           = errors.New("bid below minimum next bid")
	ErrAuctionNotActive    = errors.New("auction not active")
	ErrSelfOutbid          = errors.New("bidder already leads without raising ceiling")
	ErrInvalidCeiling      = errors.New("invalid proxy ceiling")
	ErrLockContention      = errors.New("auction lock contention")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrInvalidAuction      = errors.New("invalid auction parameters")
	ErrNotCancellable      = errors.New("auction cannot be cancelled")
)

// ErrorKind classifies engine rejections for callers that switch on kind
// rather than on sentinel identity.
type ErrorKind string

const (
	KindBidTooLow           ErrorKind = "BidTooLow"
	KindAuctionNotActive    ErrorKind = "AuctionNotActive"
	KindSelfOutbid          ErrorKind = "SelfOutbid"
	KindInvalidCeiling      ErrorKind = "InvalidCeiling"
	KindLockContention      ErrorKind = "LockContention"
	KindNotFound            ErrorKind = "NotFound"
	KindDuplicateSubmission ErrorKind = "DuplicateSubmission"
	KindInternal            ErrorKind = "Internal"
)

var kindSentinels = map[ErrorKind]error{
	KindBidTooLow:           ErrBidTooLow,
	KindAuctionNotActive:    ErrAuctionNotActive,
	KindSelfOutbid:          ErrSelfOutbid,
	KindInvalidCeiling:      ErrInvalidCeiling,
	KindLockContention:      ErrLockContention,
	KindNotFound:            ErrNotFound,
	KindDuplicateSubmission: ErrDuplicateSubmission,
}

// BidError is a typed rejection of a single submission. Minimum is set for
// BidTooLow so the caller can show the next acceptable amount.
type BidError struct {
	Kind      ErrorKind
	AuctionID string
	BidderID  string
	Minimum   decimal.Decimal
	Err       error
}

// Reject builds a BidError for kind.
func Reject(kind ErrorKind, auctionID, bidderID string) *BidError {
	return &BidError{
		Kind:      kind,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Err:       kindSentinels[kind],
	}
}

// WithMinimum attaches the minimum acceptable amount.
func (e *BidError) WithMinimum(minimum decimal.Decimal) *BidError {
	e.Minimum = minimum
	return e
}

func (e *BidError) Error() string {
	if e.Kind == KindBidTooLow && !e.Minimum.IsZero() {
		return fmt.Sprintf("auction %s: %v (minimum %s)", e.AuctionID, e.Err, e.Minimum.String())
	}
	return fmt.Sprintf("auction %s: %v", e.AuctionID, e.Err)
}

func (e *BidError) Unwrap() error { return e.Err }

// KindOf maps any error produced by the engine to its ErrorKind.
func KindOf(err error) ErrorKind {
	var be *BidError
	if errors.As(err, &be) {
		return be.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// Retryable reports whether a caller may retry the request automatically.
// Only lock contention is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockContention)
}
