package models

import (
	"errors"
)

// Error taxonomy shared by the tree store, the ledger and the engines.
// Stores wrap these with fmt.Errorf("...: %w", err) so callers classify with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateNode         = errors.New("participant already placed")
	ErrParentNotFound        = errors.New("parent node not found")
	ErrDuplicateCommission   = errors.New("commission already recorded for transaction")
	ErrDepthExceeded         = errors.New("tree depth limit exceeded")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrRootExists            = errors.New("tree root already exists")
	ErrInvalidInput          = errors.New("invalid input")
	ErrReferrerInactive      = errors.New("referrer is not active")
	ErrReferralCodeExhausted = errors.New("could not generate unique referral code")
)

// ErrorKind is the stable, machine readable name of an error class.
type ErrorKind string

const (
	KindNotFound              ErrorKind = "NotFound"
	KindDuplicateNode         ErrorKind = "DuplicateNode"
	KindParentNotFound        ErrorKind = "ParentNotFound"
	KindDuplicateCommission   ErrorKind = "DuplicateCommission"
	KindDepthExceeded         ErrorKind = "DepthExceeded"
	KindStorageUnavailable    ErrorKind = "StorageUnavailable"
	KindRootExists            ErrorKind = "RootExists"
	KindInvalidInput          ErrorKind = "InvalidInput"
	KindReferrerInactive      ErrorKind = "ReferrerInactive"
	KindReferralCodeExhausted ErrorKind = "ReferralCodeExhausted"
	KindInternal              ErrorKind = "Internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	// ParentNotFound is checked before NotFound; stores wrap both when a referrer lookup misses.
	{ErrParentNotFound, KindParentNotFound},
	{ErrDuplicateNode, KindDuplicateNode},
	{ErrDuplicateCommission, KindDuplicateCommission},
	{ErrDepthExceeded, KindDepthExceeded},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrRootExists, KindRootExists},
	{ErrInvalidInput, KindInvalidInput},
	{ErrReferrerInactive, KindReferrerInactive},
	{ErrReferralCodeExhausted, KindReferralCodeExhausted},
	{ErrNotFound, KindNotFound},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// IsExpected reports whether err is a recoverable outcome that callers should
// surface as a typed result rather than treat as a failure of the system.
func IsExpected(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindDuplicateNode, KindParentNotFound, KindDuplicateCommission,
		KindRootExists, KindInvalidInput, KindReferrerInactive:
		return true
	}
	return false
}

// Outcome is the user visible shape of a failed operation.
type Outcome struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

// NewOutcome builds the structured outcome for err.
func NewOutcome(err error) Outcome {
	return Outcome{Kind: KindOf(err), Detail: err.Error()}
}
