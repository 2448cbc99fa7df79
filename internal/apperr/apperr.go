// Package apperr declares the machine-checkable failures returned by the
// will, escrow, registry, factory and asset packages.
//
// Every failure is a sentinel *Error. Callers match them with errors.Is and
// classify them with KindOf; wrapping with fmt.Errorf("...: %w") keeps both
// working.
package apperr

import (
	"errors"
	"net/http"
)

// Kind groups failures by how a caller should react to them.
type Kind string

const (
	// KindAuthorization means the caller lacks the required identity.
	KindAuthorization Kind = "authorization"
	// KindPrecondition means the request is well formed but the state does
	// not allow it yet (or any more).
	KindPrecondition Kind = "precondition"
	// KindValidation means the request itself is malformed.
	KindValidation Kind = "validation"
	// KindResource means tracked funds cannot cover the request.
	KindResource Kind = "resource"
	// KindInternal is anything not produced by this package.
	KindInternal Kind = "internal"
)

// Error is a sentinel failure with a stable code.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotOwner           = newError(KindAuthorization, "NotOwner", "caller is not the owner")
	ErrNotFactory         = newError(KindAuthorization, "NotFactory", "caller is not the factory")
	ErrUnauthorizedCaller = newError(KindAuthorization, "UnauthorizedCaller", "caller is not authorized")

	ErrInvalidDueDate          = newError(KindPrecondition, "InvalidDueDate", "due date must be in the future")
	ErrNotDueYet               = newError(KindPrecondition, "NotDueYet", "will is not due yet")
	ErrAlreadyExecuted         = newError(KindPrecondition, "AlreadyExecuted", "heir allocation already executed")
	ErrAlreadyInitialized      = newError(KindPrecondition, "AlreadyInitialized", "will already initialized")
	ErrNotInitialized          = newError(KindPrecondition, "NotInitialized", "will is not initialized")
	ErrHeirAlreadyExists       = newError(KindPrecondition, "HeirAlreadyExists", "heir already exists")
	ErrHeirNotFound            = newError(KindPrecondition, "HeirNotFound", "heir not found")
	ErrWillNotRegistered       = newError(KindPrecondition, "WillNotRegistered", "will is not registered")
	ErrWillAlreadyExists       = newError(KindPrecondition, "WillAlreadyExists", "testator already has a will")
	ErrWillNotFound            = newError(KindPrecondition, "WillNotFound", "will not found")
	ErrTokenAlreadyWhitelisted = newError(KindPrecondition, "TokenAlreadyWhitelisted", "token already whitelisted")
	ErrTokenNotWhitelisted     = newError(KindPrecondition, "TokenNotWhitelisted", "token is not whitelisted")
	ErrNotDeployed             = newError(KindPrecondition, "NotDeployed", "contracts are not deployed")

	ErrInvalidAddress      = newError(KindValidation, "InvalidAddress", "invalid address")
	ErrInvalidAmount       = newError(KindValidation, "InvalidAmount", "amount must be positive")
	ErrLengthMismatch      = newError(KindValidation, "LengthMismatch", "tokens and amounts length mismatch")
	ErrEmptyAllocation     = newError(KindValidation, "EmptyAllocation", "allocation has no assets")
	ErrDuplicateAsset      = newError(KindValidation, "DuplicateAsset", "asset listed more than once")
	ErrNativeValueMismatch = newError(KindValidation, "NativeValueMismatch", "attached value does not match native amount")
	ErrUnknownAsset        = newError(KindValidation, "UnknownAsset", "asset is not registered")
	ErrAssetExists         = newError(KindValidation, "AssetExists", "asset already registered")

	ErrInsufficientBalance   = newError(KindResource, "InsufficientBalance", "insufficient escrow balance")
	ErrInsufficientFunds     = newError(KindResource, "InsufficientFunds", "insufficient funds")
	ErrInsufficientAllowance = newError(KindResource, "InsufficientAllowance", "insufficient allowance")
	ErrOverflow              = newError(KindResource, "Overflow", "amount overflow")
	ErrCustodyMismatch       = newError(KindResource, "CustodyMismatch", "escrow custody does not cover tracked balances")
)

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the stable code of the first *Error in err's chain, or ""
// for errors not declared here.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Status maps err to the HTTP status the API answers with.
func Status(err error) int {
	if errors.Is(err, ErrWillNotFound) || errors.Is(err, ErrHeirNotFound) {
		return http.StatusNotFound
	}
	switch KindOf(err) {
	case KindAuthorization:
		return http.StatusForbidden
	case KindPrecondition:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindResource:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
