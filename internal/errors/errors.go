// Package errors defines the error taxonomy shared by the coordinator, the
// wrapper and the HTTP surface.
//
// Every failure is a *ServiceError carrying a Kind (which role or precondition
// was violated) and a stable Code (the protocol-level reason). Two errors are
// considered equal by errors.Is when their codes match, so callers can compare
// against the exported sentinels regardless of message or details.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindIntegrity     Kind = "integrity"
	KindInternal      Kind = "internal"
)

// ServiceError is the structured error returned by every entry point.
type ServiceError struct {
	Kind       Kind           `json:"kind"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value any) *ServiceError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// WithMessage returns a copy of the error with a different message.
func (e *ServiceError) WithMessage(format string, args ...any) *ServiceError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, status int, code, message string) *ServiceError {
	return &ServiceError{Kind: kind, Code: code, Message: message, HTTPStatus: status}
}

// Unauthorized builds an AuthorizationError.
func Unauthorized(code, message string) *ServiceError {
	return newError(KindAuthorization, http.StatusForbidden, code, message)
}

// NotFound builds a NotFoundError.
func NotFound(code, message string) *ServiceError {
	return newError(KindNotFound, http.StatusNotFound, code, message)
}

// Validation builds a ValidationError.
func Validation(code, message string) *ServiceError {
	return newError(KindValidation, http.StatusBadRequest, code, message)
}

// Conflict builds a ConflictError.
func Conflict(code, message string) *ServiceError {
	return newError(KindConflict, http.StatusConflict, code, message)
}

// Integrity builds an IntegrityError.
func Integrity(code, message string) *ServiceError {
	return newError(KindIntegrity, http.StatusUnprocessableEntity, code, message)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	e := newError(KindInternal, http.StatusInternalServerError, "Internal", message)
	e.Err = err
	return e
}

// RateLimitExceeded is returned by the HTTP rate limiter.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(KindValidation, http.StatusTooManyRequests, "RateLimitExceeded", "rate limit exceeded")
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// GetServiceError extracts a *ServiceError from err, or returns nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if se := GetServiceError(err); se != nil {
		return se.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, "Internal" for foreign errors.
func CodeOf(err error) string {
	if se := GetServiceError(err); se != nil {
		return se.Code
	}
	return "Internal"
}

// Authorization failures.
var (
	ErrOnlyOperator         = Unauthorized("OnlyOperator", "caller is not the operator")
	ErrMustBeSubOwner       = Unauthorized("MustBeSubOwner", "caller is not the subscription owner")
	ErrMustBeRequestedOwner = Unauthorized("MustBeRequestedOwner", "caller is not the requested owner")
	ErrOnlyOracle           = Unauthorized("OnlyOracle", "caller is not an oracle")
	ErrInvalidConsumer      = Unauthorized("InvalidConsumer", "caller is not a consumer of the subscription")
)

// Not-found failures.
var (
	ErrInvalidSubscription    = NotFound("InvalidSubscription", "subscription does not exist")
	ErrConsumerNotFound       = NotFound("InvalidConsumer", "consumer is not registered on the subscription")
	ErrNoSuchProvingKey       = NotFound("NoSuchProvingKey", "proving key is not registered")
	ErrNoCorrespondingRequest = NotFound("NoCorrespondingRequest", "no outstanding request for this id")
	ErrBlockhashNotFound      = NotFound("BlockhashNotFound", "block hash is not available")
	ErrRequestNotFound        = NotFound("RequestNotFound", "request not found")
)

// Validation failures.
var (
	ErrInvalidRequestConfirmations = Validation("InvalidRequestConfirmations", "request confirmations out of range")
	ErrNumWordsTooBig              = Validation("NumWordsTooBig", "too many random words requested")
	ErrGasLimitTooBig              = Validation("GasLimitTooBig", "callback gas limit too big")
	ErrGasPriceOverRange           = Validation("GasPriceOverRange", "gas price over range")
	ErrInsufficientValue           = Validation("InsufficientValue", "sent value lower than amount")
	ErrInvalidAmount               = Validation("InvalidAmount", "amount must not be negative")
	ErrInsufficientBalance         = Validation("InsufficientBalance", "insufficient balance")
	ErrInvalidFeeTiers             = Validation("InvalidFeeTiers", "fee tier table is not a non-increasing step function")
	ErrPaymentTooLarge             = Validation("PaymentTooLarge", "payment overflows the value range")
	ErrInvalidConfig               = Validation("InvalidConfig", "invalid configuration")
	ErrGasPriceTooLow              = Validation("GasPriceTooLow", "gas price too low")
	ErrFeeTooLow                   = Validation("FeeTooLow", "fee too low")
	ErrNumWordsTooHigh             = Validation("NumWordsTooHigh", "numWords too high")
	ErrNotEnoughLeft               = Validation("NotEnoughLeft", "not enough left")
	ErrNotConfigured               = Validation("NotConfigured", "not configured")
)

// Conflict failures.
var (
	ErrTooManyConsumers            = Conflict("TooManyConsumers", "consumer limit reached")
	ErrPendingRequestExists        = Conflict("PendingRequestExists", "subscription has outstanding requests")
	ErrProvingKeyAlreadyRegistered = Conflict("ProvingKeyAlreadyRegistered", "proving key already registered")
	ErrWrapperDisabled             = Conflict("WrapperDisabled", "wrapper is disabled")
)

// Integrity failures.
var (
	ErrIncorrectCommitment = Integrity("IncorrectCommitment", "request record does not match commitment")
	ErrInvalidProof        = Integrity("InvalidProof", "proof does not authenticate the seed")
)
