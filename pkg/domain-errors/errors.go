// Package dErrors provides coded domain errors shared across components.
// Codes carry the failure taxonomy over component boundaries so the transport
// layer can translate them without inspecting messages.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeUnauthorized marks calls from identities that lack the required role.
	CodeUnauthorized Code = "unauthorized"
	// CodeComplianceCheckFailed marks operations rejected by the KYC registry,
	// including fail-closed rejections when the registry is unreachable.
	CodeComplianceCheckFailed Code = "compliance_check_failed"
	// CodeLimitExceeded marks a tier limit violation found during recording.
	CodeLimitExceeded Code = "limit_exceeded"
	// CodeDuplicateOperation marks re-use of a unique external key (tx hash).
	CodeDuplicateOperation Code = "duplicate_operation"
	// CodeReserveRatioTooLow marks an issuance that would break reserve backing.
	CodeReserveRatioTooLow Code = "reserve_ratio_too_low"
	// CodeInsufficientBalance marks a debit exceeding the available balance.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeInvalidAmount marks a non-positive or otherwise malformed amount.
	CodeInvalidAmount Code = "invalid_amount"
	// CodeInvalidOperationState marks a call that does not fit the record's
	// current lifecycle position (missing, already processed, terminal).
	CodeInvalidOperationState Code = "invalid_operation_state"
	// CodeSystemPaused marks new operations rejected while paused.
	CodeSystemPaused Code = "system_paused"
	// CodeContractUnreachable marks a downstream component that could not be
	// reached at all, as opposed to one that answered with a rejection.
	CodeContractUnreachable Code = "contract_unreachable"

	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal"
)

func (c Code) String() string { return string(c) }

// Error is a coded domain error. It wraps an optional cause so errors.Is and
// errors.As keep working through component boundaries.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err returns
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf extracts the outermost code, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status the transport layer responds with.
// Downstream payloads are never exposed; only the code and message travel.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeBadRequest, CodeInvalidAmount:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateOperation:
		return http.StatusConflict
	case CodeComplianceCheckFailed, CodeLimitExceeded, CodeInsufficientBalance, CodeReserveRatioTooLow:
		return http.StatusUnprocessableEntity
	case CodeInvalidOperationState:
		return http.StatusConflict
	case CodeSystemPaused:
		return http.StatusServiceUnavailable
	case CodeContractUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
