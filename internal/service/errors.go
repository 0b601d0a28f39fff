package service

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes returned to the storefront so it can show an actionable message.
const (
	CodeEmptyCart       = "empty_cart"
	CodeInvalidItem     = "invalid_item"
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidUser     = "invalid_user"
	CodeProductNotFound = "product_not_found"
	CodeUserNotFound    = "user_not_found"
	CodeOrderNotFound   = "order_not_found"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeConflict        = "conflict"
	CodeUpstream        = "upstream_error"
	CodeInternal        = "internal_error"
)

// ValidationError is malformed client input. Line is the zero-based cart
// line, or -1 when the error is not tied to a line.
type ValidationError struct {
	Code   string
	Line   int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

// NotFoundError names the kind of record and the ids that were missing.
type NotFoundError struct {
	Kind string
	IDs  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(e.IDs, ", "))
}

// Code maps the missing kind to a client-facing code.
func (e *NotFoundError) Code() string {
	switch e.Kind {
	case "product":
		return CodeProductNotFound
	case "user":
		return CodeUserNotFound
	case "order":
		return CodeOrderNotFound
	default:
		return CodeNotFound
	}
}

// AuthorizationError covers signature mismatches and token/user mismatches.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "unauthorized: " + e.Reason
}

// ConflictError is returned when an operation that needs exclusivity is
// already running elsewhere.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

// PersistenceError wraps a storage failure. The enclosing transaction has
// already been rolled back when one of these is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// UpstreamError is a gateway or broker failure. The order stays pending and
// the caller may retry.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies err for API responses.
func ErrorCode(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		ae *AuthorizationError
		ce *ConflictError
		ue *UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Code
	case errors.As(err, &nf):
		return nf.Code()
	case errors.As(err, &ae):
		return CodeForbidden
	case errors.As(err, &ce):
		return CodeConflict
	case errors.As(err, &ue):
		return CodeUpstream
	default:
		return CodeInternal
	}
}

func wrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		nf *NotFoundError
		ae *AuthorizationError
		ce *ConflictError
		pe *PersistenceError
	)
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &ae) || errors.As(err, &ce) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
