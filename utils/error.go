package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError aborts the enclosing transaction (e.g. insufficient inventory).
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func NewValidationError(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a referenced entity that does not exist.
// Cascade handlers treat it as a soft no-op.
type NotFoundError struct {
	Collection string
	Id         string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Collection, e.Id)
}

func (e *NotFoundError) Unwrap() error { return ErrorRecordNotFound }

func NewNotFoundError(collection, id string) error {
	return &NotFoundError{Collection: collection, Id: id}
}

// TransactionError wraps a store-level conflict or failure unchanged.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ComputationError reports malformed numeric input to scoring or correlation.
type ComputationError struct {
	Func   string
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Func, e.Reason)
}

const (
	CodeInsufficientInventory = "InsufficientInventory"
	CodeInvalidPayload        = "InvalidPayload"
	CodeInvalidTransition     = "InvalidTransition"
)

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) || errors.Is(err, ErrorRecordNotFound)
}

func IsTransaction(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}

func IsComputation(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
