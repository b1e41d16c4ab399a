package service

import (
	"errors"
	"fmt"
)

var (
	ErrTradeNotFound     = errors.New("trade not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrImportNotFound    = errors.New("import not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBatchTooLarge     = errors.New("batch exceeds maximum rows")
	ErrUnknownPlatform   = errors.New("unknown import platform")
)

// ValidationError reports a rejected request field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
