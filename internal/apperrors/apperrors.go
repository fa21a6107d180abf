// Package apperrors classifies failures so the HTTP boundary can log the
// distinction even though every failure is rendered the same way.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a stable label for a failure class. Used in logs and metrics.
type Kind string

const (
	KindInvalidInput  Kind = "invalid_input"
	KindTransient     Kind = "transient_external_failure"
	KindPermanent     Kind = "permanent_failure"
	KindConfiguration Kind = "configuration_error"
	KindUnknown       Kind = "unknown"
)

// Error carries a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with kind and op. Returns nil if err is nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// InvalidInput wraps err as KindInvalidInput.
func InvalidInput(op string, err error) error {
	return E(KindInvalidInput, op, err)
}

// Permanent wraps err as KindPermanent.
func Permanent(op string, err error) error {
	return E(KindPermanent, op, err)
}

// Configuration wraps err as KindConfiguration.
func Configuration(op string, err error) error {
	return E(KindConfiguration, op, err)
}

// KindOf returns the outermost Kind found in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain carries kind at any level.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}
