// Package cmn provides common low-level types and utilities shared by
// every nimbus.io gateway package: error kinds, checksums, assertions,
// and the process-wide environment-driven configuration.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package cmn

import (
	"strconv"

	"github.com/pkg/errors"
)

// Error kinds, per spec.md §7. These are sentinel errors: callers use
// errors.Is/errors.As (or the Is* helpers below) rather than comparing
// concrete types, since every kind may be wrapped with request-specific
// context via github.com/pkg/errors.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrTimeout            = errors.New("timeout")
	ErrRemoteError        = errors.New("remote error")
	ErrHandoffFailed      = errors.New("handoff failed")
	ErrArchiveFailed      = errors.New("archive failed")
	ErrRetrieveFailed     = errors.New("retrieve failed")
	ErrDestroyFailed      = errors.New("destroy failed")
	ErrTruncatedInput     = errors.New("truncated input")
	ErrOversizedInput     = errors.New("oversized input")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrUnauthorized       = errors.New("authorization rejected")
)

// Wire result codes carried in message replies (spec.md §6: "result
// (0=OK)"). error_too_old and error_database_failure shared wire code 2
// in the Python original (see spec.md Design Notes); this
// re-implementation assigns them distinct codes per the explicit
// redesign instruction.
const (
	ResultOK              = 0
	ResultTooOld          = 20
	ResultDatabaseFailure = 21
	ResultGenericAppError = 22
)

// RemoteError wraps a non-zero reply result code with the peer's
// error-message field, matching spec.md's "result (0=OK), optional
// error-message" reply schema.
type RemoteError struct {
	Node    string
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Node + ": " + e.Message
	}
	return e.Node + ": remote error (code " + strconv.Itoa(e.Code) + ")"
}

func (e *RemoteError) Unwrap() error { return ErrRemoteError }

// CompoundError rolls up one or more per-writer/per-reader failures into
// a single transaction-level error (spec.md §7: "compound, rolled up
// from any of the above during a transaction").
type CompoundError struct {
	Kind   error
	Causes []error
}

func NewCompoundError(kind error, causes []error) error {
	nonNil := make([]error, 0, len(causes))
	for _, c := range causes {
		if c != nil {
			nonNil = append(nonNil, c)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return &CompoundError{Kind: kind, Causes: nonNil}
}

func (e *CompoundError) Error() string {
	if len(e.Causes) == 1 {
		return e.Kind.Error() + ": " + e.Causes[0].Error()
	}
	return e.Kind.Error() + ": " + strconv.Itoa(len(e.Causes)) + " failures, first: " + e.Causes[0].Error()
}

func (e *CompoundError) Unwrap() error { return e.Kind }

// IsNotConnected reports whether err (or a cause it wraps) is ErrNotConnected.
func IsNotConnected(err error) bool { return errors.Is(err, ErrNotConnected) }

// IsTimeout reports whether err (or a cause it wraps) is ErrTimeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsRemoteError reports whether err (or a cause it wraps) is ErrRemoteError.
func IsRemoteError(err error) bool { return errors.Is(err, ErrRemoteError) }

// IsHandoffFailed reports whether err (or a cause it wraps) is ErrHandoffFailed.
func IsHandoffFailed(err error) bool { return errors.Is(err, ErrHandoffFailed) }

// IsUnauthorized reports whether err (or a cause it wraps) is ErrUnauthorized.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsNotFound reports whether err (or a cause it wraps) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsServiceUnavailable reports whether err (or a cause it wraps) is ErrServiceUnavailable.
func IsServiceUnavailable(err error) bool { return errors.Is(err, ErrServiceUnavailable) }

// IsTruncatedOrOversized reports whether err is ErrTruncatedInput or ErrOversizedInput.
func IsTruncatedOrOversized(err error) bool {
	return errors.Is(err, ErrTruncatedInput) || errors.Is(err, ErrOversizedInput)
}

// IsTransactionFailed reports whether err is one of ArchiveFailed,
// RetrieveFailed, or DestroyFailed — the three compound transaction
// outcomes the HTTP boundary maps to 500 (spec.md §7).
func IsTransactionFailed(err error) bool {
	return errors.Is(err, ErrArchiveFailed) || errors.Is(err, ErrRetrieveFailed) || errors.Is(err, ErrDestroyFailed)
}
