package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig    Kind = "config"
	KindDomain    Kind = "domain"
	KindTransport Kind = "transport"
	KindPlatform  Kind = "platform"
	KindBootstrap Kind = "bootstrap"
	KindStorage   Kind = "storage"
	KindUnknown   Kind = "unknown"

	// Session lifecycle.
	KindAuthExpired   Kind = "auth_expired"
	KindRefreshFailed Kind = "refresh_failed"
	KindStaleResult   Kind = "stale_result"

	// Signing agent.
	KindWalletUnavailable      Kind = "wallet_unavailable"
	KindWalletRejected         Kind = "wallet_rejected"
	KindWalletRequestPending   Kind = "wallet_request_pending"
	KindWalletConnectionFailed Kind = "wallet_connection_failed"

	// Ledger.
	KindLedgerSubmission Kind = "ledger_submission_failed"
	KindLedgerAmbiguous  Kind = "ledger_confirmation_ambiguous"

	KindSagaPhase Kind = "saga_phase_failure"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a kind to err. An error that already carries a kind keeps it.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

// Reclassify wraps err under a new kind even when it already carries one.
func Reclassify(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether the outermost typed error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HasKind reports whether any typed error in the chain carries kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		var target *Error
		if !errors.As(err, &target) {
			return false
		}
		if target.Kind == kind {
			return true
		}
		err = target.Cause
	}
	return false
}

// KindOf returns the kind of the outermost typed error, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// RootKind returns the kind of the innermost typed error, or KindUnknown.
// It names the failure itself rather than the layer that reported it.
func RootKind(err error) Kind {
	kind := KindUnknown
	for err != nil {
		var target *Error
		if !errors.As(err, &target) {
			break
		}
		kind = target.Kind
		err = target.Cause
	}
	return kind
}

// Retryable reports whether a caller may offer a plain retry for err. It
// judges the innermost kind, so a saga failure is retryable exactly when the
// step failure inside it is.
func Retryable(err error) bool {
	switch RootKind(err) {
	case KindAuthExpired,
		KindWalletUnavailable,
		KindWalletRejected,
		KindWalletRequestPending,
		KindWalletConnectionFailed,
		KindLedgerSubmission,
		KindTransport:
		return true
	default:
		return false
	}
}
