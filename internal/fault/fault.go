// Package fault defines the error taxonomy shared by every service.
//
// Faults fall into six categories:
//   - Input: malformed or missing caller data (unknown email, bad index)
//   - Unauthorized: caller does not own or control the target entity
//   - Forbidden: the caller's identity itself is structurally invalid
//   - NotFound: target entity absent
//   - RuleViolation: a business rule (quota, cap, self-share) blocked the mutation
//   - Internal: repository or infrastructure failure unrelated to business rules
//
// RuleViolation carries a machine-readable Key for client-side messaging.
// Every fault is classifiable through errors.As even when wrapped.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a fault.
type Kind string

const (
	KindInput         Kind = "INPUT"
	KindUnauthorized  Kind = "UNAUTHORIZED"
	KindForbidden     Kind = "FORBIDDEN"
	KindNotFound      Kind = "NOT_FOUND"
	KindRuleViolation Kind = "RULE_VIOLATION"
	KindInternal      Kind = "INTERNAL"
)

// Fault is the error type returned by all service operations.
type Fault struct {
	// Kind identifies the fault category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Key is a machine-readable reason code for rule violations
	// (e.g. "max_is_100", "not_allowed_to_share_with_creator").
	// Empty for other kinds.
	Key string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Key != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Key)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (f *Fault) Unwrap() error { return f.Err }

// Input creates a fault for malformed or missing caller data.
func Input(format string, args ...any) *Fault {
	return &Fault{Kind: KindInput, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates a fault for a caller acting on an entity it does not own.
func Unauthorized(format string, args ...any) *Fault {
	return &Fault{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates a fault for a structurally invalid caller identity.
func Forbidden(format string, args ...any) *Fault {
	return &Fault{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a fault for an absent target entity.
func NotFound(format string, args ...any) *Fault {
	return &Fault{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Rule creates a business-rule violation carrying a machine-readable key.
func Rule(key, format string, args ...any) *Fault {
	return &Fault{Kind: KindRuleViolation, Key: key, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a repository or infrastructure failure.
func Internal(err error, format string, args ...any) *Fault {
	return &Fault{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is a Fault of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

// IsInput reports whether err is an input fault.
func IsInput(err error) bool { return IsKind(err, KindInput) }

// IsNotFound reports whether err is a not-found fault.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsUnauthorized reports whether err is an unauthorized fault.
func IsUnauthorized(err error) bool { return IsKind(err, KindUnauthorized) }

// IsForbidden reports whether err is a forbidden fault.
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }

// IsRule reports whether err is a rule violation. When key is non-empty the
// violation must also carry that key.
func IsRule(err error, key string) bool {
	var f *Fault
	if !errors.As(err, &f) {
		return false
	}
	if f.Kind != KindRuleViolation {
		return false
	}
	return key == "" || f.Key == key
}
