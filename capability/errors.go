package capability

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	// KindEmit covers registry emission failures.
	KindEmit Kind = "Emit"
	// KindDiagnostic covers registry declarations that are legal but suspicious.
	KindDiagnostic Kind = "Diagnostic"
)

// Rule identifiers for emission errors and diagnostics.
const (
	RuleEmpty          = "CAP-EMIT-001"
	RuleNotInterface   = "CAP-EMIT-002"
	RuleNotImplemented = "CAP-EMIT-003"
	RuleDuplicate      = "CAP-EMIT-004"
)

// Error is the package's structured error type.
//
// RuleID names the violated declaration rule. Message is for humans; do not
// match on it. Use errors.As to extract *Error.
type Error struct {
	Kind    Kind
	RuleID  string
	Token   Token
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, ruleID string, t Token, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Token: t, Message: msg}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
