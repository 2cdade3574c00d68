package runauth

import "fmt"

// ErrorKind classifies why a request was not authenticated.
type ErrorKind string

const (
	KindMissingOrMalformedHeader ErrorKind = "missing_or_malformed_header"
	KindInvalidToken             ErrorKind = "invalid_token"
	KindUntrustedIssuer          ErrorKind = "untrusted_issuer"
	KindTimeout                  ErrorKind = "timeout"
)

// Reason refines KindInvalidToken failures.
type Reason string

const (
	ReasonMalformed       Reason = "malformed"
	ReasonExpired         Reason = "token_expired"
	ReasonNotYetValid     Reason = "token_not_yet_valid"
	ReasonInvalidIssuer   Reason = "invalid_issuer"
	ReasonInvalidAudience Reason = "invalid_audience"
	ReasonUnknownKey      Reason = "unknown_signing_key"
	ReasonKeysUnavailable Reason = "keys_unavailable"
	ReasonInvalid         Reason = "invalid"
)

const (
	msgMissingHeader   = "Missing or invalid authorization header"
	msgUntrustedIssuer = "token is not from the expected platform-managed service identity."
	msgTimeout         = "Token verification failed: verification timed out"
	msgVerifyPrefix    = "Token verification failed: "
)

var reasonMessages = map[Reason]string{
	ReasonMalformed:       "malformed token",
	ReasonExpired:         "token expired",
	ReasonNotYetValid:     "token not yet valid",
	ReasonInvalidIssuer:   "issuer mismatch",
	ReasonInvalidAudience: "audience mismatch",
	ReasonUnknownKey:      "signing key not found",
	ReasonKeysUnavailable: "signing keys unavailable",
	ReasonInvalid:         "invalid token",
}

// Error carries a stable kind plus the underlying cause.
// Only Message is safe to show to callers.
type Error struct {
	Kind   ErrorKind
	Reason Reason
	Err    error
}

// Message returns the client-facing text for the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindMissingOrMalformedHeader:
		return msgMissingHeader
	case KindUntrustedIssuer:
		return msgUntrustedIssuer
	case KindTimeout:
		return msgTimeout
	}
	msg, ok := reasonMessages[e.Reason]
	if !ok {
		msg = reasonMessages[ReasonInvalid]
	}
	return msgVerifyPrefix + msg
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message()
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func invalidToken(reason Reason, err error) *Error {
	return &Error{Kind: KindInvalidToken, Reason: reason, Err: err}
}
