package dgcerrors

import (
	"errors"
	"fmt"
)

// Code is the normalized failure taxonomy for certificate processing.
type Code string

const (
	// CodeDecode indicates malformed Base45/zlib/COSE/CBOR input.
	CodeDecode Code = "decode"

	// CodeSignature indicates an unknown signer or a failed signature check.
	CodeSignature Code = "signature"

	// CodeExpired indicates the token's time claims show it has expired.
	CodeExpired Code = "expired"

	// CodeBlacklisted indicates the issuing entity matched the blacklist.
	CodeBlacklisted Code = "blacklisted"

	// CodeRuleFailed indicates one or more applicable business rules failed.
	CodeRuleFailed Code = "rule_failed"

	// CodeNoRules indicates no applicable rule was found (ambiguous, distinct
	// from "all rules passed").
	CodeNoRules Code = "no_rules"

	// CodeSync indicates a recoverable network/parse failure during trust or
	// rule synchronization. Never surfaced as a certificate verdict.
	CodeSync Code = "sync"

	// CodeNotFound indicates the requested record doesn't exist.
	CodeNotFound Code = "not_found"

	// CodeBadRequest indicates invalid caller input.
	CodeBadRequest Code = "bad_request"

	// CodeInternal indicates an unexpected internal error.
	CodeInternal Code = "internal"
)

// Error wraps failures with normalized categorization so transport and
// orchestration layers can route on the code instead of string matching.
type Error struct {
	Code       Code
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap supports error unwrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// New creates a categorized error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a category and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Underlying: err}
}

// GetCode extracts the category from an error, defaulting to CodeInternal.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// IsTechnical reports whether err is a technical failure (decode, signature,
// missing rules) as opposed to a legitimate negative verdict.
func IsTechnical(err error) bool {
	switch GetCode(err) {
	case CodeDecode, CodeSignature, CodeNoRules, CodeInternal:
		return true
	}
	return false
}
