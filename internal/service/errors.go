package service

import (
	"errors"
	"fmt"
)

// Kind classifies a saga failure.  Only the HTTP layer turns kinds into
// status codes.
type Kind int

const (
	KindSystem Kind = iota
	KindValidation
	KindConfiguration
	KindConflict
	KindInvalidCredentials
	KindToken
	KindDownstream
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindConflict:
		return "conflict"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindToken:
		return "token"
	case KindDownstream:
		return "downstream"
	case KindNotFound:
		return "not_found"
	default:
		return "system"
	}
}

// Message codes returned to clients.
const (
	CodeSuccess            = "I00001"
	CodeInvalidCredentials = "E11002"
	CodeAccountNotFound    = "E11004"
	CodeDuplicateEmail     = "E11006"
	CodeCooldown           = "E11007"
	CodeMaskedConflict     = "E11008"
	CodeTokenInvalid       = "E11010"
	CodeValidation         = "E11020"
	CodeDownstream         = "E99001"
	CodeConfiguration      = "E99998"
	CodeSystem             = "E99999"
)

// Error is the only error type that leaves the service package.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrDuplicateEmail     = &Error{Kind: KindConflict, Code: CodeDuplicateEmail, Msg: "email is already registered"}
	ErrCooldown           = &Error{Kind: KindConflict, Code: CodeCooldown, Msg: "a registration for this email is pending verification, try again in a few minutes"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Code: CodeInvalidCredentials, Msg: "invalid email or password"}
	ErrTokenInvalid       = &Error{Kind: KindToken, Code: CodeTokenInvalid, Msg: "invalid or expired token"}
	ErrRoleMissing        = &Error{Kind: KindConfiguration, Code: CodeConfiguration, Msg: "required role is not seeded"}
	ErrAccountNotFound    = &Error{Kind: KindNotFound, Code: CodeAccountNotFound, Msg: "account not found"}
)

// KindOf returns the kind of err, KindSystem for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// CodeOf returns the message code of err.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeSystem
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Msg: msg}
}

func downstreamError(err error) *Error {
	return &Error{Kind: KindDownstream, Code: CodeDownstream, Msg: "profile service unavailable", Err: err}
}

func systemError(op string, err error) *Error {
	return &Error{Kind: KindSystem, Code: CodeSystem, Msg: op, Err: err}
}

func maskedConflict(err error) *Error {
	return &Error{Kind: KindConflict, Code: CodeMaskedConflict, Msg: "registration is not possible right now, try again later", Err: err}
}
