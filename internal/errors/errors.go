package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type. The CLI maps it to process
// exit codes; the dispatcher maps it to reply failure kinds.
type Code int

const (
	CodeSuccess           Code = 0
	CodeInternal          Code = 1
	CodeUsage             Code = 2
	CodeInvalidArguments  Code = 3
	CodeUnknownCommand    Code = 4
	CodeNotFound          Code = 5
	CodeAuth              Code = 10
	CodeRateLimited       Code = 11
	CodeUnavailable       Code = 12
	CodePriceUnavailable  Code = 13
	CodeSigner            Code = 14
	CodeInsufficientFunds Code = 20
	CodeNotAMember        Code = 21
	CodeReverted          Code = 22
	CodeTimeout           Code = 23
	CodeNetwork           Code = 24
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

// IsLedger reports whether code belongs to the submission/confirmation family.
func IsLedger(code Code) bool {
	switch code {
	case CodeInsufficientFunds, CodeNotAMember, CodeReverted, CodeTimeout, CodeNetwork:
		return true
	default:
		return false
	}
}

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeUsage:
		return "usage"
	case CodeInvalidArguments:
		return "invalid_arguments"
	case CodeUnknownCommand:
		return "unknown_command"
	case CodeNotFound:
		return "not_found"
	case CodeAuth:
		return "auth"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "unavailable"
	case CodePriceUnavailable:
		return "price_unavailable"
	case CodeSigner:
		return "signer"
	case CodeInsufficientFunds:
		return "insufficient_funds"
	case CodeNotAMember:
		return "not_a_member"
	case CodeReverted:
		return "reverted"
	case CodeTimeout:
		return "timeout"
	case CodeNetwork:
		return "network_error"
	default:
		return "internal"
	}
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}
