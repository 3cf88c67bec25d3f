package domain

import "errors"

var (
	ErrInvalidState            = errors.New("invalid state")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrDuplicatePlayer         = errors.New("player already joined")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrCapacityExceeded        = errors.New("session is full")
	ErrUnknownRequest          = errors.New("unknown randomness request")
	ErrProofVerificationFailed = errors.New("proof verification failed")
	ErrAlreadyFulfilled        = errors.New("randomness already fulfilled")
	ErrAlreadySettled          = errors.New("already settled")
	ErrDeadlineNotReached      = errors.New("deadline not reached")
	ErrDeadlinePassed          = errors.New("deadline passed")
	ErrSessionNotFound         = errors.New("session not found")
	ErrInvalidArgument         = errors.New("invalid argument")
)

// Code is a machine-readable error identifier returned to clients.
type Code string

const (
	CodeInvalidState            Code = "INVALID_STATE"
	CodeUnauthorized            Code = "UNAUTHORIZED"
	CodeDuplicatePlayer         Code = "DUPLICATE_PLAYER"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeCapacityExceeded        Code = "CAPACITY_EXCEEDED"
	CodeUnknownRequest          Code = "UNKNOWN_REQUEST"
	CodeProofVerificationFailed Code = "PROOF_VERIFICATION_FAILED"
	CodeAlreadyFulfilled        Code = "ALREADY_FULFILLED"
	CodeAlreadySettled          Code = "ALREADY_SETTLED"
	CodeDeadlineNotReached      Code = "DEADLINE_NOT_REACHED"
	CodeDeadlinePassed          Code = "DEADLINE_PASSED"
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeInvalidArgument         Code = "INVALID_ARGUMENT"
	CodeInternal                Code = "INTERNAL"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrInvalidState, CodeInvalidState},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrDuplicatePlayer, CodeDuplicatePlayer},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrCapacityExceeded, CodeCapacityExceeded},
	{ErrUnknownRequest, CodeUnknownRequest},
	{ErrProofVerificationFailed, CodeProofVerificationFailed},
	{ErrAlreadyFulfilled, CodeAlreadyFulfilled},
	{ErrAlreadySettled, CodeAlreadySettled},
	{ErrDeadlineNotReached, CodeDeadlineNotReached},
	{ErrDeadlinePassed, CodeDeadlinePassed},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrInvalidArgument, CodeInvalidArgument},
}

// CodeOf classifies err. Unclassified errors are CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
