package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors shared by every contract. Detection sites wrap them with
// fmt.Errorf("%w: ...") so callers can match with errors.Is.
var (
	ErrNotAuthorized       = stderrors.New("not authorized")
	ErrInvalidState        = stderrors.New("invalid state")
	ErrInsufficientStake   = stderrors.New("insufficient stake")
	ErrAlreadyRegistered   = stderrors.New("already registered")
	ErrAlreadyVoted        = stderrors.New("already voted")
	ErrVotingClosed        = stderrors.New("voting closed")
	ErrAmountMismatch      = stderrors.New("amount mismatch")
	ErrInvalidRating       = stderrors.New("invalid rating")
	ErrNotFound            = stderrors.New("not found")
	ErrTransportFailure    = stderrors.New("transport failure")
	ErrInvalidArgument     = stderrors.New("invalid argument")
	ErrInsufficientBalance = stderrors.New("insufficient balance")
)

// CodeInternal is reported for any error outside the taxonomy.
const CodeInternal = "Internal"

var codes = []struct {
	code string
	err  error
}{
	{"NotAuthorized", ErrNotAuthorized},
	{"InvalidState", ErrInvalidState},
	{"InsufficientStake", ErrInsufficientStake},
	{"AlreadyRegistered", ErrAlreadyRegistered},
	{"AlreadyVoted", ErrAlreadyVoted},
	{"VotingClosed", ErrVotingClosed},
	{"AmountMismatch", ErrAmountMismatch},
	{"InvalidRating", ErrInvalidRating},
	{"NotFound", ErrNotFound},
	{"TransportFailure", ErrTransportFailure},
	{"InvalidArgument", ErrInvalidArgument},
	{"InsufficientBalance", ErrInsufficientBalance},
}

// Code returns the stable code name of err, or "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codes {
		if stderrors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// IsBusiness reports whether err belongs to the taxonomy. Anything else is an
// infrastructure failure.
func IsBusiness(err error) bool {
	code := Code(err)
	return code != "" && code != CodeInternal
}

// FromCode rebuilds an error carrying the sentinel named by code. Unknown codes
// produce a plain error holding msg.
func FromCode(code, msg string) error {
	for _, entry := range codes {
		if entry.code != code {
			continue
		}
		if msg == "" || msg == entry.err.Error() {
			return entry.err
		}
		return &codedError{sentinel: entry.err, msg: msg}
	}
	if msg == "" {
		msg = "internal error"
	}
	return stderrors.New(msg)
}

type codedError struct {
	sentinel error
	msg      string
}

func (e *codedError) Error() string { return e.msg }

func (e *codedError) Unwrap() error { return e.sentinel }

// Wrap annotates sentinel with a formatted detail message.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
