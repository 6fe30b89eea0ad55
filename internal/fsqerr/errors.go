// Package fsqerr defines the coded error envelope carried back to clients
// over the wire, and the sentinel errors raised internally for each
// condition named in the protocol.
package fsqerr

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure reported in a protocol ERROR reply.
type Code int32

// Error codes, one per condition the protocol can report to a client.
const (
	CodeNone Code = iota
	CodeProtocolShort
	CodeProtocolVersionMismatch
	CodeProtocolUnexpectedState
	CodeAuthAccessDenied
	CodeNameTooLong
	CodeAlreadyExists
	CodeIOError
	CodeBackendUnavailable
	CodeRangeMismatch
	CodePoisoned
)

var codeNames = map[Code]string{
	CodeNone:                    "none",
	CodeProtocolShort:           "protocol short read",
	CodeProtocolVersionMismatch: "protocol version mismatch",
	CodeProtocolUnexpectedState: "unexpected protocol state",
	CodeAuthAccessDenied:        "access denied",
	CodeNameTooLong:             "name too long",
	CodeAlreadyExists:           "already exists",
	CodeIOError:                 "I/O error",
	CodeBackendUnavailable:      "backend unavailable",
	CodeRangeMismatch:           "range mismatch",
	CodePoisoned:                "poisoned",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// Coded is an error carrying a protocol Code alongside a human-readable
// message, suitable for both local returns and wire ERROR envelopes.
type Coded struct {
	Code    Code
	Message string
}

func (e *Coded) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a Coded error with the given code and message.
func New(code Code, format string, args ...interface{}) *Coded {
	return &Coded{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for conditions that are compared by identity rather than
// constructed per-occurrence.
var (
	ErrProtocolShort           = &Coded{Code: CodeProtocolShort, Message: "short packet read"}
	ErrProtocolVersionMismatch = &Coded{Code: CodeProtocolVersionMismatch, Message: "unsupported protocol version"}
	ErrProtocolUnexpectedState = &Coded{Code: CodeProtocolUnexpectedState, Message: "packet state not valid here"}
	ErrAuthAccessDenied        = &Coded{Code: CodeAuthAccessDenied, Message: "node not present in identity map"}
	ErrNameTooLong             = &Coded{Code: CodeNameTooLong, Message: "path or filesystem name too long"}
	ErrAlreadyExists           = &Coded{Code: CodeAlreadyExists, Message: "landing file already exists"}
	ErrBackendUnavailable      = &Coded{Code: CodeBackendUnavailable, Message: "storage backend unavailable"}
	ErrRangeMismatch           = &Coded{Code: CodeRangeMismatch, Message: "data length does not match header"}
	ErrPoisoned                = &Coded{Code: CodePoisoned, Message: "error tolerance exceeded"}
)

// As reports whether err is (or wraps) a *Coded, returning it if so.
func As(err error) (*Coded, bool) {
	var c *Coded
	ok := errors.As(err, &c)
	return c, ok
}
