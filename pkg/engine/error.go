// Copyright 2025 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// Code is an errno-style result of an engine operation. Zero is success,
// failures are negative. Asynchronous operations deliver their Code through
// the completion callback instead of the call's return value.
type Code int32

const (
	CodeSuccess   Code = 0
	CodeInvalid   Code = -2001 // invalid argument
	CodeNoHandle  Code = -2002 // handle unknown or already released
	CodeExist     Code = -2004 // insert precondition violated
	CodeNoExist   Code = -2005 // fetch/update precondition violated
	CodeTxRestart Code = -2006 // commit lost a conflict, restart the transaction
	CodeCanceled  Code = -2007 // operation abandoned before completion
	CodeBusy      Code = -2008 // resource still referenced by an in-flight operation
	CodeIO        Code = -2009 // storage layer failure
	CodeNoSpace   Code = -2010 // pool out of space
	CodeTruncated Code = -2011 // fetch buffer smaller than the stored value
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeInvalid:
		return "invalid argument"
	case CodeNoHandle:
		return "no handle"
	case CodeExist:
		return "already exists"
	case CodeNoExist:
		return "nonexistent"
	case CodeTxRestart:
		return "transaction restart"
	case CodeCanceled:
		return "canceled"
	case CodeBusy:
		return "busy"
	case CodeIO:
		return "io failure"
	case CodeNoSpace:
		return "no space"
	case CodeTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Error carries an engine Code. Sentinel instances below make failures
// matchable with errors.Is regardless of wrapping.
type Error struct {
	Code Code
}

var (
	ErrInvalid   = &Error{CodeInvalid}
	ErrNoHandle  = &Error{CodeNoHandle}
	ErrExist     = &Error{CodeExist}
	ErrNoExist   = &Error{CodeNoExist}
	ErrTxRestart = &Error{CodeTxRestart}
	ErrCanceled  = &Error{CodeCanceled}
	ErrBusy      = &Error{CodeBusy}
	ErrIO        = &Error{CodeIO}
	ErrNoSpace   = &Error{CodeNoSpace}
	ErrTruncated = &Error{CodeTruncated}
)

func (e *Error) Error() string {
	return fmt.Sprintf("engine: %s (%d)", e.Code.String(), int32(e.Code))
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeToError converts a completion code to an error, nil on success.
func CodeToError(c Code) error {
	if c == CodeSuccess {
		return nil
	}
	return &Error{Code: c}
}
