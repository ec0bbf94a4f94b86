// Copyright 2024 QuarryStore, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
)

var (
	_ error = &WError{}
)

// WError pairs a categorizing error with the underlying one: errors.Is
// matches the category, errors.Unwrap yields the underlying error.
type WError struct {
	uerr error
	cerr error
}

func (e *WError) Format(st fmt.State, verb rune) {
	switch verb {
	case 'v':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+v: %+v", e.cerr, e.uerr)
		} else {
			fmt.Fprintf(st, "%v: %v", e.cerr, e.uerr)
		}
	case 's':
		if st.Flag('+') {
			fmt.Fprintf(st, "%+s: %+s", e.cerr, e.uerr)
		} else {
			fmt.Fprintf(st, "%s: %s", e.cerr, e.uerr)
		}
	}
}

func (e *WError) Error() string {
	return fmt.Sprintf("%s", e)
}

func (e *WError) Is(s error) bool {
	return errors.Is(e.cerr, s)
}

func (e *WError) Unwrap() error {
	return e.uerr
}

// Wrap categorizes an unknown error. A typical use: a storage call returns an
// engine error and the caller wants both `Is(err, ErrCursorLoad)` to match the
// category and `Unwrap(err)` to yield the engine error. Wrapping a nil
// underlying error yields nil, so `return errors.Wrap(ErrMine, op())` is safe.
func Wrap(cerr error, uerr error) error {
	if uerr == nil {
		return nil
	}
	if cerr == nil {
		return uerr
	}
	return &WError{
		uerr: uerr,
		cerr: cerr,
	}
}

// Wrapf is like Wrap with the underlying error built by fmt.Errorf.
// A nil category yields nil.
func Wrapf(cerr error, msg string, args ...any) error {
	if cerr == nil {
		return nil
	}
	return &WError{
		uerr: fmt.Errorf(msg, args...),
		cerr: cerr,
	}
}
