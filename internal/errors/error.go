// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Op represents an operation (package.function).
// For example iam.CreateRole
type Op string

// Err provides the ability to specify a Msg, Op, Code and Wrapped error.
// Errs must have a Code and all other fields are optional. We've chosen Err
// over Error for the identifier to support the easy embedding of Errs. Errs
// can be embedded without a conflict between the embedded Err and Err.Error().
type Err struct {
	// Code is the error's code, which can be used to get the error's
	// errorCodeInfo, which contains the error's Kind and Message
	Code Code

	// Msg for the error
	Msg string

	// Op represents the operation raising/propagating an error and is optional.
	Op Op

	// Wrapped is the error which this Err wraps and will be nil if there's no
	// error to wrap.
	Wrapped error
}

// E creates a new Err with provided code and supports the options of:
//
// * WithOp() - allows you to specify an optional Op (operation).
//
// * WithMsg() - allows you to specify an optional error msg, if the default
// msg for the error Code is not sufficient.
//
// * WithWrap() - allows you to specify an error to wrap.  If the wrapped
// error is an *Err and no Code was provided, the wrapped error's Code is used.
//
// * WithCode() - allows you to specify an optional Code.
//
// The new error is logged at debug level to the logger carried by ctx, unless
// WithoutEvent() is provided.
func E(ctx context.Context, opt ...Option) error {
	opts := GetOpts(opt...)
	var code Code
	if opts.withCode != Unknown {
		code = opts.withCode
	}
	if code == Unknown && opts.withErrWrapped != nil {
		var wrappedErr *Err
		if errors.As(opts.withErrWrapped, &wrappedErr) {
			code = wrappedErr.Code
		}
	}
	err := &Err{
		Code:    code,
		Op:      opts.withOp,
		Wrapped: opts.withErrWrapped,
		Msg:     opts.withErrMsg,
	}
	if !opts.withoutEvent && ctx != nil {
		hclog.FromContext(ctx).Debug("error", "op", string(err.Op), "code", uint32(err.Code), "error", err.Error())
	}
	return err
}

// New creates a new Err with the provided code, op and msg. It supports the
// options of WithWrap and WithoutEvent.
func New(ctx context.Context, c Code, op Op, msg string, opt ...Option) error {
	opt = append(opt, WithCode(c), WithOp(op), WithMsg("%s", msg))
	return E(ctx, opt...)
}

// Wrap creates a new Err from the provided err and op, preserving the code
// from the originating error. It supports the options of WithCode, WithMsg
// and WithoutEvent.
func Wrap(ctx context.Context, e error, op Op, opt ...Option) error {
	if e == nil {
		return nil
	}
	// a wrap is never interesting on its own, the originating error already
	// produced its event.
	opt = append(opt, WithWrap(e), WithOp(op), WithoutEvent())
	return E(ctx, opt...)
}

// Convert maps known database driver errors onto domain Codes. If the error
// is already an *Err or is not recognized, it's returned as is.
func Convert(e error) *Err {
	if e == nil {
		return nil
	}
	var alreadyConverted *Err
	if errors.As(e, &alreadyConverted) {
		return alreadyConverted
	}
	switch {
	case IsMissingTableError(e):
		return &Err{Code: MissingTable, Wrapped: e}
	case IsPermissionError(e):
		return &Err{Code: PermissionDenied, Wrapped: e}
	case IsUniqueError(e):
		return &Err{Code: NotUnique, Wrapped: e}
	case IsNotNullError(e):
		return &Err{Code: NotNull, Wrapped: e}
	}
	return &Err{Code: Unknown, Wrapped: e}
}

// Info about the Err
func (e *Err) Info() Info {
	if e == nil {
		return errorCodeInfo[Unknown]
	}
	return e.Code.Info()
}

// Error satisfies the error interface and returns a string representation of
// the Err
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	var s strings.Builder
	if e.Op != "" {
		join(&s, ": ", string(e.Op))
	}
	if e.Msg != "" {
		join(&s, ": ", e.Msg)
	}

	var skipInfo bool
	var wrapped *Err
	if errors.As(e.Wrapped, &wrapped) {
		// if wrapped error code is the same as this error, don't print redundant info
		skipInfo = wrapped.Code == e.Code
	}

	if info, ok := errorCodeInfo[e.Code]; ok && !skipInfo {
		if e.Msg == "" {
			join(&s, ": ", info.Message)
		}
		join(&s, ": ", info.Kind.String())
		join(&s, ": ", fmt.Sprintf("error #%d", e.Code))
	}

	if e.Wrapped != nil {
		join(&s, ": \n", e.Wrapped.Error())
	}
	return s.String()
}

func join(str *strings.Builder, delim string, s string) {
	if str.Len() == 0 {
		_, _ = str.WriteString(s)
		return
	}
	_, _ = str.WriteString(delim + s)
}

// Unwrap implements the errors.Unwrap interface and allows callers to use the
// errors.Is() and errors.As() functions effectively for any wrapped errors.
func (e *Err) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}
