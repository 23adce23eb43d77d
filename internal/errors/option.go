// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// GetOpts - iterate the inbound Options and return a struct.
func GetOpts(opt ...Option) Options {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option - how Options are passed as arguments.
type Option func(*Options)

// Options = how options are represented
type Options struct {
	withCode       Code
	withErrWrapped error
	withErrMsg     string
	withOp         Op
	withoutEvent   bool
}

func getDefaultOptions() Options {
	return Options{}
}

// WithErrCode provides an option to provide a code when creating a new
// error.
func WithCode(c Code) Option {
	return func(o *Options) {
		o.withCode = c
	}
}

// WithWrap provides an option to provide an error to wrap when creating a new
// error.
func WithWrap(e error) Option {
	return func(o *Options) {
		o.withErrWrapped = e
	}
}

// WithMsg provides an option to provide a message when creating a new
// error.
func WithMsg(msg string, args ...any) Option {
	return func(o *Options) {
		if len(args) == 0 {
			o.withErrMsg = msg
			return
		}
		o.withErrMsg = sprintf(msg, args...)
	}
}

// WithOp provides an option to provide the operation that's raising/propagating
// the error.
func WithOp(op Op) Option {
	return func(o *Options) {
		o.withOp = op
	}
}

// WithoutEvent provides an option to suppress the debug log written when the
// error is created.
func WithoutEvent() Option {
	return func(o *Options) {
		o.withoutEvent = true
	}
}
