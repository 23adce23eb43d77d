// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"github.com/hashicorp/go-hclog"
)

// GetOpts - iterate the inbound Options and return a struct
func GetOpts(opt ...Option) options {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option - how Options are passed as arguments
type Option func(*options)

// options = how options are represented
type options struct {
	withLogger             hclog.Logger
	withBackoff            Backoff
	withMaxOpenConnections int
	withFailOn             int
	withFailErr            error
}

func getDefaultOptions() options {
	return options{
		withLogger:  hclog.NewNullLogger(),
		withBackoff: ExpBackoff{},
	}
}

// WithLogger provides an option to log connection attempts.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}

// WithBackoff provides an option to control ping retries on Open. A nil
// Backoff pings once.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.withBackoff = b
	}
}

// WithMaxOpenConnections provides an option to cap the connection pool.
func WithMaxOpenConnections(n int) Option {
	return func(o *options) {
		o.withMaxOpenConnections = n
	}
}

// WithFailOn makes a TestExecutor fail the nth (1 based) statement with err.
func WithFailOn(n int, err error) Option {
	return func(o *options) {
		o.withFailOn = n
		o.withFailErr = err
	}
}
