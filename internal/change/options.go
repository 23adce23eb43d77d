// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package change

import "github.com/hashicorp/go-hclog"

// getOpts - iterate the inbound Options and return a struct.
func getOpts(opt ...Option) options {
	opts := getDefaultOptions()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// Option - how Options are passed as arguments.
type Option func(*options)

// options = how options are represented
type options struct {
	withIgnoreTables []string
	withLogger       hclog.Logger
}

func getDefaultOptions() options {
	return options{
		withLogger: hclog.NewNullLogger(),
	}
}

// WithIgnoreTables provides tables that are never created, altered or
// dropped.
func WithIgnoreTables(tables ...string) Option {
	return func(o *options) {
		o.withIgnoreTables = append(o.withIgnoreTables, tables...)
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.withLogger = l
		}
	}
}
