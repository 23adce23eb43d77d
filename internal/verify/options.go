// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package verify

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
	withLogger      hclog.Logger
	withConstraints bool
	withIndexes     bool
	withData        bool
}

func getDefaultOptions() options {
	return options{
		withLogger:      hclog.NewNullLogger(),
		withConstraints: true,
		withIndexes:     true,
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

// WithConstraints toggles the foreign key checks. On by default.
func WithConstraints(b bool) Option {
	return func(o *options) {
		o.withConstraints = b
	}
}

// WithIndexes toggles the index checks. On by default.
func WithIndexes(b bool) Option {
	return func(o *options) {
		o.withIndexes = b
	}
}

// WithData toggles the orphan row checks. Off by default since they scan
// whole tables.
func WithData(b bool) Option {
	return func(o *options) {
		o.withData = b
	}
}
