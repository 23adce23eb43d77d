// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

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
	withLogger         hclog.Logger
	withDumpCommand    string
	withRestoreCommand string
	withRetryMax       int
	withSignaler       AppSignaler
	withMigrationId    func() string
	withNow            func() time.Time
}

func getDefaultOptions() options {
	return options{
		withLogger:   hclog.NewNullLogger(),
		withRetryMax: 4,
		withNow:      time.Now,
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

// WithDumpCommand overrides the backup tool (mysqldump or pg_dump).
func WithDumpCommand(path string) Option {
	return func(o *options) {
		o.withDumpCommand = path
	}
}

// WithRestoreCommand overrides the restore tool (mysql or psql).
func WithRestoreCommand(path string) Option {
	return func(o *options) {
		o.withRestoreCommand = path
	}
}

// WithRetryMax sets how often an application signal is retried.
func WithRetryMax(n int) Option {
	return func(o *options) {
		o.withRetryMax = n
	}
}

// WithSignaler provides the application signaler used by Restore. The
// default only logs the manual steps.
func WithSignaler(s AppSignaler) Option {
	return func(o *options) {
		o.withSignaler = s
	}
}

// WithMigrationId provides the lookup of the last applied migration, which is
// recorded on each new checkpoint.
func WithMigrationId(f func() string) Option {
	return func(o *options) {
		o.withMigrationId = f
	}
}

// WithNow overrides the clock used for checkpoint ids.
func WithNow(f func() time.Time) Option {
	return func(o *options) {
		if f != nil {
			o.withNow = f
		}
	}
}
