// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	stderrors "errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

// Test_GetOpts provides unit tests for GetOpts and all the options
func Test_GetOpts(t *testing.T) {
	t.Parallel()
	t.Run("WithLogger", func(t *testing.T) {
		assert := assert.New(t)
		opts := GetOpts(WithLogger(nil))
		assert.NotNil(opts.withLogger)

		l := hclog.New(&hclog.LoggerOptions{Name: "test"})
		opts = GetOpts(WithLogger(l))
		assert.Equal(l, opts.withLogger)
	})
	t.Run("WithBackoff", func(t *testing.T) {
		assert := assert.New(t)
		opts := GetOpts()
		assert.Equal(ExpBackoff{}, opts.withBackoff)
		opts = GetOpts(WithBackoff(nil))
		assert.Nil(opts.withBackoff)
	})
	t.Run("WithMaxOpenConnections", func(t *testing.T) {
		opts := GetOpts(WithMaxOpenConnections(5))
		assert.Equal(t, 5, opts.withMaxOpenConnections)
	})
	t.Run("WithFailOn", func(t *testing.T) {
		assert := assert.New(t)
		boom := stderrors.New("boom")
		opts := GetOpts(WithFailOn(2, boom))
		assert.Equal(2, opts.withFailOn)
		assert.Equal(boom, opts.withFailErr)
	})
}
