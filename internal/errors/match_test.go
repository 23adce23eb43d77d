// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestT(t *testing.T) {
	t.Parallel()
	stdErr := stderrors.New("test error")
	tests := []struct {
		name string
		args []any
		want *Template
	}{
		{
			name: "all fields",
			args: []any{"test error msg", Op("alice.Bob"), CheckpointInvalid, stdErr, Migration},
			want: &Template{
				Err: Err{
					Code:    CheckpointInvalid,
					Msg:     "test error msg",
					Op:      "alice.Bob",
					Wrapped: stdErr,
				},
				Kind: Migration,
			},
		},
		{
			name: "Kind only",
			args: []any{Integrity},
			want: &Template{Kind: Integrity},
		},
		{
			name: "ignore unknown types",
			args: []any{3.14, struct{}{}},
			want: &Template{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, T(tt.args...))
		})
	}
}

func TestTemplate_Info(t *testing.T) {
	t.Parallel()
	var nilTemplate *Template
	assert.Equal(t, errorCodeInfo[Unknown], nilTemplate.Info())
	assert.Equal(t, errorCodeInfo[RollbackFailed], T(RollbackFailed).Info())
	assert.Equal(t, Info{Message: "Unknown", Kind: External}, T(External).Info())
	assert.Equal(t, "Template error", T().Error())
}

func TestMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stdErr := stderrors.New("boom")
	errApply := New(ctx, ApplyStepFailed, "apply.(Engine).applyOne", "exec failed", WithWrap(stdErr))
	tests := []struct {
		name     string
		template *Template
		err      error
		want     bool
	}{
		{name: "nil template", err: errApply},
		{name: "nil err", template: T(ApplyStepFailed)},
		{name: "not an Err", template: T(ApplyStepFailed), err: stdErr},
		{name: "code", template: T(ApplyStepFailed), err: errApply, want: true},
		{name: "wrong code", template: T(RollbackFailed), err: errApply},
		{name: "kind", template: T(Migration), err: errApply, want: true},
		{name: "wrong kind", template: T(Parameter), err: errApply},
		{name: "msg", template: T("exec failed"), err: errApply, want: true},
		{name: "wrong msg", template: T("other"), err: errApply},
		{name: "op", template: T(Op("apply.(Engine).applyOne")), err: errApply, want: true},
		{name: "wrapped", template: T(stderrors.New("boom")), err: errApply, want: true},
		{name: "wrapped mismatch", template: T(stderrors.New("bang")), err: errApply},
		{
			name:     "code deeper in chain",
			template: T(ApplyStepFailed),
			err:      Wrap(ctx, Wrap(ctx, errApply, "apply.(Engine).Run"), "commands.(ApplyCommand).Run", WithCode(Unknown)),
			want:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.template, tt.err))
		})
	}
}
