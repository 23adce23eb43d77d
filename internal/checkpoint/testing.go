// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"context"
	"io"
	"sync"
)

// TestBackuper is an in-memory Backuper. Dump writes Data; Restore records
// what it was given.
type TestBackuper struct {
	Data       string
	DumpErr    error
	RestoreErr error

	mu       sync.Mutex
	dumps    int
	restored []string
}

var _ Backuper = (*TestBackuper)(nil)

func (b *TestBackuper) Dialect() string { return "mysql" }

func (b *TestBackuper) Dump(_ context.Context, w io.Writer) error {
	b.mu.Lock()
	b.dumps++
	b.mu.Unlock()
	if b.DumpErr != nil {
		return b.DumpErr
	}
	_, err := io.WriteString(w, b.Data)
	return err
}

func (b *TestBackuper) Restore(_ context.Context, r io.Reader) error {
	if b.RestoreErr != nil {
		return b.RestoreErr
	}
	d, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restored = append(b.restored, string(d))
	return nil
}

// Dumps is how often Dump was called.
func (b *TestBackuper) Dumps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dumps
}

// Restored returns every backup passed to Restore.
func (b *TestBackuper) Restored() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.restored...)
}

// TestSignaler records the signals it receives, in order.
type TestSignaler struct {
	QuiesceErr error
	HealthyErr error

	mu    sync.Mutex
	calls []string
}

var _ AppSignaler = (*TestSignaler)(nil)

func (s *TestSignaler) record(c string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
}

func (s *TestSignaler) Quiesce(context.Context) error {
	s.record("quiesce")
	return s.QuiesceErr
}

func (s *TestSignaler) Resume(context.Context) error {
	s.record("resume")
	return nil
}

func (s *TestSignaler) Healthy(context.Context) error {
	s.record("healthy")
	return s.HealthyErr
}

// Calls returns the signals received so far.
func (s *TestSignaler) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// TestConfirmer answers every prompt with Answer and records the prompts.
type TestConfirmer struct {
	Answer  bool
	Err     error
	Prompts []string
}

func (c *TestConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	c.Prompts = append(c.Prompts, prompt)
	return c.Answer, c.Err
}
