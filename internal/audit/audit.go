// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package audit appends one JSON line per forced (unconfirmed) schema change
// run to a durable log.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/stagehand/internal/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// ActionForceApply is recorded when apply skips confirmation.
	ActionForceApply = "force_apply"
	// ActionForceRollback is recorded when rollback skips confirmation.
	ActionForceRollback = "force_rollback"

	// ForceWarning accompanies every forced record.
	ForceWarning = "confirmation skipped with -force"

	// rotate after this many megabytes; rotated files are never deleted
	maxSizeMb = 100
)

// Record is one audit line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	User      string    `json:"user"`
	Hostname  string    `json:"hostname"`
	Stage     string    `json:"stage"`
	DryRun    bool      `json:"dryRun"`
	Warning   string    `json:"warning"`
}

// Writer records audit lines.
type Writer interface {
	Write(ctx context.Context, r Record) error
}

// Log appends records to a file. It is safe for concurrent use.
type Log struct {
	mu sync.Mutex
	w  io.WriteCloser
}

var _ Writer = (*Log)(nil)

// Open opens (creating if needed) the audit log at path. The file is rotated
// by size and rotated files are kept.
func Open(ctx context.Context, path string) (*Log, error) {
	const op = "audit.Open"
	if path == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing audit log path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	{
		// Ensure the file exists with the desired permissions and is writable
		// before anything relies on it.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
		}
		f.Close()
	}
	return NewLog(&lumberjack.Logger{
		Filename: path,
		MaxSize:  maxSizeMb,
	}), nil
}

// NewLog wraps an existing writer.
func NewLog(w io.WriteCloser) *Log {
	return &Log{w: w}
}

// Write appends r as a single JSON line. A zero timestamp is set to now.
func (l *Log) Write(ctx context.Context, r Record) error {
	const op = "audit.(Log).Write"
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// NewRecord fills in who and where for a forced action.
func NewRecord(action, stage string, dryRun bool) Record {
	return Record{
		Timestamp: time.Now().UTC(),
		Action:    action,
		User:      currentUser(),
		Hostname:  hostname(),
		Stage:     stage,
		DryRun:    dryRun,
		Warning:   ForceWarning,
	}
}

func currentUser() string {
	// the invoking user under sudo is the one accountable
	if u := os.Getenv("SUDO_USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
