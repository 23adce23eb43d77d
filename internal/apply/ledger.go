// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package apply

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/stagehand/internal/errors"
)

// LedgerFile is the name of the preview ledger inside the checkpoints
// directory.
const LedgerFile = "previewed.json"

// Ledger remembers which target definitions have been previewed with a dry
// run. A target is identified by its schema fingerprint.
type Ledger struct {
	mu   sync.Mutex
	path string
}

type ledgerFile struct {
	Previews map[string]time.Time `json:"previews"`
}

// NewLedger returns a Ledger stored at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Previewed reports whether fingerprint has been previewed.
func (l *Ledger) Previewed(ctx context.Context, fingerprint string) (bool, error) {
	const op = "apply.(Ledger).Previewed"
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.read()
	if err != nil {
		return false, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	_, ok := f.Previews[fingerprint]
	return ok, nil
}

// Record marks fingerprint as previewed.
func (l *Ledger) Record(ctx context.Context, fingerprint string) error {
	const op = "apply.(Ledger).Record"
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := l.read()
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	f.Previews[fingerprint] = time.Now().UTC()
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	return nil
}

func (l *Ledger) read() (*ledgerFile, error) {
	f := &ledgerFile{Previews: map[string]time.Time{}}
	b, err := os.ReadFile(l.path)
	switch {
	case os.IsNotExist(err):
		return f, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(b, f); err != nil {
		return nil, err
	}
	if f.Previews == nil {
		f.Previews = map[string]time.Time{}
	}
	return f, nil
}
