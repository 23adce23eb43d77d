// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package journal reads the migration journal kept by the schema definition
// tool (drizzle-kit's meta/_journal.json). The journal is never written here.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/stagehand/internal/errors"
)

// Entry is one applied migration.
type Entry struct {
	Id        int       `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal is the ordered list of applied migrations.
type Journal struct {
	Entries []Entry
}

type rawJournal struct {
	Version string     `json:"version"`
	Dialect string     `json:"dialect"`
	Entries []rawEntry `json:"entries"`
}

type rawEntry struct {
	Idx  int    `json:"idx"`
	Tag  string `json:"tag"`
	When int64  `json:"when"`
}

// Load reads and validates a journal file.
func Load(ctx context.Context, path string) (*Journal, error) {
	const op = "journal.Load"
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io), errors.WithMsg("unable to read %s", path))
	}
	j, err := Parse(ctx, d)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithMsg("%s", path))
	}
	return j, nil
}

// Parse decodes a journal. Entry ids must start wherever the journal starts
// and then increase by exactly one.
func Parse(ctx context.Context, d []byte) (*Journal, error) {
	const op = "journal.Parse"
	var raw rawJournal
	if err := json.Unmarshal(d, &raw); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.JournalInvalid))
	}
	j := &Journal{Entries: make([]Entry, 0, len(raw.Entries))}
	for i, e := range raw.Entries {
		if i > 0 && e.Idx != raw.Entries[i-1].Idx+1 {
			return nil, errors.New(ctx, errors.JournalInvalid, op,
				fmt.Sprintf("entry %q has id %d, expected %d", e.Tag, e.Idx, raw.Entries[i-1].Idx+1))
		}
		if e.Tag == "" {
			return nil, errors.New(ctx, errors.JournalInvalid, op, fmt.Sprintf("entry %d has no tag", e.Idx))
		}
		j.Entries = append(j.Entries, Entry{
			Id:        e.Idx,
			Name:      e.Tag,
			Timestamp: time.UnixMilli(e.When).UTC(),
		})
	}
	return j, nil
}

// Head returns the latest entry, or false for an empty journal.
func (j *Journal) Head() (Entry, bool) {
	if j == nil || len(j.Entries) == 0 {
		return Entry{}, false
	}
	return j.Entries[len(j.Entries)-1], true
}

// Find resolves a migration by its tag or its ordinal.
func (j *Journal) Find(ctx context.Context, id string) (Entry, error) {
	const op = "journal.(Journal).Find"
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, errors.New(ctx, errors.InvalidParameter, op, "missing migration id")
	}
	if j != nil {
		for _, e := range j.Entries {
			if e.Name == id {
				return e, nil
			}
		}
		if n, err := strconv.Atoi(id); err == nil {
			for _, e := range j.Entries {
				if e.Id == n {
					return e, nil
				}
			}
		}
	}
	return Entry{}, errors.New(ctx, errors.RecordNotFound, op, fmt.Sprintf("migration %q is not in the journal", id))
}

// After returns every entry strictly after the identified migration, newest
// first.
func (j *Journal) After(ctx context.Context, id string) ([]Entry, error) {
	const op = "journal.(Journal).After"
	target, err := j.Find(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	var after []Entry
	for i := len(j.Entries) - 1; i >= 0; i-- {
		if j.Entries[i].Id <= target.Id {
			break
		}
		after = append(after, j.Entries[i])
	}
	return after, nil
}

// FileName is the zero padded ordinal drizzle-kit prefixes migration files
// with.
func (e Entry) FileName() string {
	return fmt.Sprintf("%04d", e.Id)
}
