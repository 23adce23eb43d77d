// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/hashicorp/stagehand/version"
)

const (
	idPrefix       = "checkpoint-"
	backupSuffix   = ".sql"
	metadataSuffix = ".json"
)

// Info describes one checkpoint. It is stored as JSON next to the backup
// file it describes.
type Info struct {
	Id          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	BackupFile  string    `json:"backupFile"`
	MigrationId string    `json:"migrationId,omitempty"`
	Dialect     string    `json:"dialect"`
	ToolVersion string    `json:"toolVersion,omitempty"`
	SizeBytes   int64     `json:"sizeBytes"`
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// NewId returns the checkpoint id for t. Colons are replaced so the id can
// be used as a file name everywhere.
func NewId(t time.Time) string {
	return idPrefix + strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}

// Manager creates, lists and restores checkpoints stored in one directory.
type Manager struct {
	dir         string
	backuper    Backuper
	signaler    AppSignaler
	migrationId func() string
	now         func() time.Time
	logger      hclog.Logger
}

// NewManager returns a Manager storing checkpoints in dir. Supported options
// are WithSignaler, WithMigrationId, WithNow and WithLogger.
func NewManager(ctx context.Context, dir string, b Backuper, opt ...Option) (*Manager, error) {
	const op = "checkpoint.NewManager"
	switch {
	case dir == "":
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing checkpoints directory")
	case b == nil:
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing backuper")
	}
	opts := getOpts(opt...)
	m := &Manager{
		dir:         dir,
		backuper:    b,
		signaler:    opts.withSignaler,
		migrationId: opts.withMigrationId,
		now:         opts.withNow,
		logger:      opts.withLogger,
	}
	if m.signaler == nil {
		m.signaler = &NoopSignaler{Logger: m.logger}
	}
	return m, nil
}

// Dir is where the checkpoints are stored.
func (m *Manager) Dir() string { return m.dir }

// Create takes a full backup and records it as a new checkpoint. Nothing is
// left behind on failure.
func (m *Manager) Create(ctx context.Context, description string) (*Info, error) {
	const op = "checkpoint.(Manager).Create"
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation), errors.WithMsg("unable to create checkpoints directory"))
	}
	ts := m.now().UTC().Truncate(time.Second)
	id, ok := m.freeId(ts)
	if !ok {
		return nil, errors.New(ctx, errors.CheckpointCreation, op, fmt.Sprintf("too many checkpoints taken at %s", ts.Format(time.RFC3339)))
	}
	backupPath := filepath.Join(m.dir, id+backupSuffix)
	metaPath := filepath.Join(m.dir, id+metadataSuffix)

	tmp, err := os.CreateTemp(m.dir, "."+id+"-*.sql.tmp")
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.Remove(tmpName)
		_ = os.Remove(backupPath)
		_ = os.Remove(metaPath)
	}()

	m.logger.Info("creating checkpoint", "id", id, "dialect", m.backuper.Dialect())
	if err := m.backuper.Dump(ctx, tmp); err != nil {
		_ = tmp.Close()
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	fi, err := os.Stat(tmpName)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	if fi.Size() == 0 {
		return nil, errors.New(ctx, errors.CheckpointCreation, op, "backup is empty")
	}
	if err := os.Rename(tmpName, backupPath); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}

	info := &Info{
		Id:          id,
		Timestamp:   ts,
		Description: description,
		BackupFile:  filepath.Base(backupPath),
		Dialect:     m.backuper.Dialect(),
		ToolVersion: version.Get().VersionNumber(),
		SizeBytes:   fi.Size(),
	}
	if m.migrationId != nil {
		info.MigrationId = m.migrationId()
	}
	if err := writeJSON(metaPath, info); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation), errors.WithMsg("unable to write checkpoint metadata"))
	}
	committed = true
	m.logger.Info("checkpoint created", "id", id, "size_bytes", info.SizeBytes)
	return info, nil
}

// maxIdSuffix bounds how many checkpoints can be taken within one second.
const maxIdSuffix = 99

// freeId returns the id for ts. Checkpoints taken in a second that already
// has one get a -1, -2, ... suffix.
func (m *Manager) freeId(ts time.Time) (string, bool) {
	base := NewId(ts)
	for n := 0; n <= maxIdSuffix; n++ {
		id := base
		if n > 0 {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		if _, err := os.Stat(m.metadataPath(id)); os.IsNotExist(err) {
			return id, true
		}
	}
	return "", false
}

// List returns every usable checkpoint, newest first. Entries whose metadata
// cannot be read or whose backup is gone are skipped with a warning.
func (m *Manager) List(ctx context.Context) ([]*Info, error) {
	const op = "checkpoint.(Manager).List"
	entries, err := os.ReadDir(m.dir)
	switch {
	case os.IsNotExist(err):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	var infos []*Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, idPrefix) || !strings.HasSuffix(name, metadataSuffix) {
			continue
		}
		info, err := m.load(ctx, strings.TrimSuffix(name, metadataSuffix))
		if err != nil {
			m.logger.Warn("skipping checkpoint", "file", name, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		// same second, the higher suffix is newer
		if len(a.Id) != len(b.Id) {
			return len(a.Id) > len(b.Id)
		}
		return a.Id > b.Id
	})
	return infos, nil
}

// Get returns the checkpoint with the given id after validating it.
func (m *Manager) Get(ctx context.Context, id string) (*Info, error) {
	const op = "checkpoint.(Manager).Get"
	if id == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing checkpoint id")
	}
	if _, err := os.Stat(m.metadataPath(id)); os.IsNotExist(err) {
		return nil, errors.New(ctx, errors.RecordNotFound, op, fmt.Sprintf("checkpoint %s not found", id))
	}
	info, err := m.load(ctx, id)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return info, nil
}

// Validate checks that the backup for info still exists and is not empty.
func (m *Manager) Validate(ctx context.Context, info *Info) error {
	const op = "checkpoint.(Manager).Validate"
	if info == nil {
		return errors.New(ctx, errors.InvalidParameter, op, "missing checkpoint")
	}
	if info.BackupFile == "" || filepath.Base(info.BackupFile) != info.BackupFile {
		return errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("checkpoint %s has an invalid backup file name", info.Id))
	}
	fi, err := os.Stat(filepath.Join(m.dir, info.BackupFile))
	switch {
	case os.IsNotExist(err):
		return errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("backup for checkpoint %s is missing", info.Id))
	case err != nil:
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointInvalid))
	case fi.Size() == 0:
		return errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("backup for checkpoint %s is empty", info.Id))
	}
	return nil
}

// Restore replaces the database with the checkpoint's backup. The application
// is quiesced first and resumed after; the restore only counts as done when
// the application reports healthy and the confirmer agrees.
func (m *Manager) Restore(ctx context.Context, id string, c Confirmer) error {
	const op = "checkpoint.(Manager).Restore"
	info, err := m.Get(ctx, id)
	if err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := m.Validate(ctx, info); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if info.Dialect != "" && info.Dialect != m.backuper.Dialect() {
		return errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("checkpoint %s is a %s backup, database is %s", id, info.Dialect, m.backuper.Dialect()))
	}
	ok, err := version.CheckpointCompatible(info.ToolVersion)
	switch {
	case err != nil:
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointInvalid))
	case !ok:
		return errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("checkpoint %s was written by a newer version (%s)", id, info.ToolVersion))
	}

	m.logger.Info("quiescing application", "checkpoint", id)
	if err := m.signaler.Quiesce(ctx); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	f, err := os.Open(filepath.Join(m.dir, info.BackupFile))
	if err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.RollbackFailed))
	}
	defer f.Close()
	m.logger.Info("restoring checkpoint", "checkpoint", id)
	if err := m.backuper.Restore(ctx, f); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.RollbackFailed))
	}
	m.logger.Info("resuming application", "checkpoint", id)
	if err := m.signaler.Resume(ctx); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if err := m.signaler.Healthy(ctx); err != nil {
		return errors.Wrap(ctx, err, op)
	}
	if c != nil {
		ok, err := c.Confirm(ctx, fmt.Sprintf("Checkpoint %s restored. Is the application healthy?", id))
		switch {
		case err != nil:
			return errors.Wrap(ctx, err, op)
		case !ok:
			return errors.New(ctx, errors.ConfirmationDeclined, op, "restore not confirmed healthy")
		}
	}
	m.logger.Info("checkpoint restored", "checkpoint", id)
	return nil
}

func (m *Manager) metadataPath(id string) string {
	return filepath.Join(m.dir, id+metadataSuffix)
}

func (m *Manager) load(ctx context.Context, id string) (*Info, error) {
	const op = "checkpoint.(Manager).load"
	if id == "" || filepath.Base(id) != id {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("invalid checkpoint id %q", id))
	}
	b, err := os.ReadFile(m.metadataPath(id))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.Io))
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointInvalid), errors.WithMsg("corrupt metadata"))
	}
	if info.Id != id {
		return nil, errors.New(ctx, errors.CheckpointInvalid, op, fmt.Sprintf("metadata id %q does not match %q", info.Id, id))
	}
	if err := m.Validate(ctx, &info); err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return &info, nil
}

// writeJSON writes v to path through a temp file in the same directory so
// readers never see a partial file.
func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
