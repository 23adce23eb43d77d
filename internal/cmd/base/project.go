// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package base

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/stagehand/internal/apply"
	"github.com/hashicorp/stagehand/internal/audit"
	"github.com/hashicorp/stagehand/internal/change"
	"github.com/hashicorp/stagehand/internal/checkpoint"
	"github.com/hashicorp/stagehand/internal/cmd/config"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/db/dialect"
	"github.com/hashicorp/stagehand/internal/db/schema"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/hashicorp/stagehand/internal/journal"
)

// Project builds the components of one configured database. Connections and
// files are opened on first use and released by Close.
type Project struct {
	Config  *config.Config
	Logger  hclog.Logger
	DbType  db.DbType
	Dialect dialect.Dialect

	url     string
	db      *sql.DB
	audit   *audit.Log
	journal *journal.Journal
}

// NewProject resolves the database settings of cfg. Nothing is opened yet.
func NewProject(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Project, error) {
	const op = "base.NewProject"
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	dbType, err := cfg.DbType()
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration))
	}
	d, err := dialect.New(dbType)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	url, err := cfg.DatabaseUrl(ctx)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	return &Project{
		Config:  cfg,
		Logger:  logger,
		DbType:  dbType,
		Dialect: d,
		url:     url,
	}, nil
}

// Database opens the connection pool on first use.
func (p *Project) Database(ctx context.Context) (*sql.DB, error) {
	const op = "base.(Project).Database"
	if p.db != nil {
		return p.db, nil
	}
	conn, err := db.Open(ctx, p.DbType, p.url,
		db.WithLogger(p.Logger.Named("db")),
		db.WithMaxOpenConnections(p.Config.Database.MaxOpenConnections))
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	p.db = conn
	return p.db, nil
}

// Target loads the target schema definition.
func (p *Project) Target(ctx context.Context) (*schema.Schema, error) {
	return schema.LoadDefinition(ctx, p.Config.TargetSchema)
}

// Detector returns a change detector reading the live database.
func (p *Project) Detector(ctx context.Context) (*change.Detector, error) {
	conn, err := p.Database(ctx)
	if err != nil {
		return nil, err
	}
	return change.NewDetector(ctx, p.Dialect, conn,
		change.WithIgnoreTables(p.Config.IgnoreTables...),
		change.WithLogger(p.Logger.Named("detector")))
}

// Journal loads the migration journal once. A missing journal is an error.
func (p *Project) Journal(ctx context.Context) (*journal.Journal, error) {
	if p.journal != nil {
		return p.journal, nil
	}
	j, err := journal.Load(ctx, p.Config.JournalPath)
	if err != nil {
		return nil, err
	}
	p.journal = j
	return j, nil
}

// headMigration names the newest journal entry, or "" without a journal.
func (p *Project) headMigration(ctx context.Context) func() string {
	return func() string {
		j, err := p.Journal(ctx)
		if err != nil {
			p.Logger.Debug("no migration journal, checkpoint will not name a migration", "error", err)
			return ""
		}
		if head, ok := j.Head(); ok {
			return head.Name
		}
		return ""
	}
}

// Checkpoints returns the checkpoint manager. Restores coordinate with the
// application when any application url is configured.
func (p *Project) Checkpoints(ctx context.Context) (*checkpoint.Manager, error) {
	const op = "base.(Project).Checkpoints"
	logger := p.Logger.Named("checkpoint")
	opts := []checkpoint.Option{
		checkpoint.WithLogger(logger),
		checkpoint.WithDumpCommand(p.Config.Backup.DumpCommand),
		checkpoint.WithRestoreCommand(p.Config.Backup.RestoreCommand),
		checkpoint.WithMigrationId(p.headMigration(ctx)),
	}
	b, err := checkpoint.NewBackuper(ctx, p.DbType, p.url, opts...)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	if app := p.Config.Application; app.Configured() {
		s, err := checkpoint.NewHTTPSignaler(ctx, app.HealthUrl, app.QuiesceUrl, app.ResumeUrl, checkpoint.WithLogger(logger))
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		opts = append(opts, checkpoint.WithSignaler(s))
	}
	return checkpoint.NewManager(ctx, p.Config.CheckpointsDir, b, opts...)
}

// AuditLog opens the audit log on first use.
func (p *Project) AuditLog(ctx context.Context) (*audit.Log, error) {
	if p.audit != nil {
		return p.audit, nil
	}
	l, err := audit.Open(ctx, p.Config.AuditLog)
	if err != nil {
		return nil, err
	}
	p.audit = l
	return l, nil
}

// Ledger records previewed targets next to the checkpoints.
func (p *Project) Ledger() *apply.Ledger {
	return apply.NewLedger(filepath.Join(p.Config.CheckpointsDir, apply.LedgerFile))
}

// Close releases whatever was opened.
func (p *Project) Close() error {
	var result *multierror.Error
	if p.audit != nil {
		if err := p.audit.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing audit log: %w", err))
		}
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
