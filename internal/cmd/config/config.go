// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the stagehand HCL configuration file and applies
// STAGEHAND_ environment overrides on top of it.
package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultFile is read when -config is not given and the file exists.
	DefaultFile = "stagehand.hcl"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "STAGEHAND"

	defaultDialect        = "mysql"
	defaultTargetSchema   = "schema/target.hcl"
	defaultCheckpointsDir = "checkpoints"
	defaultJournalPath    = "drizzle/meta/_journal.json"
	defaultRollbacksDir   = "drizzle/rollback"
	defaultAuditLog       = "logs/migration-audit.log"
	defaultMigrationTable = "__drizzle_migrations"
	defaultLogLevel       = "info"
	defaultLogFormat      = "standard"
)

// Config is the configuration for a stagehand project.
type Config struct {
	Database       *Database    `hcl:"database"`
	TargetSchema   string       `hcl:"target_schema"`
	CheckpointsDir string       `hcl:"checkpoints_dir"`
	JournalPath    string       `hcl:"journal_path"`
	RollbacksDir   string       `hcl:"rollbacks_dir"`
	AuditLog       string       `hcl:"audit_log"`
	IgnoreTables   []string     `hcl:"ignore_tables"`
	LogLevel       string       `hcl:"log_level"`
	LogFormat      string       `hcl:"log_format"`
	Backup         *Backup      `hcl:"backup"`
	Application    *Application `hcl:"application"`
	Verify         *Verify      `hcl:"verify"`
}

type Database struct {
	Dialect string `hcl:"dialect"`
	// Url may be a literal connection string, env://VAR or file://path.
	Url string `hcl:"url"`
	// MaxOpenConnections of zero leaves the driver default.
	MaxOpenConnections int `hcl:"max_open_connections"`
}

type Backup struct {
	DumpCommand    string `hcl:"dump_command"`
	RestoreCommand string `hcl:"restore_command"`
}

// Application holds the endpoints used to quiesce and resume the
// application around a checkpoint restore.
type Application struct {
	HealthUrl  string `hcl:"health_url"`
	QuiesceUrl string `hcl:"quiesce_url"`
	ResumeUrl  string `hcl:"resume_url"`
}

// Configured reports whether any endpoint is set.
func (a *Application) Configured() bool {
	return a != nil && (a.HealthUrl != "" || a.QuiesceUrl != "" || a.ResumeUrl != "")
}

type Verify struct {
	RequiredTables   []string `hcl:"required_tables"`
	VersionColumn    string   `hcl:"version_column"`
	VersionTables    []string `hcl:"version_tables"`
	SoftDeleteColumn string   `hcl:"soft_delete_column"`
	SoftDeleteTables []string `hcl:"soft_delete_tables"`
	BackupScripts    []string `hcl:"backup_scripts"`
}

// overrides are read from STAGEHAND_* environment variables and win over the
// file.
type overrides struct {
	DatabaseUrl    string `envconfig:"DATABASE_URL"`
	Dialect        string `envconfig:"DIALECT"`
	TargetSchema   string `envconfig:"TARGET_SCHEMA"`
	CheckpointsDir string `envconfig:"CHECKPOINTS_DIR"`
	JournalPath    string `envconfig:"JOURNAL_PATH"`
	RollbacksDir   string `envconfig:"ROLLBACKS_DIR"`
	AuditLog       string `envconfig:"AUDIT_LOG"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
}

// New returns a Config with every default applied.
func New() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads the file at path, or the defaults when path is empty and
// DefaultFile does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	var c *Config
	switch {
	case path != "":
		var err error
		if c, err = LoadFile(path); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			var err error
			if c, err = LoadFile(DefaultFile); err != nil {
				return nil, err
			}
		} else {
			c = New()
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile loads the configuration from the given file.
func LoadFile(path string) (*Config, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(string(d))
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return c, nil
}

func Parse(d string) (*Config, error) {
	obj, err := hcl.Parse(d)
	if err != nil {
		return nil, err
	}

	result := &Config{}
	if err := hcl.DecodeObject(result, obj); err != nil {
		return nil, err
	}
	result.setDefaults()
	return result, nil
}

func (c *Config) setDefaults() {
	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Database.Dialect == "" {
		c.Database.Dialect = defaultDialect
	}
	if c.TargetSchema == "" {
		c.TargetSchema = defaultTargetSchema
	}
	if c.CheckpointsDir == "" {
		c.CheckpointsDir = defaultCheckpointsDir
	}
	if c.JournalPath == "" {
		c.JournalPath = defaultJournalPath
	}
	if c.RollbacksDir == "" {
		c.RollbacksDir = defaultRollbacksDir
	}
	if c.AuditLog == "" {
		c.AuditLog = defaultAuditLog
	}
	if c.IgnoreTables == nil {
		c.IgnoreTables = []string{defaultMigrationTable}
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.Backup == nil {
		c.Backup = &Backup{}
	}
	if c.Application == nil {
		c.Application = &Application{}
	}
	if c.Verify == nil {
		c.Verify = &Verify{}
	}
}

func (c *Config) applyEnv() error {
	var o overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return fmt.Errorf("error reading environment overrides: %w", err)
	}
	set := func(target *string, v string) {
		if v != "" {
			*target = v
		}
	}
	set(&c.Database.Url, o.DatabaseUrl)
	set(&c.Database.Dialect, o.Dialect)
	set(&c.TargetSchema, o.TargetSchema)
	set(&c.CheckpointsDir, o.CheckpointsDir)
	set(&c.JournalPath, o.JournalPath)
	set(&c.RollbacksDir, o.RollbacksDir)
	set(&c.AuditLog, o.AuditLog)
	set(&c.LogLevel, o.LogLevel)
	set(&c.LogFormat, o.LogFormat)
	return nil
}

// DbType returns the configured database type.
func (c *Config) DbType() (db.DbType, error) {
	return db.StringToDbType(c.Database.Dialect)
}

// DatabaseUrl resolves env:// and file:// indirection in the configured url.
func (c *Config) DatabaseUrl(ctx context.Context) (string, error) {
	const op = "config.(Config).DatabaseUrl"
	raw := strings.TrimSpace(c.Database.Url)
	if raw == "" {
		return "", errors.New(ctx, errors.InvalidConfiguration, op,
			fmt.Sprintf("database url is not set; set database.url or %s_DATABASE_URL", EnvPrefix))
	}
	u, err := parseutil.ParsePath(raw)
	switch {
	case err == nil:
	case stderrors.Is(err, parseutil.ErrNotAUrl):
		// mysql DSNs are not urls and are used as is
		u = raw
	default:
		return "", errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidConfiguration), errors.WithMsg("unable to resolve database url"))
	}
	u = strings.TrimSpace(u)
	if u == "" {
		return "", errors.New(ctx, errors.InvalidConfiguration, op, fmt.Sprintf("database url %q resolved to an empty value", raw))
	}
	return u, nil
}
