// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/db"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/jackc/pgx/v5"
)

// Backuper takes and restores full logical backups of one database.
type Backuper interface {
	// Dump writes a full logical backup to w.
	Dump(ctx context.Context, w io.Writer) error
	// Restore replays a backup written by Dump.
	Restore(ctx context.Context, r io.Reader) error
	// Dialect of the database being backed up.
	Dialect() string
}

// command describes one external tool invocation. Credentials go in env,
// never in args, so they do not show up in the process list.
type command struct {
	name   string
	args   []string
	env    []string
	stdin  io.Reader
	stdout io.Writer
}

type runFunc func(ctx context.Context, c command) error

func execRun(ctx context.Context, c command) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Env = append(os.Environ(), c.env...)
	cmd.Stdin = c.stdin
	cmd.Stdout = c.stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		return fmt.Errorf("%s: %w: %s", c.name, err, msg)
	}
	return nil
}

// NewBackuper returns the Backuper for the database type. The connection url
// is parsed the same way the driver parses it. Supported options are
// WithDumpCommand, WithRestoreCommand and WithLogger.
func NewBackuper(ctx context.Context, dbType db.DbType, connectionUrl string, opt ...Option) (Backuper, error) {
	const op = "checkpoint.NewBackuper"
	opts := getOpts(opt...)
	switch dbType {
	case db.MySQL:
		cfg, err := db.MySQLConfig(ctx, connectionUrl)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op)
		}
		b := &mysqlBackuper{
			cfg:     cfg,
			dump:    "mysqldump",
			restore: "mysql",
			run:     execRun,
			logger:  opts.withLogger,
		}
		if opts.withDumpCommand != "" {
			b.dump = opts.withDumpCommand
		}
		if opts.withRestoreCommand != "" {
			b.restore = opts.withRestoreCommand
		}
		return b, nil
	case db.Postgres:
		cfg, err := pgx.ParseConfig(connectionUrl)
		if err != nil {
			return nil, errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter), errors.WithMsg("invalid postgres url"))
		}
		b := &postgresBackuper{
			cfg:     cfg,
			dump:    "pg_dump",
			restore: "psql",
			run:     execRun,
			logger:  opts.withLogger,
		}
		if opts.withDumpCommand != "" {
			b.dump = opts.withDumpCommand
		}
		if opts.withRestoreCommand != "" {
			b.restore = opts.withRestoreCommand
		}
		return b, nil
	default:
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("no backup support for %s database type", dbType))
	}
}

type mysqlBackuper struct {
	cfg     *mysql.Config
	dump    string
	restore string
	run     runFunc
	logger  hclog.Logger
}

func (b *mysqlBackuper) Dialect() string { return "mysql" }

// clientSslModes maps the driver's tls parameter back onto the ssl-mode of
// the mysql client tools.
var clientSslModes = map[string]string{
	"false":       "DISABLED",
	"preferred":   "PREFERRED",
	"skip-verify": "REQUIRED",
	"true":        "VERIFY_IDENTITY",
}

func (b *mysqlBackuper) connArgs() ([]string, []string) {
	var args []string
	switch b.cfg.Net {
	case "unix":
		args = append(args, "--socket="+b.cfg.Addr)
	default:
		host, port, err := net.SplitHostPort(b.cfg.Addr)
		if err != nil {
			host = b.cfg.Addr
		}
		if host != "" {
			args = append(args, "--host="+host)
		}
		if port != "" {
			args = append(args, "--port="+port)
		}
	}
	if b.cfg.User != "" {
		args = append(args, "--user="+b.cfg.User)
	}
	if mode, ok := clientSslModes[b.cfg.TLSConfig]; ok {
		args = append(args, "--ssl-mode="+mode)
	}
	var env []string
	if b.cfg.Passwd != "" {
		env = append(env, "MYSQL_PWD="+b.cfg.Passwd)
	}
	return args, env
}

func (b *mysqlBackuper) Dump(ctx context.Context, w io.Writer) error {
	const op = "checkpoint.(mysqlBackuper).Dump"
	args, env := b.connArgs()
	args = append(args,
		"--single-transaction",
		"--routines",
		"--triggers",
		"--events",
		"--set-gtid-purged=OFF",
		// the restore drops and recreates the database, so tables created
		// after the checkpoint do not survive it
		"--add-drop-database",
		"--databases", b.cfg.DBName,
	)
	b.logger.Debug("dumping database", "command", b.dump, "database", b.cfg.DBName)
	if err := b.run(ctx, command{name: b.dump, args: args, env: env, stdout: w}); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	return nil
}

func (b *mysqlBackuper) Restore(ctx context.Context, r io.Reader) error {
	const op = "checkpoint.(mysqlBackuper).Restore"
	args, env := b.connArgs()
	args = append(args, b.cfg.DBName)
	b.logger.Debug("restoring database", "command", b.restore, "database", b.cfg.DBName)
	if err := b.run(ctx, command{name: b.restore, args: args, env: env, stdin: r}); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.RollbackFailed))
	}
	return nil
}

type postgresBackuper struct {
	cfg     *pgx.ConnConfig
	dump    string
	restore string
	run     runFunc
	logger  hclog.Logger
}

func (b *postgresBackuper) Dialect() string { return "postgres" }

// libpq environment, understood by both pg_dump and psql
func (b *postgresBackuper) env() []string {
	env := []string{
		fmt.Sprintf("PGHOST=%s", b.cfg.Host),
		fmt.Sprintf("PGPORT=%d", b.cfg.Port),
		fmt.Sprintf("PGDATABASE=%s", b.cfg.Database),
	}
	if b.cfg.User != "" {
		env = append(env, "PGUSER="+b.cfg.User)
	}
	if b.cfg.Password != "" {
		env = append(env, "PGPASSWORD="+b.cfg.Password)
	}
	if b.cfg.TLSConfig == nil {
		env = append(env, "PGSSLMODE=disable")
	}
	return env
}

func (b *postgresBackuper) Dump(ctx context.Context, w io.Writer) error {
	const op = "checkpoint.(postgresBackuper).Dump"
	args := []string{
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		"--clean",
		"--if-exists",
	}
	b.logger.Debug("dumping database", "command", b.dump, "database", b.cfg.Database)
	if err := b.run(ctx, command{name: b.dump, args: args, env: b.env(), stdout: w}); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.CheckpointCreation))
	}
	return nil
}

// resetSchema empties the current schema ahead of a restore. pg_dump --clean
// only drops the objects in the dump, anything created after it would
// otherwise survive.
const resetSchema = `DO $$
DECLARE s text := current_schema();
BEGIN
  EXECUTE format('DROP SCHEMA IF EXISTS %I CASCADE', s);
  EXECUTE format('CREATE SCHEMA %I', s);
END $$;
`

// Restore replays the dump after resetSchema, in one transaction.
func (b *postgresBackuper) Restore(ctx context.Context, r io.Reader) error {
	const op = "checkpoint.(postgresBackuper).Restore"
	args := []string{
		"--no-psqlrc",
		"--quiet",
		"--single-transaction",
		"--set=ON_ERROR_STOP=1",
		"--file=-",
	}
	b.logger.Debug("restoring database", "command", b.restore, "database", b.cfg.Database)
	stdin := io.MultiReader(strings.NewReader(resetSchema), r)
	if err := b.run(ctx, command{name: b.restore, args: args, env: b.env(), stdin: stdin}); err != nil {
		return errors.Wrap(ctx, err, op, errors.WithCode(errors.RollbackFailed))
	}
	return nil
}
