// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/stagehand/internal/errors"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type DbType int

const (
	UnknownDB DbType = 0
	MySQL     DbType = 1
	Postgres  DbType = 2
)

func (db DbType) String() string {
	return [...]string{
		"unknown",
		"mysql",
		"postgres",
	}[db]
}

// driverName is the database/sql driver registered for the DbType.
func (db DbType) driverName() string {
	switch db {
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	default:
		return ""
	}
}

// StringToDbType maps a configured dialect name to a DbType.
func StringToDbType(dialect string) (DbType, error) {
	const op = "db.StringToDbType"
	switch strings.ToLower(dialect) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return UnknownDB, errors.New(context.Background(), errors.InvalidParameter, op, fmt.Sprintf("%q is not a supported database dialect", dialect), errors.WithoutEvent())
	}
}

// Open a database connection which is long-lived. The connection is verified
// with a ping, which is retried per the configured backoff before giving up.
// You need to call Close() on the returned sql.DB
func Open(ctx context.Context, dbType DbType, connectionUrl string, opt ...Option) (*sql.DB, error) {
	const op = "db.Open"
	if connectionUrl == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, "missing connection url")
	}
	opts := GetOpts(opt...)

	dsn, err := normalizeDsn(ctx, dbType, connectionUrl)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op)
	}
	driver := dbType.driverName()
	if driver == "" {
		return nil, errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unable to open %s database type", dbType))
	}
	sqlDb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(ctx, err, op, errors.WithMsg("unable to open database"))
	}
	if opts.withMaxOpenConnections > 0 {
		sqlDb.SetMaxOpenConns(opts.withMaxOpenConnections)
	}
	if err := ping(ctx, sqlDb, opts.withBackoff, opts.withLogger); err != nil {
		_ = sqlDb.Close()
		return nil, errors.Wrap(ctx, err, op, errors.WithMsg("unable to reach database"))
	}
	return sqlDb, nil
}

// normalizeDsn validates the connection string for the dialect. MySQL
// accepts the forms MySQLConfig parses. Postgres accepts any form pgx
// understands.
func normalizeDsn(ctx context.Context, dbType DbType, connectionUrl string) (string, error) {
	const op = "db.normalizeDsn"
	switch dbType {
	case MySQL:
		cfg, err := MySQLConfig(ctx, connectionUrl)
		if err != nil {
			return "", errors.Wrap(ctx, err, op)
		}
		// information_schema queries compare against DATABASE()
		if cfg.DBName == "" {
			return "", errors.New(ctx, errors.InvalidParameter, op, "mysql dsn must name a database")
		}
		cfg.ParseTime = true
		cfg.MultiStatements = false
		return cfg.FormatDSN(), nil
	case Postgres:
		if _, err := pgx.ParseConfig(connectionUrl); err != nil {
			return "", errors.Wrap(ctx, err, op, errors.WithCode(errors.InvalidParameter), errors.WithMsg("invalid postgres url"))
		}
		return connectionUrl, nil
	default:
		return "", errors.New(ctx, errors.InvalidParameter, op, fmt.Sprintf("unable to open %s database type", dbType))
	}
}

func ping(ctx context.Context, sqlDb *sql.DB, b Backoff, logger hclog.Logger) error {
	attempt := 0
	return retry(ctx, b, func() error {
		attempt++
		err := sqlDb.PingContext(ctx)
		if err != nil {
			logger.Debug("database ping failed", "attempt", attempt, "error", err)
			if errors.IsPermissionError(err) {
				return permanent(err)
			}
		}
		return err
	})
}
