// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Is the equivalent of the std errors.Is, but allows a devs to only import
// this package for the capability.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is the equivalent of the std errors.As, and allows devs to only import
// this package for the capability.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func sprintf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

// driverCode returns the SQLSTATE (postgres) or error number (mysql) for a
// driver error, if err wraps one.
func driverCode(err error) (sqlState string, mysqlNumber uint16) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, 0
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), 0
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return string(myErr.SQLState[:]), myErr.Number
	}
	return "", 0
}

// IsUniqueError returns a boolean indicating whether the error is known to
// report a unique constraint violation.
func IsUniqueError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Err
	if errors.As(err, &domainErr) && domainErr.Code == NotUnique {
		return true
	}
	state, number := driverCode(err)
	return state == "23505" || number == 1062
}

// IsNotNullError returns a boolean indicating whether the error is known
// to report a not-null constraint violation.
func IsNotNullError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Err
	if errors.As(err, &domainErr) && domainErr.Code == NotNull {
		return true
	}
	state, number := driverCode(err)
	return state == "23502" || number == 1048 || number == 1138
}

// IsMissingTableError returns a boolean indicating whether the error is known
// to report a undefined/missing table violation.
func IsMissingTableError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Err
	if errors.As(err, &domainErr) && domainErr.Code == MissingTable {
		return true
	}
	state, number := driverCode(err)
	return state == "42P01" || number == 1146
}

// IsPermissionError returns a boolean indicating whether the error is known
// to report missing database privileges.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Err
	if errors.As(err, &domainErr) && domainErr.Code == PermissionDenied {
		return true
	}
	state, number := driverCode(err)
	switch {
	case state == "42501":
		return true
	case number == 1044, number == 1045, number == 1142, number == 1143:
		return true
	}
	return false
}

// IsNotFoundError returns a boolean indicating whether the error is known to
// report a not found violation.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var domainErr *Err
	if errors.As(err, &domainErr) {
		return domainErr.Code == RecordNotFound
	}
	return false
}
