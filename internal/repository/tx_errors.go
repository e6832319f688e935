package repository

import (
	"errors"
	"fmt"

	"quiz_engine/internal/util"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// MySQL 错误码
const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// PostgreSQL 错误码
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// isTxConflict 判断事务是否在并发竞争中失败，整个事务可从头重放
func isTxConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry, mysqlLockWaitTimeout, mysqlDeadlockDetected:
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure, pgDeadlockDetected:
			return true
		}
	}
	return false
}

// asConflict 将竞争失败包装为 util.ErrConcurrencyConflict，保留驱动原始错误
func asConflict(err error, format string, args ...interface{}) error {
	if !isTxConflict(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), util.ErrConcurrencyConflict, err)
}
