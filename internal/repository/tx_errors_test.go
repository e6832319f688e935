package repository

import (
	"errors"
	"fmt"
	"testing"

	"quiz_engine/internal/util"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAsConflict(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"gorm duplicate", gorm.ErrDuplicatedKey, true},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}, true},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, true},
		{"wrapped mysql deadlock", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1213}), true},
		{"mysql missing table", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, false},
		{"postgres serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"postgres deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"postgres unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"postgres foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := asConflict(tc.err, "quiz %s student %d attempt %d", "q1", 3, 1)
			assert.Equal(t, tc.conflict, errors.Is(err, util.ErrConcurrencyConflict))
			assert.ErrorIs(t, err, tc.err)
			if tc.conflict {
				assert.Contains(t, err.Error(), "quiz q1 student 3 attempt 1")
			}
		})
	}
}
