package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate reports a unique-key violation so callers can retry with a
// fresh code or treat the row as already present.
var ErrDuplicate = errors.New("duplicate row")

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
