// Package repository implements the credential store on top of
// database/sql.  Repositories are built per handle (pool or transaction)
// so the saga can run the same queries inside a unit of work.
//
// Sentinel errors below let higher layers distinguish failure scenarios
// without inspecting driver errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert would create a second active
// account for the same email.  The unique index on accounts.active_email
// raises it, so it also fires when two registrations race.
var ErrEmailExists = errors.New("email already exists")

// isDuplicateKey recognizes unique violations from MySQL (1062) and from
// SQLite, which the test suite runs against.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}
