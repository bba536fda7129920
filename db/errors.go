package db

import (
	"strings"

	"github.com/teranos/jawala/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database,
// typically when the realtime goroutine outlives the CLI command that opened it.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// It matches wrapped ErrDatabaseClosed as well as raw sql driver errors, which
// cannot be wrapped at their source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	return strings.Contains(err.Error(), "database is closed")
}
