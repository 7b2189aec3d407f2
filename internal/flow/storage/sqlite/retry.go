package sqlite

import (
	"strings"
	"time"
)

const (
	busyRetries  = 5
	busyBaseWait = 10 * time.Millisecond
)

// retryOnBusy runs fn, retrying with linear backoff while it returns a
// SQLite busy error. Other errors are returned immediately.
func retryOnBusy(fn func() error) error {
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(busyBaseWait * time.Duration(attempt+1))
	}
	return err
}

// isSQLiteBusy reports whether err is a SQLite lock contention error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}
