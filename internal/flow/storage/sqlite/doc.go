// Package sqlite persists scene flow evaluation runs and their reports
// in the results database. Stores wrap a *sql.DB opened by internal/db
// and retry writes that hit SQLite busy errors under WAL contention.
package sqlite
