// Package storage is the SQL repository for posts, schedules, channels,
// deliveries, deletion stats and pending report messages.
//
// Two drivers are supported:
//   - "sqlite": modernc.org/sqlite, a single connection in WAL mode
//   - "postgres": jackc/pgx/v5 through database/sql
//
// Queries use "?" placeholders and are rebound for postgres. Timestamps are
// stored as unix milliseconds.
package storage
