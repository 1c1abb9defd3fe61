// Package queue persists export jobs and enforces their lifecycle.
//
// A job moves pending → processing → complete|failed. The Store contract makes
// every transition a conditional write, so a terminal job can never be
// mutated again and progress never moves backwards. Two backends implement
// the contract: SQLiteStore (the default, a single file under data_dir) and
// PostgresStore (pgxpool, for deployments that share one job table between
// several daemons).
//
// Schema changes bump schemaVersion in sqlite_schema.go; users clear the
// database to adopt the new schema.
package queue
