// Package sqlite provides the modernc.org/sqlite backed order store.
//
// The package mirrors the postgres driver layout while supplying SQLite specific
// connection management, migrations, and session wiring through sqldb.
package sqlite
