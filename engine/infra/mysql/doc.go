// Package mysql provides the go-sql-driver/mysql backed order store.
//
// The package mirrors the sqlite driver layout: sessions come from sqldb and
// schema changes are applied with goose.
package mysql
