// Package repository contains the hand-written SQL persistence layer.
// Methods that take a *sql.Tx participate in the caller's transaction when it
// is non-nil and fall back to the shared connection otherwise.
package repository

import "database/sql"

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func pick(db *sql.DB, tx *sql.Tx) dbtx {
	if tx != nil {
		return tx
	}
	return db
}
