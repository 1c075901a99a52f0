// Package database reads the live SEAD database: the catalog that describes
// the importable tables and the primary keys already persisted in them.
//
// Nothing here writes. Committing a submission is the downstream importer's
// job.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSchema is the Postgres schema holding the SEAD tables.
const DefaultSchema = "public"

// DBTX is the interface for database operations.
// Satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func schemaOrDefault(name string) string {
	if name == "" {
		return DefaultSchema
	}
	return name
}
