package modules

import "github.com/Diesmo/scripthost/internal/session"

// DB opens database sessions. Privileged.
//
// Queries on one connection are answered strictly in request order with one
// callback each - two queries issued back-to-back never interleave their
// results.
type DB struct {
	conns conns
}

// ModuleName implements capability.Module.
func (*DB) ModuleName() string { return "db" }

// Connect opens a database session for the given DSN. An unreachable or
// invalid database yields exactly one onResult callback with a non-nil
// error and no usable connection.
func (d *DB) Connect(dsn string, onResult session.OpenResult) (string, error) {
	return d.conns.open(session.Params{DSN: dsn}, onResult)
}

// Query runs a query on the connection's worker; onRows receives either the
// rows or an error, exactly once, on the script's queue.
func (d *DB) Query(id, query string, args []any, onRows session.QueryResult) error {
	return d.conns.svc.Sessions.Query(id, query, args, onRows)
}

// Close ends the session. Idempotent; pending queries are dropped and no
// callbacks follow.
func (d *DB) Close(id string) {
	d.conns.svc.Sessions.Close(id)
}
