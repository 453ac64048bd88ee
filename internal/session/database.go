package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Diesmo/scripthost/internal/value"
)

// QueryResult is the single callback for one database query. Exactly one of
// rows or err is meaningful. Runs on the owner's execution queue.
type QueryResult func(rows []value.Object, err error)

type dbQuery struct {
	query  string
	args   []any
	onRows QueryResult
}

// dbSession serializes all queries for one database connection through a
// single worker. Two queries issued back-to-back are answered in request
// order; result delivery is never interleaved.
type dbSession struct {
	db      *sql.DB
	queries chan dbQuery
}

func openDatabase(p Params, timeout time.Duration) (*dbSession, error) {
	db, err := sql.Open("sqlite3", p.DSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// One underlying connection; the worker is the only user anyway and
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &dbSession{
		db:      db,
		queries: make(chan dbQuery, 64),
	}, nil
}

// run is the per-connection query worker. Exits when the connection leaves
// Open.
func (d *dbSession) run(c *Conn) {
	for {
		select {
		case <-c.doneCh:
			return
		case q := <-d.queries:
			rows, err := d.execute(q.query, q.args)
			c.post(func() { q.onRows(rows, err) })
		}
	}
}

func (d *dbSession) execute(query string, args []any) ([]value.Object, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []value.Object
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(value.Object, len(cols))
		for i, col := range cols {
			row[col] = columnValue(raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func columnValue(raw any) value.Value {
	switch v := raw.(type) {
	case nil:
		return value.Null{}
	case bool:
		return value.Bool(v)
	case int64:
		return value.Int(v)
	case float64:
		return value.Float(v)
	case string:
		return value.String(v)
	case []byte:
		return value.String(v)
	case time.Time:
		return value.String(v.Format(time.RFC3339Nano))
	}
	return value.String(fmt.Sprintf("%v", raw))
}

func (d *dbSession) close() error {
	return d.db.Close()
}

// queryAsync hands a query to the connection's worker.
// A saturated query queue still yields exactly one callback, carrying an
// error, rather than blocking the instance queue.
func (c *Conn) queryAsync(query string, args []any, onRows QueryResult) error {
	if c.kind != KindDatabase {
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id, Err: fmt.Errorf("not a database connection")}
	}
	if State(c.state.Load()) != StateOpen {
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id}
	}

	q := dbQuery{query: query, args: args, onRows: onRows}
	select {
	case c.db.queries <- q:
		return nil
	case <-c.doneCh:
		return &ConnError{Code: ErrCodeNotOpen, ID: c.id}
	default:
		c.post(func() { onRows(nil, fmt.Errorf("query queue full")) })
		return nil
	}
}
