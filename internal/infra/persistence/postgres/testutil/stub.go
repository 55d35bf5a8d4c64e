// Package testutil provides a recording stub database for postgres store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var stubSeq atomic.Int64

// Statement is one recorded Exec or Query.
type Statement struct {
	Query string
	Args  []any
}

// Responder scripts the result of a query. Returning nil columns yields an
// empty result set.
type Responder func(query string, args []any) (columns []string, rows [][]driver.Value, err error)

// StubConn records statements issued by the postgres store during tests.
type StubConn struct {
	mu        sync.Mutex
	Execs     []Statement
	Queries   []Statement
	FailBegin bool
	FailPing  bool
	// ExecErr, when set, decides the error returned for an exec.
	ExecErr func(query string) error
	Respond Responder
}

// NewStubDB registers a sql.DB backed by a single recording stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// ExecTexts returns the recorded exec statements in order.
func (c *StubConn) ExecTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Execs))
	for i, s := range c.Execs {
		out[i] = s.Query
	}
	return out
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return stubTx{}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	c.Execs = append(c.Execs, Statement{Query: normalize(query), Args: values(args)})
	c.mu.Unlock()
	if c.ExecErr != nil {
		if err := c.ExecErr(query); err != nil {
			return nil, err
		}
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	c.Queries = append(c.Queries, Statement{Query: normalize(query), Args: values(args)})
	c.mu.Unlock()
	if c.Respond == nil {
		return &stubRows{cols: []string{"n"}}, nil
	}
	cols, rows, err := c.Respond(query, values(args))
	if err != nil {
		return nil, err
	}
	if cols == nil {
		cols = []string{"n"}
	}
	return &stubRows{cols: cols, rows: rows}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

func normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
