// Package testutil provides a stub Postgres connection for repository and synchronizer tests.
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

	"github.com/jmoiron/sqlx"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
)

var driverSeq atomic.Int64

// Statement is one recorded Exec or Query.
type Statement struct {
	Query string
	Args  []any
}

// QueryResult is served to any query containing its fragment.
type QueryResult struct {
	Fragment string
	Columns  []string
	Rows     [][]driver.Value
	Err      error
}

// ExecResult is returned by any exec containing its fragment.
type ExecResult struct {
	Fragment     string
	RowsAffected int64
	Err          error
}

// StubConn records every statement and answers from canned results. Fragments are matched
// case-insensitively in registration order.
type StubConn struct {
	mu         sync.Mutex
	Execs      []Statement
	Queries    []Statement
	queries    []QueryResult
	execs      []ExecResult
	prepares   []ExecResult
	Prepared   []string
	FailBegin  bool
	FailCommit bool
	FailPing   bool
	Begins     int
	Commits    int
	Rollbacks  int
}

// NewStubDB returns a database.DB backed by a fresh stub connection.
func NewStubDB() (database.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return database.NewDatabaseInstance(sqlx.NewDb(db, "postgres"), logging.Discard()), conn
}

// OnQuery registers rows for queries containing fragment.
func (c *StubConn) OnQuery(fragment string, columns []string, rows ...[]driver.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, QueryResult{Fragment: strings.ToLower(fragment), Columns: columns, Rows: rows})
}

// OnQueryError fails queries containing fragment.
func (c *StubConn) OnQueryError(fragment string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, QueryResult{Fragment: strings.ToLower(fragment), Err: err})
}

// OnExec sets the result of execs containing fragment.
func (c *StubConn) OnExec(fragment string, rowsAffected int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, ExecResult{Fragment: strings.ToLower(fragment), RowsAffected: rowsAffected, Err: err})
}

// OnPrepareError fails statements prepared from a query containing fragment.
func (c *StubConn) OnPrepareError(fragment string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepares = append(c.prepares, ExecResult{Fragment: strings.ToLower(fragment), Err: err})
}

// StatementExecs returns the recorded execs of prepared statements containing fragment.
func (c *StubConn) StatementExecs(fragment string) []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	fragment = strings.ToLower(fragment)
	var out []Statement
	for _, s := range c.Execs {
		if strings.Contains(strings.ToLower(s.Query), fragment) {
			out = append(out, s)
		}
	}
	return out
}

// ExecQueries returns the recorded exec statements in order.
func (c *StubConn) ExecQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.Execs))
	for i, s := range c.Execs {
		out[i] = s.Query
	}
	return out
}

// LastQuery returns the most recent query statement.
func (c *StubConn) LastQuery() Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Queries) == 0 {
		return Statement{}
	}
	return c.Queries[len(c.Queries)-1]
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare returns a statement whose execs are recorded like any other exec.
func (c *StubConn) Prepare(query string) (driver.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prepared = append(c.Prepared, query)
	lower := strings.ToLower(query)
	for _, p := range c.prepares {
		if strings.Contains(lower, p.Fragment) {
			return nil, p.Err
		}
	}
	return &stubStmt{conn: c, query: query}, nil
}

func (c *StubConn) Close() error { return nil }

func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	c.Begins++
	return &stubTx{conn: c}, nil
}

func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, Statement{Query: query, Args: values(args)})
	lower := strings.ToLower(query)
	for _, r := range c.execs {
		if strings.Contains(lower, r.Fragment) {
			if r.Err != nil {
				return nil, r.Err
			}
			return driver.RowsAffected(r.RowsAffected), nil
		}
	}
	return driver.RowsAffected(0), nil
}

func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, Statement{Query: query, Args: values(args)})
	lower := strings.ToLower(query)
	for _, r := range c.queries {
		if !strings.Contains(lower, r.Fragment) {
			continue
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return &stubRows{cols: r.Columns, rows: r.Rows}, nil
	}
	return nil, fmt.Errorf("no stub result for query: %s", query)
}

func values(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

type stubStmt struct {
	conn  *StubConn
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *stubStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func (s *stubStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), named(args))
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), named(args))
}

func named(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	t.conn.Commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.Rollbacks++
	return nil
}

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
