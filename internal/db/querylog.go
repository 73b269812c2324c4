package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// queryLogger is a driver.Connector that opens sqlite3 connections whose
// statements are logged at debug level with their arguments and duration.
type queryLogger struct {
	dsn    string
	logger *slog.Logger
}

type loggedConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggedStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// NewQueryLogger returns a connector for sql.OpenDB. A nil logger uses
// slog.Default().
func NewQueryLogger(dsn string, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &queryLogger{dsn: dsn, logger: logger}
}

func (c *queryLogger) Driver() driver.Driver { return unsupportedDriver{} }

func (c *queryLogger) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := (&sqlite3.SQLiteDriver{}).Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggedConn{conn: conn, logger: c.logger}, nil
}

type unsupportedDriver struct{}

func (unsupportedDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("db: open through sql.OpenDB(NewQueryLogger(...))")
}

func (c *loggedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *loggedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.Prepare(query)
	}
	if err != nil {
		c.logger.Debug("db: prepare failed", "sql", query, "error", err)
		return nil, err
	}
	return &loggedStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggedConn) Close() error { return c.conn.Close() }

func (c *loggedConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *loggedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback for connections without BeginTx
	return c.conn.Begin()
}

func (s *loggedStmt) Close() error { return s.stmt.Close() }

func (s *loggedStmt) NumInput() int { return s.stmt.NumInput() }

func (s *loggedStmt) Exec(args []driver.Value) (driver.Result, error) {
	defer s.log("exec", args, time.Now())
	//nolint:staticcheck // SA1019 required by driver.Stmt
	return s.stmt.Exec(args)
}

func (s *loggedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	defer s.log("exec", namedArgs(args), time.Now())
	if execCtx, ok := s.stmt.(driver.StmtExecContext); ok {
		return execCtx.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without ExecContext
	return s.stmt.Exec(values(args))
}

func (s *loggedStmt) Query(args []driver.Value) (driver.Rows, error) {
	defer s.log("query", args, time.Now())
	//nolint:staticcheck // SA1019 required by driver.Stmt
	return s.stmt.Query(args)
}

func (s *loggedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	defer s.log("query", namedArgs(args), time.Now())
	if queryCtx, ok := s.stmt.(driver.StmtQueryContext); ok {
		return queryCtx.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without QueryContext
	return s.stmt.Query(values(args))
}

func (s *loggedStmt) log(op string, args any, start time.Time) {
	s.logger.Debug("sql",
		"op", op,
		"sql", s.query,
		"args", args,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func namedArgs(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		v := formatArg(a.Value)
		if a.Name != "" {
			v = a.Name + "=" + v
		}
		out[i] = v
	}
	return out
}

func values(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
