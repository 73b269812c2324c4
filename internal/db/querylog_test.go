package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func newCaptureLogger(h *captureHandler) *slog.Logger { return slog.New(h) }

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := make(map[string]slog.Value)
	m["msg"] = slog.StringValue(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(name string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = nil
}

func openLogged(t *testing.T, h *captureHandler) *sql.DB {
	t.Helper()
	db := sql.OpenDB(NewQueryLogger(":memory:", slog.New(h)))
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(`CREATE TABLE beacons (address TEXT PRIMARY KEY, endpoint_name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	h.reset()
	return db
}

func TestQueryLogger_ExecWithArgs(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	if _, err := db.Exec(`INSERT INTO beacons (address, endpoint_name) VALUES (?, ?)`, "AA:AA:AA:AA:AA:01", "tank"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for Exec")
	}
	got := recs[len(recs)-1]
	if got["op"].String() != "exec" {
		t.Errorf("op: got %q, want exec", got["op"].String())
	}
	if got["sql"].String() != `INSERT INTO beacons (address, endpoint_name) VALUES (?, ?)` {
		t.Errorf("sql: got %q", got["sql"].String())
	}
	if _, ok := got["args"]; !ok {
		t.Error("expected args attribute in log")
	}
	if _, ok := got["duration_ms"]; !ok {
		t.Error("expected duration_ms attribute in log")
	}
}

func TestQueryLogger_Query(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM beacons`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}

	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for QueryRow")
	}
	if got := recs[len(recs)-1]["op"].String(); got != "query" {
		t.Errorf("op: got %q, want query", got)
	}
}

func TestQueryLogger_Transaction(t *testing.T) {
	handler := &captureHandler{}
	db := openLogged(t, handler)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Exec(`INSERT INTO beacons (address) VALUES (?)`, "AA:AA:AA:AA:AA:02"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(handler.recordsFor(t, "sql")) == 0 {
		t.Fatal("expected sql log record inside transaction")
	}
}

func TestQueryLogger_DriverOpenUnsupported(t *testing.T) {
	c := NewQueryLogger(":memory:", nil)
	if _, err := c.Driver().Open(":memory:"); err == nil {
		t.Fatal("Driver().Open error = nil, want non-nil")
	}
}
