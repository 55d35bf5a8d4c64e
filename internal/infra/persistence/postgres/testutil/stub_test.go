package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
)

func TestStubRecordsStatements(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "INSERT INTO customers (id, email)\n\tVALUES ($1, $2)", "c1", "alice@example.com"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if _, err := db.ExecContext(ctx, "SAVEPOINT sp_1"); err != nil {
		t.Fatalf("exec savepoint: %v", err)
	}
	texts := conn.ExecTexts()
	if len(texts) != 2 || texts[0] != "INSERT INTO customers (id, email) VALUES ($1, $2)" || texts[1] != "SAVEPOINT sp_1" {
		t.Fatalf("unexpected exec texts %q", texts)
	}
	if args := conn.Execs[0].Args; len(args) != 2 || args[1] != "alice@example.com" {
		t.Fatalf("unexpected exec args %v", args)
	}
}

func TestStubScriptedQueries(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	var n int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM products").Scan(&n); err == nil {
		t.Fatalf("expected no rows without a responder")
	}

	conn.Respond = func(query string, args []any) ([]string, [][]driver.Value, error) {
		if len(args) == 1 && args[0] == "missing" {
			return nil, nil, nil
		}
		return []string{"id", "stock"}, [][]driver.Value{{"p1", int64(3)}, {"p2", int64(12)}}, nil
	}
	rows, err := db.QueryContext(ctx, "SELECT id, stock FROM products WHERE stock < $1", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if len(ids) != 2 || ids[0] != "p1" {
		t.Fatalf("unexpected rows %v", ids)
	}

	if err := db.QueryRowContext(ctx, "SELECT id FROM products WHERE id = $1", "missing").Scan(&n); err == nil {
		t.Fatalf("expected empty result for missing id")
	}
	if len(conn.Queries) != 3 || conn.Queries[1].Args[0] != int64(10) {
		t.Fatalf("unexpected recorded queries %+v", conn.Queries)
	}

	conn.Respond = func(string, []any) ([]string, [][]driver.Value, error) {
		return nil, nil, errors.New("relation does not exist")
	}
	if _, err := db.QueryContext(ctx, "SELECT 1"); err == nil {
		t.Fatalf("expected responder error")
	}
}

func TestStubFailures(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	errUnique := errors.New("unique violation")
	conn.ExecErr = func(query string) error {
		if query == "INSERT dup" {
			return errUnique
		}
		return nil
	}
	if _, err := db.ExecContext(ctx, "INSERT dup"); !errors.Is(err, errUnique) {
		t.Fatalf("expected scripted exec error, got %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT ok"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(conn.ExecTexts()) != 2 {
		t.Fatalf("failed execs must still be recorded")
	}

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	conn.FailPing = true
	if err := db.PingContext(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailPing = false

	conn.FailBegin = true
	if _, err := db.BeginTx(ctx, nil); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
