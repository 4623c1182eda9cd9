package ledger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	xerrors "VoiceDot/internal/errors"
)

var rowColumns = []string{"id", "user_id", "voice_command", "parsed_intent", "recipient_address", "amount",
	"token_symbol", "transaction_hash", "status", "created_at", "confirmed_at", "updated_at"}

func rowValues(id string, status Status, hash any, confirmedAt any) []driver.Value {
	return []driver.Value{id, "user-1", "pay 10 DOT", `{"item":{}}`, "5Grw", "10", "DOT", hash, string(status), int64(1), confirmedAt, int64(2)}
}

func newMockStore(t *testing.T, ops []mockOperation) (*SQLStore, *queueDriver) {
	t.Helper()
	db, drv := newMockDB(t, ops)
	clock := func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return NewSQLStore(sqlx.NewDb(db, "mysql"), clock), drv
}

func TestSQLStoreCreateBatchUsesTransaction(t *testing.T) {
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(insertSQL(), mockResult{rowsAffected: 1}),
		execOp(insertSQL(), mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	recs := []*Record{newRecord("a", "user-1"), newRecord("b", "user-1")}
	if err := store.CreateBatch(context.Background(), recs); err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	if recs[0].CreatedAt != 1_700_000_000_000 || recs[1].Status != StatusPending {
		t.Fatalf("expected defaults to be applied: %+v", recs[1])
	}
}

func TestSQLStoreCreateBatchRollsBackOnError(t *testing.T) {
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(insertSQL(), mockResult{rowsAffected: 1}),
		{typ: opExec, query: insertSQL(), err: fmt.Errorf("disk full")},
		rollbackOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	err := store.CreateBatch(context.Background(), []*Record{newRecord("a", "u"), newRecord("b", "u")})
	if !xerrors.Is(err, xerrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store, drv := newMockStore(t, []mockOperation{
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE id = ?`, mockRowsData{columns: rowColumns}),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	if _, err := store.Get(context.Background(), "missing"); !xerrors.Is(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStoreListBuildsFilteredQuery(t *testing.T) {
	rows := mockRowsData{columns: rowColumns, values: [][]driver.Value{
		rowValues("b", StatusConfirmed, nil, int64(5)),
		rowValues("a", StatusConfirmed, nil, int64(4)),
	}}
	store, drv := newMockStore(t, []mockOperation{
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE user_id = ? AND status IN (?)
    ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, rows),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	list, err := store.List(context.Background(), WithUser("user-1"), WithStatuses(StatusConfirmed, "bogus"), WithLimit(500))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "b" || list[0].ConfirmedAt == nil || *list[0].ConfirmedAt != 5 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if string(list[0].ParsedIntent) != `{"item":{}}` {
		t.Fatalf("unexpected parsed intent %s", list[0].ParsedIntent)
	}
}

func TestSQLStoreTransitionToConfirmed(t *testing.T) {
	rows := mockRowsData{columns: rowColumns, values: [][]driver.Value{
		rowValues("b", StatusConfirmed, nil, int64(1_700_000_000_000)),
		rowValues("a", StatusConfirmed, nil, int64(1_700_000_000_000)),
	}}
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(`UPDATE transactions SET status = ?, updated_at = ?, confirmed_at = ? WHERE status = ? AND id IN (?, ?)`, mockResult{rowsAffected: 2}),
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE id IN (?, ?)`, rows),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	out, err := store.TransitionToConfirmed(context.Background(), []string{"a", "b", "a"})
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected records in request order, got %v", ids(out))
	}
}

func TestSQLStoreTransitionConflictRollsBack(t *testing.T) {
	rows := mockRowsData{columns: rowColumns, values: [][]driver.Value{
		rowValues("a", StatusPending, nil, nil),
		rowValues("b", StatusSubmitted, "0xabc", int64(3)),
	}}
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(`UPDATE transactions SET status = ?, updated_at = ?, confirmed_at = ? WHERE status = ? AND id IN (?, ?)`, mockResult{rowsAffected: 1}),
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE id IN (?, ?)`, rows),
		rollbackOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	_, err := store.TransitionToConfirmed(context.Background(), []string{"a", "b"})
	if !xerrors.Is(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "transaction b is submitted") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestSQLStoreTransitionMissingRecord(t *testing.T) {
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(`UPDATE transactions SET status = ?, updated_at = ?, transaction_hash = ? WHERE status = ? AND id IN (?)`, mockResult{rowsAffected: 0}),
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE id IN (?)`, mockRowsData{columns: rowColumns}),
		rollbackOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	if _, err := store.TransitionToSubmitted(context.Background(), "ghost", "0x1"); !xerrors.Is(err, xerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLStoreRejectsIllegalTransitionBeforeQuerying(t *testing.T) {
	store, drv := newMockStore(t, nil)
	defer drv.assertConsumed(t)
	defer store.Close()

	_, err := store.transition(context.Background(), []string{"a"}, StatusFailed, StatusPending, 1, "")
	if !xerrors.Is(err, xerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSQLStoreUpdateConstraints(t *testing.T) {
	rows := mockRowsData{columns: rowColumns, values: [][]driver.Value{
		{"a", "user-1", "cmd", `{"constraints":{"min_receive":"9.5"}}`, "5Grw", "10", "DOT", nil, "confirmed", int64(1), int64(2), int64(3)},
	}}
	store, drv := newMockStore(t, []mockOperation{
		beginOp(),
		execOp(`UPDATE transactions SET status = ?, updated_at = ?, parsed_intent = ? WHERE status = ? AND id IN (?)`, mockResult{rowsAffected: 1}),
		queryOp(`SELECT `+recordColumns+` FROM transactions WHERE id IN (?)`, rows),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer store.Close()

	rec, err := store.UpdateConstraints(context.Background(), "a", json.RawMessage(`{"constraints":{"min_receive":"9.5"}}`))
	if err != nil {
		t.Fatalf("update constraints failed: %v", err)
	}
	if !strings.Contains(string(rec.ParsedIntent), "9.5") {
		t.Fatalf("unexpected parsed intent: %s", rec.ParsedIntent)
	}
}

func insertSQL() string {
	return `INSERT INTO transactions (` + recordColumns + `)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-ledger-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", op.typ, expected)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" {
		want := normalizeSQL(op.query)
		got := normalizeSQL(query)
		if want != got {
			return nil, fmt.Errorf("unexpected query. want %q got %q", want, got)
		}
	}
	return op, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
