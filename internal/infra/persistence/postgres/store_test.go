package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"almazara/internal/infra/persistence/memory"
	"almazara/pkg/domain"
)

func TestNewStoreCreatesTableAndLoadsSnapshot(t *testing.T) {
	db, conn := newStubDB()
	seed := domain.Snapshot{
		Version: 4,
		Tanks:   []domain.Tank{{ID: 3, CapacityKg: 20000, CurrentKg: 95}},
		Movements: []domain.OilMovement{{
			ID:      "m1",
			Source:  domain.TankEndpoint(3),
			Target:  domain.NurseTankEndpoint(),
			Kg:      95,
			BatchID: "3/1/2026",
		}},
	}
	for _, bucket := range memory.Buckets {
		payload, err := memory.EncodeBucket(seed, bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		conn.upsert(bucket, payload)
	}

	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	snap := store.Snapshot()
	if snap.Version != 4 || len(snap.Tanks) != 1 || len(snap.Movements) != 1 {
		t.Fatalf("unexpected hydrated snapshot %+v", snap)
	}
	if snap.Movements[0].Target != domain.NurseTankEndpoint() {
		t.Fatalf("expected endpoint to round trip")
	}
	var sawDDL bool
	for _, stmt := range conn.execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE") {
			sawDDL = true
			break
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.execs)
	}
}

func TestRunInTransactionPersistsState(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateProducer(domain.Producer{ID: "P1", Name: "Cortijo"})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if len(conn.state) != len(memory.Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(memory.Buckets), len(conn.state))
	}
	var reloaded domain.Snapshot
	if err := memory.DecodeBucket(&reloaded, "producers", conn.state["producers"]); err != nil {
		t.Fatalf("decode producers: %v", err)
	}
	if len(reloaded.Producers) != 1 || reloaded.Producers[0].Name != "Cortijo" {
		t.Fatalf("unexpected persisted producers %+v", reloaded.Producers)
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, fmt.Errorf("open fail") })
	defer restore()
	if _, err := NewStore("ignored", nil); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStorePingError(t *testing.T) {
	db, conn := newStubDB()
	conn.failExec = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("ignored", nil); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestLoadSnapshotDecodeError(t *testing.T) {
	db, conn := newStubDB()
	conn.upsert("tanks", []byte("{not json"))
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("ignored", nil); err == nil || !strings.Contains(err.Error(), "decode tanks") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestRunInTransactionWrapsPersistFailure(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.failCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateTank(domain.Tank{ID: 1, CapacityKg: 100})
		return err
	})
	if !errors.Is(err, domain.ErrSnapshotPersist) {
		t.Fatalf("expected snapshot persist error, got %v", err)
	}
	if len(store.Snapshot().Tanks) != 1 {
		t.Fatalf("expected in-memory commit to survive")
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	db, conn := newStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	store, err := NewStore("ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	userErr := fmt.Errorf("user fail")
	if _, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return userErr }); !errors.Is(err, userErr) {
		t.Fatalf("expected user error to propagate, got %v", err)
	}
	if len(conn.state) != 0 {
		t.Fatalf("expected no persistence when user fn errors")
	}
	if store.DB() == nil {
		t.Fatalf("expected DB handle")
	}
}

// --- stub driver helpers ---

type stubDriver struct {
	conn *stubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

type stubConn struct {
	execs      []string
	state      map[string][]byte
	order      []string
	failExec   bool
	failCommit bool
}

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{state: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

func (c *stubConn) upsert(bucket string, payload []byte) {
	if _, ok := c.state[bucket]; !ok {
		c.order = append(c.order, bucket)
	}
	c.state[bucket] = append([]byte(nil), payload...)
}

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) Ping(context.Context) error {
	if c.failExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &stubTx{conn: c}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if c.failExec {
		return nil, fmt.Errorf("exec fail")
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected bucket and payload args")
		}
		bucket, _ := args[0].Value.(string)
		payload, _ := args[1].Value.([]byte)
		c.upsert(bucket, payload)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	values := make([][]driver.Value, 0, len(c.order))
	for _, bucket := range c.order {
		values = append(values, []driver.Value{bucket, c.state[bucket]})
	}
	return &stubRows{cols: []string{"bucket", "payload"}, rows: values}, nil
}

type stubTx struct {
	conn *stubConn
}

func (t *stubTx) Commit() error {
	if t.conn.failCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

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
