package documentdb

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var documentColumns = []string{"id", "data", "created_at", "updated_at", "version"}

func TestPostgresGetFound(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery(`SELECT id, data, created_at, updated_at, version\s+FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("balances", "rose").
		WillReturnRows(pgxmock.NewRows(documentColumns).AddRow("rose", []byte(`{"quantity":4}`), t0, t0, int64(3)))

	store := newPostgresWithPool(mockPool)
	snap, err := store.Get(context.Background(), "balances", "rose")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ID != "rose" || snap.Version != 3 || string(snap.Data) != `{"quantity":4}` {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Collection != "balances" {
		t.Fatalf("expected collection balances, got %s", snap.Collection)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresGetNotFound(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery(`FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("balances", "rose").
		WillReturnError(pgx.ErrNoRows)

	store := newPostgresWithPool(mockPool)
	_, err := store.Get(context.Background(), "balances", "rose")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresCommitWrites(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{})
	mockPool.ExpectExec(`INSERT INTO documents .* SET data = documents.data \|\| EXCLUDED.data`).
		WithArgs("balances", "rose", []byte(`{"quantity":1}`), t0, t0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(`DELETE FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("ledger_entries", "e1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mockPool.ExpectCommit()

	store := newPostgresWithPool(mockPool)
	err := store.Commit(context.Background(), []Write{
		{Collection: "balances", ID: "rose", Data: []byte(`{"quantity":1}`), Merge: true, UpdateTime: t0},
		{Collection: "ledger_entries", ID: "e1", Delete: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresCommitRejectsNonObject(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{})
	mockPool.ExpectRollback()

	store := newPostgresWithPool(mockPool)
	err := store.Commit(context.Background(), []Write{
		{Collection: "balances", ID: "rose", Data: []byte(`[1,2]`), UpdateTime: t0},
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresRunTransactionSerializationFailure(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectQuery(`FROM documents WHERE collection = \$1 AND id = \$2`).
		WithArgs("balances", "rose").
		WillReturnRows(pgxmock.NewRows(documentColumns).AddRow("rose", []byte(`{"quantity":4}`), t0, t0, int64(1)))
	mockPool.ExpectExec(`INSERT INTO documents`).
		WithArgs("balances", "rose", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mockPool.ExpectRollback()

	store := newPostgresWithPool(mockPool)
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get(ctx, "balances", "rose"); err != nil {
			return err
		}
		return tx.Write(Write{Collection: "balances", ID: "rose", Data: []byte(`{"quantity":5}`), UpdateTime: t0})
	})
	if status.Code(err) != codes.Aborted {
		t.Fatalf("expected Aborted, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected driver error to stay reachable, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresRunTransactionCallbackError(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	mockPool.ExpectRollback()

	boom := errors.New("boom")
	store := newPostgresWithPool(mockPool)
	err := store.RunTransaction(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.Write(Write{Collection: "c", ID: "x", Data: []byte(`{}`)}); err != nil {
			t.Fatalf("stage write: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresBeginUnavailable(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable}).
		WillReturnError(&pgconn.PgError{Code: "57P03", Message: "the database system is starting up"})

	store := newPostgresWithPool(mockPool)
	err := store.RunTransaction(context.Background(), func(context.Context, Tx) error { return nil })
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestPostgresQueryWithCursor(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ledger_entries", "e2").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mockPool.ExpectQuery(`WITH c AS .* CROSS JOIN c WHERE d.collection = \$1`).
		WithArgs("ledger_entries", []byte(`"rose"`), "e2", 2).
		WillReturnRows(pgxmock.NewRows(documentColumns).
			AddRow("e1", []byte(`{"subjectId":"rose"}`), t0, t0, int64(1)))

	store := newPostgresWithPool(mockPool)
	snaps, err := store.Query(context.Background(), Query{
		Collection: "ledger_entries",
		Filters:    []Filter{{Field: "subjectId", Op: OpEqual, Value: "rose"}},
		OrderBy:    []Order{{Field: FieldCreateTime, Direction: Desc}},
		StartAfter: "e2",
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != "e1" || snaps[0].Collection != "ledger_entries" {
		t.Fatalf("unexpected result: %+v", snaps)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresQueryMissingCursor(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ledger_entries", "gone").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	store := newPostgresWithPool(mockPool)
	_, err := store.Query(context.Background(), Query{Collection: "ledger_entries", StartAfter: "gone"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresCount(t *testing.T) {
	mockPool := newMockPool(t)
	mockPool.ExpectQuery(`SELECT count\(\*\) FROM documents d WHERE d.collection = \$1`).
		WithArgs("balances").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	store := newPostgresWithPool(mockPool)
	n, err := store.Count(context.Background(), Query{Collection: "balances"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}

	assertExpectations(t, mockPool)
}

func TestPostgresPing(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(mockPool.Close)
	mockPool.ExpectPing().WillReturnError(context.DeadlineExceeded)

	store := newPostgresWithPool(mockPool)
	if err := store.Ping(context.Background()); status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	assertExpectations(t, mockPool)
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	pool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgxmock pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func assertExpectations(t *testing.T, pool pgxmock.PgxPoolIface) {
	t.Helper()
	if err := pool.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations were not met: %v", err)
	}
}
