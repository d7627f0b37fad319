package documentdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// pgxPool is the subset of *pgxpool.Pool used by Postgres.
type pgxPool interface {
	querier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores documents as JSONB rows in the documents table.
// Transactions run at SERIALIZABLE isolation, so concurrent read-modify-write
// cycles on the same documents fail with codes.Aborted instead of losing updates.
type Postgres struct {
	pool pgxPool
}

var _ Client = (*Postgres)(nil)

// NewPostgres creates a Postgres client over pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return newPostgresWithPool(pool)
}

func newPostgresWithPool(pool pgxPool) *Postgres {
	return &Postgres{pool: pool}
}

const (
	selectDocumentSQL = `SELECT id, data, created_at, updated_at, version
		FROM documents WHERE collection = $1 AND id = $2`

	upsertDocumentSQL = `INSERT INTO documents (collection, id, data, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at, version = documents.version + 1`

	mergeDocumentSQL = `INSERT INTO documents (collection, id, data, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at, version = documents.version + 1`

	deleteDocumentSQL = `DELETE FROM documents WHERE collection = $1 AND id = $2`

	cursorExistsSQL = `SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`
)

// Get returns one document, or codes.NotFound.
func (p *Postgres) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	return getDocument(ctx, p.pool, collection, id)
}

// Commit applies writes in one database transaction.
func (p *Postgres) Commit(ctx context.Context, writes []Write) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return toStatus(err)
	}
	defer tx.Rollback(ctx)

	if err := applyWrites(ctx, tx, writes); err != nil {
		return err
	}

	return toStatus(tx.Commit(ctx))
}

// Query returns matching documents.
func (p *Postgres) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	return queryDocuments(ctx, p.pool, q)
}

// Count returns the number of documents matching the filters of q.
func (p *Postgres) Count(ctx context.Context, q Query) (int64, error) {
	sql, args, err := buildCount(q)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := p.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, toStatus(err)
	}
	return n, nil
}

// RunTransaction runs fn in a SERIALIZABLE transaction. Staged writes are
// executed after fn returns, immediately before commit.
func (p *Postgres) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return toStatus(err)
	}
	defer pgTx.Rollback(ctx)

	tx := &postgresTx{tx: pgTx}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := applyWrites(ctx, pgTx, tx.writes); err != nil {
		return err
	}

	return toStatus(pgTx.Commit(ctx))
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return toStatus(p.pool.Ping(ctx))
}

type postgresTx struct {
	tx     pgx.Tx
	writes []Write
}

func (t *postgresTx) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	return getDocument(ctx, t.tx, collection, id)
}

func (t *postgresTx) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	return queryDocuments(ctx, t.tx, q)
}

func (t *postgresTx) Write(w Write) error {
	if w.Collection == "" || w.ID == "" {
		return status.Error(codes.InvalidArgument, "write requires collection and id")
	}
	t.writes = append(t.writes, w)
	return nil
}

func getDocument(ctx context.Context, q querier, collection, id string) (*Snapshot, error) {
	s := &Snapshot{Collection: collection}
	err := q.QueryRow(ctx, selectDocumentSQL, collection, id).
		Scan(&s.ID, &s.Data, &s.CreateTime, &s.UpdateTime, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, status.Errorf(codes.NotFound, "document %s/%s not found", collection, id)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return s, nil
}

func queryDocuments(ctx context.Context, q querier, query Query) ([]*Snapshot, error) {
	if query.StartAfter != "" {
		var exists bool
		if err := q.QueryRow(ctx, cursorExistsSQL, query.Collection, query.StartAfter).Scan(&exists); err != nil {
			return nil, toStatus(err)
		}
		if !exists {
			return nil, status.Errorf(codes.InvalidArgument, "cursor document %s not found", query.StartAfter)
		}
	}

	sql, args, err := buildSelect(query)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, toStatus(err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		s := &Snapshot{Collection: query.Collection}
		if err := rows.Scan(&s.ID, &s.Data, &s.CreateTime, &s.UpdateTime, &s.Version); err != nil {
			return nil, toStatus(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func applyWrites(ctx context.Context, q querier, writes []Write) error {
	for _, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return status.Error(codes.InvalidArgument, "write requires collection and id")
		}

		var err error
		switch {
		case w.Delete:
			_, err = q.Exec(ctx, deleteDocumentSQL, w.Collection, w.ID)
		default:
			if _, derr := decodeObject(w.Data); derr != nil {
				return derr
			}
			createTime := w.CreateTime
			if createTime.IsZero() {
				createTime = w.UpdateTime
			}
			sql := upsertDocumentSQL
			if w.Merge {
				sql = mergeDocumentSQL
			}
			_, err = q.Exec(ctx, sql, w.Collection, w.ID, w.Data, createTime, w.UpdateTime)
		}
		if err != nil {
			return toStatus(err)
		}
	}
	return nil
}
