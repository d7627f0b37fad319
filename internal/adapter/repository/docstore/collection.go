package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iho/stockledger/internal/domain"
	"github.com/iho/stockledger/internal/infrastructure/documentdb"
	"github.com/iho/stockledger/internal/usecase"
)

// Document is implemented by every type stored through a Collection.
type Document interface {
	DocumentID() string
	SetDocumentID(id string)
	// Touch sets the creation time once and the update time always.
	Touch(now time.Time)
}

// Doc constrains P to be a pointer to T implementing Document.
type Doc[T any] interface {
	*T
	Document
}

// Query selects documents within one collection.
type Query struct {
	Filters []documentdb.Filter
	OrderBy []documentdb.Order
	// Limit caps the result; zero or anything above
	// domain.MaxQueryResults means domain.MaxQueryResults.
	Limit int
}

// Where returns a filter on field.
func Where(field string, op documentdb.Op, value any) documentdb.Filter {
	return documentdb.Filter{Field: field, Op: op, Value: value}
}

// Newest orders by field, descending.
func Newest(field string) documentdb.Order {
	return documentdb.Order{Field: field, Direction: documentdb.Desc}
}

// BatchError describes one failed item of a batch.
type BatchError struct {
	DocumentID string
	Message    string
	Err        error
}

// BatchResult reports the outcome of a batch write. Batches commit
// atomically, so either every item succeeded or every item failed.
type BatchResult struct {
	SuccessCount  int
	FailureCount  int
	SuccessfulIDs []string
	Errors        []BatchError
}

// HasFailures reports whether any item failed.
func (r *BatchResult) HasFailures() bool {
	return r.FailureCount > 0
}

// Collection is a typed gateway to one collection of the document store.
// Non-transactional calls run under the Retrier; transactional calls take
// the reader or writer of a running transaction.
type Collection[T any, P Doc[T]] struct {
	name    string
	client  documentdb.Client
	retrier *Retrier
	ids     usecase.IDGenerator
	pool    *AsyncPool
	now     func() time.Time
}

// NewCollection creates a gateway for the named collection. pool may be
// nil, in which case async calls fail with worker.ErrPoolNotStarted.
func NewCollection[T any, P Doc[T]](name string, client documentdb.Client, retrier *Retrier, ids usecase.IDGenerator, pool *AsyncPool) (*Collection[T, P], error) {
	if err := domain.ValidateCollectionName(name); err != nil {
		return nil, err
	}
	return &Collection[T, P]{
		name:    name,
		client:  client,
		retrier: retrier,
		ids:     ids,
		pool:    pool,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name returns the collection name.
func (c *Collection[T, P]) Name() string {
	return c.name
}

// Get returns the document with id. A missing document is reported as
// domain.ErrDocumentNotFound.
func (c *Collection[T, P]) Get(ctx context.Context, id string) (P, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}

	snap, err := Execute(ctx, c.retrier, "get", c.name, func(ctx context.Context) (*documentdb.Snapshot, error) {
		return c.client.Get(ctx, c.name, id)
	})
	if err != nil {
		return nil, err
	}
	return c.decode(snap)
}

// Exists reports whether a document with id exists.
func (c *Collection[T, P]) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Save merge-writes doc, assigning an id if it has none, and returns it.
func (c *Collection[T, P]) Save(ctx context.Context, doc P) (P, error) {
	w, err := c.prepare(doc)
	if err != nil {
		return nil, err
	}

	err = c.retrier.Do(ctx, "save", c.name, func(ctx context.Context) error {
		return c.client.Commit(ctx, []documentdb.Write{w})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes the document with id. Deleting a missing document succeeds.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}

	return c.retrier.Do(ctx, "delete", c.name, func(ctx context.Context) error {
		return c.client.Commit(ctx, []documentdb.Write{c.deleteWrite(id)})
	})
}

// Query returns the documents matching q.
func (c *Collection[T, P]) Query(ctx context.Context, q Query) ([]P, error) {
	raw := c.rawQuery(q)
	snaps, err := Execute(ctx, c.retrier, "query", c.name, func(ctx context.Context) ([]*documentdb.Snapshot, error) {
		return c.client.Query(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAll(snaps)
}

// QueryPage returns one page of the documents matching q. q.Limit is
// ignored in favour of the page size. Offset pages carry the total
// count; cursor pages report it as unknown. Any page with a successor
// sets NextCursor.
func (c *Collection[T, P]) QueryPage(ctx context.Context, q Query, page domain.PageRequest) (*domain.PageResult[P], error) {
	page, err := page.Normalize()
	if err != nil {
		return nil, err
	}

	raw := c.rawQuery(q)
	raw.Limit = page.Size

	if page.IsCursor() {
		if err := domain.ValidateDocumentID(page.Cursor); err != nil {
			return nil, fmt.Errorf("%w: cursor: %w", domain.ErrInvalidPage, err)
		}
		raw.StartAfter = page.Cursor

		docs, err := c.runQuery(ctx, raw)
		if err != nil {
			return nil, err
		}
		var next string
		if len(docs) == page.Size {
			next = docs[len(docs)-1].DocumentID()
		}
		return domain.NewCursorPage(docs, page, next), nil
	}

	raw.Offset = page.Offset()
	docs, err := c.runQuery(ctx, raw)
	if err != nil {
		return nil, err
	}
	total, err := Execute(ctx, c.retrier, "count", c.name, func(ctx context.Context) (int64, error) {
		return c.client.Count(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	result := domain.NewOffsetPage(docs, page, total)
	if result.HasNext {
		// Lets callers continue by cursor from an offset page.
		result.NextCursor = docs[len(docs)-1].DocumentID()
	}
	return result, nil
}

// BatchSave writes all docs in one atomic commit. Oversized batches and
// invalid documents are rejected before anything is written.
func (c *Collection[T, P]) BatchSave(ctx context.Context, docs []P) (*BatchResult, error) {
	if err := domain.ValidateBatchSize(len(docs)); err != nil {
		return nil, err
	}

	writes := make([]documentdb.Write, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		w, err := c.prepare(doc)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		writes[i] = w
		ids[i] = w.ID
	}

	return c.commitBatch(ctx, "batch_save", ids, writes)
}

// BatchDelete removes all ids in one atomic commit.
func (c *Collection[T, P]) BatchDelete(ctx context.Context, ids []string) (*BatchResult, error) {
	if err := domain.ValidateBatchSize(len(ids)); err != nil {
		return nil, err
	}

	writes := make([]documentdb.Write, len(ids))
	for i, id := range ids {
		if err := domain.ValidateDocumentID(id); err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		writes[i] = c.deleteWrite(id)
	}

	return c.commitBatch(ctx, "batch_delete", ids, writes)
}

// SaveAsync queues Save on the async pool. The channel receives the
// result once. The write runs under the pool's context, not ctx; ctx is
// only checked at submission.
func (c *Collection[T, P]) SaveAsync(ctx context.Context, doc P) <-chan error {
	if err := ctx.Err(); err != nil {
		return failed(interrupted("save_async", c.name, 0, err))
	}
	id := ""
	if (*T)(doc) != nil {
		id = doc.DocumentID()
	}
	return submit(c.pool, "save_async", c.name, id, func(ctx context.Context) error {
		_, err := c.Save(ctx, doc)
		return err
	})
}

// DeleteAsync queues Delete on the async pool, like SaveAsync.
func (c *Collection[T, P]) DeleteAsync(ctx context.Context, id string) <-chan error {
	if err := ctx.Err(); err != nil {
		return failed(interrupted("delete_async", c.name, 0, err))
	}
	return submit(c.pool, "delete_async", c.name, id, func(ctx context.Context) error {
		return c.Delete(ctx, id)
	})
}

// GetIn reads a document inside a transaction.
func (c *Collection[T, P]) GetIn(ctx context.Context, r usecase.TxReader, id string) (P, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}

	snap, err := rawReader(r).Get(ctx, c.name, id)
	if err != nil {
		return nil, normalizeInTx("get", c.name, err)
	}
	return c.decode(snap)
}

// QueryIn runs a query inside a transaction.
func (c *Collection[T, P]) QueryIn(ctx context.Context, r usecase.TxReader, q Query) ([]P, error) {
	snaps, err := rawReader(r).Query(ctx, c.rawQuery(q))
	if err != nil {
		return nil, normalizeInTx("query", c.name, err)
	}
	return c.decodeAll(snaps)
}

// SaveIn stages a merge-write of doc, assigning an id if it has none.
func (c *Collection[T, P]) SaveIn(w usecase.TxWriter, doc P) (P, error) {
	write, err := c.prepare(doc)
	if err != nil {
		return nil, err
	}
	stage(w, write)
	return doc, nil
}

// DeleteIn stages a delete.
func (c *Collection[T, P]) DeleteIn(w usecase.TxWriter, id string) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}
	stage(w, c.deleteWrite(id))
	return nil
}

func (c *Collection[T, P]) prepare(doc P) (documentdb.Write, error) {
	if (*T)(doc) == nil {
		return documentdb.Write{}, fmt.Errorf("%w: nil document", domain.ErrInvalidDocument)
	}
	if doc.DocumentID() == "" {
		doc.SetDocumentID(c.ids.Generate())
	}
	id := doc.DocumentID()
	if err := domain.ValidateDocumentID(id); err != nil {
		return documentdb.Write{}, err
	}

	now := c.now()
	doc.Touch(now)

	data, err := json.Marshal(doc)
	if err != nil {
		return documentdb.Write{}, fmt.Errorf("%w: encode %s/%s: %v", domain.ErrInvalidDocument, c.name, id, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return documentdb.Write{}, fmt.Errorf("%w: %s/%s does not encode to an object", domain.ErrInvalidDocument, c.name, id)
	}
	if err := domain.ValidateDocumentSize(fields); err != nil {
		return documentdb.Write{}, err
	}

	return documentdb.Write{
		Collection: c.name,
		ID:         id,
		Data:       data,
		Merge:      true,
		CreateTime: now,
		UpdateTime: now,
	}, nil
}

func (c *Collection[T, P]) deleteWrite(id string) documentdb.Write {
	return documentdb.Write{Collection: c.name, ID: id, Delete: true}
}

func (c *Collection[T, P]) rawQuery(q Query) documentdb.Query {
	limit := q.Limit
	if limit <= 0 || limit > domain.MaxQueryResults {
		limit = domain.MaxQueryResults
	}
	return documentdb.Query{
		Collection: c.name,
		Filters:    q.Filters,
		OrderBy:    q.OrderBy,
		Limit:      limit,
	}
}

func (c *Collection[T, P]) runQuery(ctx context.Context, raw documentdb.Query) ([]P, error) {
	snaps, err := Execute(ctx, c.retrier, "query", c.name, func(ctx context.Context) ([]*documentdb.Snapshot, error) {
		return c.client.Query(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	return c.decodeAll(snaps)
}

func (c *Collection[T, P]) commitBatch(ctx context.Context, op string, ids []string, writes []documentdb.Write) (*BatchResult, error) {
	result := &BatchResult{}
	if len(writes) == 0 {
		return result, nil
	}

	err := c.retrier.Do(ctx, op, c.name, func(ctx context.Context) error {
		return c.client.Commit(ctx, writes)
	})
	if err != nil {
		result.FailureCount = len(ids)
		for _, id := range ids {
			result.Errors = append(result.Errors, BatchError{DocumentID: id, Message: err.Error(), Err: err})
		}
		return result, err
	}

	result.SuccessCount = len(ids)
	result.SuccessfulIDs = append(result.SuccessfulIDs, ids...)
	return result, nil
}

func (c *Collection[T, P]) decode(snap *documentdb.Snapshot) (P, error) {
	doc := P(new(T))
	if err := json.Unmarshal(snap.Data, doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s/%s: %v", domain.ErrInvalidDocument, c.name, snap.ID, err)
	}
	doc.SetDocumentID(snap.ID)
	return doc, nil
}

func (c *Collection[T, P]) decodeAll(snaps []*documentdb.Snapshot) ([]P, error) {
	docs := make([]P, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func failed(err error) <-chan error {
	done := make(chan error, 1)
	done <- err
	close(done)
	return done
}
