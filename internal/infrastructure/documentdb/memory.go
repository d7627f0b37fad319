package documentdb

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Memory is an in-process Client. Every document carries a version that
// changes on each write; transactions validate the versions they read at
// commit time and fail with codes.Aborted if any of them moved.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*record
	version     int64
}

type record struct {
	snap   Snapshot
	fields map[string]any
}

var _ Client = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]*record)}
}

// Get returns a copy of the document, or codes.NotFound.
func (m *Memory) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.collections[collection][id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "document %s/%s not found", collection, id)
	}
	return rec.copySnapshot(), nil
}

// Commit applies writes atomically.
func (m *Memory) Commit(ctx context.Context, writes []Write) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.applyLocked(writes)
}

// Query returns matching documents.
func (m *Memory) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, err := m.queryLocked(q, true)
	if err != nil {
		return nil, err
	}

	out := make([]*Snapshot, len(recs))
	for i, rec := range recs {
		out[i] = rec.copySnapshot()
	}
	return out, nil
}

// Count returns the number of documents matching the filters of q.
func (m *Memory) Count(ctx context.Context, q Query) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, err := m.queryLocked(q, false)
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

// Ping always succeeds unless ctx is done.
func (m *Memory) Ping(ctx context.Context) error {
	return ctxErr(ctx)
}

// RunTransaction runs fn with optimistic concurrency control.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}

	tx := &memoryTx{store: m, reads: make(map[docKey]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, seen := range tx.reads {
		var current int64
		if rec, ok := m.collections[key.collection][key.id]; ok {
			current = rec.snap.Version
		}
		if current != seen {
			return status.Errorf(codes.Aborted, "transaction conflict on %s/%s", key.collection, key.id)
		}
	}

	return m.applyLocked(tx.writes)
}

func (m *Memory) applyLocked(writes []Write) error {
	// Validate everything first so a bad write leaves the store untouched.
	decoded := make([]map[string]any, len(writes))
	for i, w := range writes {
		if w.Collection == "" || w.ID == "" {
			return status.Error(codes.InvalidArgument, "write requires collection and id")
		}
		if w.Delete {
			continue
		}
		fields, err := decodeObject(w.Data)
		if err != nil {
			return err
		}
		decoded[i] = fields
	}

	for i, w := range writes {
		coll := m.collections[w.Collection]
		if coll == nil {
			coll = make(map[string]*record)
			m.collections[w.Collection] = coll
		}

		if w.Delete {
			delete(coll, w.ID)
			continue
		}

		m.version++
		fields := decoded[i]
		existing, ok := coll[w.ID]

		createTime := w.CreateTime
		if createTime.IsZero() {
			createTime = w.UpdateTime
		}
		if ok {
			createTime = existing.snap.CreateTime
			if w.Merge {
				merged := make(map[string]any, len(existing.fields)+len(fields))
				for k, v := range existing.fields {
					merged[k] = v
				}
				for k, v := range fields {
					merged[k] = v
				}
				fields = merged
			}
		}

		data, err := json.Marshal(fields)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "encode document: %v", err)
		}

		coll[w.ID] = &record{
			snap: Snapshot{
				Collection: w.Collection,
				ID:         w.ID,
				Data:       data,
				CreateTime: createTime,
				UpdateTime: w.UpdateTime,
				Version:    m.version,
			},
			fields: fields,
		}
	}

	return nil
}

func (m *Memory) queryLocked(q Query, page bool) ([]*record, error) {
	if q.Collection == "" {
		return nil, status.Error(codes.InvalidArgument, "query requires a collection")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must not be negative")
	}

	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Field, f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	coll := m.collections[q.Collection]
	matched := make([]*record, 0, len(coll))
	for _, rec := range coll {
		ok, err := rec.matches(filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return compareRecords(matched[i], matched[j], q.OrderBy) < 0
	})

	if !page {
		return matched, nil
	}

	if q.StartAfter != "" {
		cursor, ok := coll[q.StartAfter]
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "cursor document %s not found", q.StartAfter)
		}
		after := matched[:0:0]
		for _, rec := range matched {
			if compareRecords(rec, cursor, q.OrderBy) > 0 {
				after = append(after, rec)
			}
		}
		matched = after
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r *record) copySnapshot() *Snapshot {
	s := r.snap
	s.Data = append([]byte(nil), r.snap.Data...)
	return &s
}

func (r *record) field(name string) any {
	switch name {
	case FieldID:
		return r.snap.ID
	case FieldCreateTime:
		return r.snap.CreateTime
	case FieldUpdateTime:
		return r.snap.UpdateTime
	default:
		return r.fields[name]
	}
}

func (r *record) matches(filters []Filter) (bool, error) {
	for _, f := range filters {
		cmp, cmpOK := compareValues(r.field(f.Field), f.Value)
		var ok bool
		switch f.Op {
		case OpEqual:
			ok = cmpOK && cmp == 0
		case OpNotEqual:
			ok = !cmpOK || cmp != 0
		case OpLess:
			ok = cmpOK && cmp < 0
		case OpLessEqual:
			ok = cmpOK && cmp <= 0
		case OpGreater:
			ok = cmpOK && cmp > 0
		case OpGreaterEqual:
			ok = cmpOK && cmp >= 0
		default:
			return false, status.Errorf(codes.InvalidArgument, "unsupported operator %q", f.Op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// compareRecords orders by the given keys, then by id. The id tie-break
// follows the direction of the last key.
func compareRecords(a, b *record, orders []Order) int {
	idDir := Asc
	for _, o := range orders {
		c := orderValues(a.field(o.Field), b.field(o.Field))
		if o.Direction == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		idDir = o.Direction
	}

	c := orderValues(a.snap.ID, b.snap.ID)
	if idDir == Desc {
		c = -c
	}
	return c
}

type docKey struct {
	collection string
	id         string
}

type memoryTx struct {
	store  *Memory
	mu     sync.Mutex
	reads  map[docKey]int64
	writes []Write
}

func (t *memoryTx) Get(ctx context.Context, collection, id string) (*Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	rec, ok := t.store.collections[collection][id]
	var snap *Snapshot
	var version int64
	if ok {
		snap = rec.copySnapshot()
		version = rec.snap.Version
	}
	t.store.mu.RUnlock()

	t.recordRead(docKey{collection, id}, version)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "document %s/%s not found", collection, id)
	}
	return snap, nil
}

func (t *memoryTx) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	t.store.mu.RLock()
	recs, err := t.store.queryLocked(q, true)
	out := make([]*Snapshot, len(recs))
	for i, rec := range recs {
		out[i] = rec.copySnapshot()
	}
	t.store.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for _, s := range out {
		t.recordRead(docKey{q.Collection, s.ID}, s.Version)
	}
	return out, nil
}

func (t *memoryTx) Write(w Write) error {
	if w.Collection == "" || w.ID == "" {
		return status.Error(codes.InvalidArgument, "write requires collection and id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, w)
	return nil
}

func (t *memoryTx) recordRead(key docKey, version int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return status.FromContextError(err).Err()
	}
	return nil
}
