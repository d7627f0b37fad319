// Package documentdb provides the raw document store the ledger is built on:
// collections of JSON documents with atomic batch commits, optimistic
// transactions and simple filtered queries. Errors are reported as gRPC
// status errors.
package documentdb

import (
	"context"
	"time"
)

// Reserved metadata field names usable in filters and orderings.
const (
	FieldID         = "_id"
	FieldCreateTime = "_createTime"
	FieldUpdateTime = "_updateTime"
)

// Snapshot is a document as read from the store.
type Snapshot struct {
	Collection string
	ID         string
	Data       []byte // JSON object
	CreateTime time.Time
	UpdateTime time.Time
	Version    int64
}

// Write is one mutation in a commit.
type Write struct {
	Collection string
	ID         string
	Data       []byte // JSON object, ignored for deletes
	Merge      bool   // merge top-level fields into an existing document
	Delete     bool
	CreateTime time.Time // used only when the document does not exist yet
	UpdateTime time.Time
}

// Op is a filter comparison operator.
type Op string

const (
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Filter compares one top-level field against a value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Order is one ordering key.
type Order struct {
	Field     string
	Direction Direction
}

// Query selects documents from one collection. Results are always ordered
// by OrderBy and then by document id, so StartAfter cursors are stable.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    []Order
	Limit      int
	Offset     int
	StartAfter string // document id of the last document on the previous page
}

// Client is the store connection.
type Client interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	// Commit applies writes atomically.
	Commit(ctx context.Context, writes []Write) error
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Count ignores Limit, Offset and StartAfter.
	Count(ctx context.Context, q Query) (int64, error)
	// RunTransaction runs fn once. Writes staged on the Tx are committed
	// only if fn returns nil and no document read through the Tx changed
	// in the meantime; otherwise the commit fails with codes.Aborted.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is a store transaction. Reads observe a consistent snapshot.
type Tx interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Query(ctx context.Context, q Query) ([]*Snapshot, error)
	// Write stages w for commit.
	Write(w Write) error
}
