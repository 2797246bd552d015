/*Package docdb is the document store abstraction of the resource framework.

It mirrors the small slice of a document database the framework actually
needs: filtered finds, single-document writes keyed by filter, aggregation
pipelines for joins and grouping, and index creation. The production driver
runs on MongoDB, the Memory driver keeps everything in process for tests
and for running the example service without a database.
*/
package docdb

import (
	"context"
	"errors"
)

// Document is a schemaless record as stored in a collection.
type Document = map[string]interface{}

// sentinel errors raised by Store implementations
var (
	// ErrNoDocuments is returned by FindOne when nothing matches the filter.
	ErrNoDocuments = errors.New("docdb: no documents in result")
	// ErrDuplicateKey is returned when a write violates a unique index. It is
	// distinct from ErrNoDocuments and from generic failures so callers can
	// surface a conflict instead of a server error.
	ErrDuplicateKey = errors.New("docdb: duplicate key")
)

// SortField is one element of a sort specification. Direction is 1 for
// ascending and -1 for descending, following the document store convention.
type SortField struct {
	Field     string
	Direction int
}

// FindOptions carries sorting and pagination for plain finds.
type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
}

// Store is the document store collaborator. Implementations must be safe
// for concurrent use; the framework issues independent queries concurrently.
type Store interface {
	// Find returns all documents matching filter, in sort order, honoring
	// limit and skip. An empty filter matches everything.
	Find(ctx context.Context, collection string, filter Document, opt FindOptions) ([]Document, error)
	// FindOne returns the first document matching filter, or ErrNoDocuments.
	FindOne(ctx context.Context, collection string, filter Document) (Document, error)
	// InsertOne stores doc and returns the value of its "_id" field.
	// A unique index violation surfaces as ErrDuplicateKey.
	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	// UpdateOne applies set to the fields of the first document matching
	// filter and reports how many documents were matched and modified.
	UpdateOne(ctx context.Context, collection string, filter Document, set Document) (matched, modified int64, err error)
	// DeleteOne removes the first document matching filter and reports how
	// many documents were removed.
	DeleteOne(ctx context.Context, collection string, filter Document) (int64, error)
	// Aggregate runs an ordered pipeline of stages against the collection.
	Aggregate(ctx context.Context, collection string, pipeline []Document) ([]Document, error)
	// CreateIndex creates an index over fields. Unique indexes make
	// conflicting writes fail with ErrDuplicateKey.
	CreateIndex(ctx context.Context, collection string, fields []string, unique bool) error
}
