package out

import (
	"context"

	"github.com/goccy/go-json"
)

// FindOptions tune a Mango query.
type FindOptions struct {
	Limit    int
	Skip     int
	Sort     []map[string]string
	UseIndex string
	Fields   []string
}

// ViewOptions tune a MapReduce view query.
type ViewOptions struct {
	Key         any
	StartKey    any
	EndKey      any
	Descending  bool
	IncludeDocs bool
	Limit       int
	Skip        int
	Group       bool
	Reduce      bool
	GroupLevel  int
}

// AllDocsOptions tune a primary-index scan.
type AllDocsOptions struct {
	StartKey    string
	EndKey      string
	Descending  bool
	IncludeDocs bool
	Limit       int
}

// ViewRow is one row of a view, _all_docs or reduce result.
type ViewRow struct {
	ID    string
	Key   any
	Value any
	Doc   json.RawMessage
}

// View is a map/reduce pair inside a design document.
type View struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

// Database is the typed surface over one CouchDB database. Implementations
// classify driver errors into apperr kinds: 404 NotFound, 409 Conflict,
// 401/403 Unauthorized, connection failures ExternalError.
type Database interface {
	Name() string
	Get(ctx context.Context, id string, doc any) error
	// Put writes doc under id and returns the new revision. The document's
	// _rev (when present in doc) drives optimistic concurrency.
	Put(ctx context.Context, id string, doc any) (string, error)
	Delete(ctx context.Context, id, rev string) error
	Find(ctx context.Context, selector map[string]any, opts FindOptions) ([]json.RawMessage, error)
	AllDocs(ctx context.Context, opts AllDocsOptions) ([]ViewRow, error)
	QueryView(ctx context.Context, design, view string, opts ViewOptions) ([]ViewRow, error)
	CreateIndex(ctx context.Context, name string, fields []string) error
	// PutDesignDoc installs views under _design/<name>, reading any existing
	// revision first and retrying conflicts with linear backoff.
	PutDesignDoc(ctx context.Context, name string, views map[string]View) error
	// BulkGet fetches many documents by id; ids that are missing or fail to
	// decode are elided from the result, never surfaced.
	BulkGet(ctx context.Context, ids []string) ([]json.RawMessage, error)
}

// DocumentStore hands out databases and manages their lifecycle.
type DocumentStore interface {
	DBExists(ctx context.Context, name string) (bool, error)
	// EnsureDB creates the database when absent; creation races are treated
	// as success.
	EnsureDB(ctx context.Context, name string) error
	DB(name string) Database
	// Ping verifies the server is reachable; startup fails fatally when not.
	Ping(ctx context.Context) error
	Close() error
}
