package couchdb

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/goccy/go-json"

	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

const (
	designDocRetries = 10
	designDocBackoff = 200 * time.Millisecond

	// writeBackTimeout bounds background migration writes detached from the
	// originating request.
	writeBackTimeout = 10 * time.Second
)

// Client wraps a kivik CouchDB connection and implements out.DocumentStore.
type Client struct {
	client *kivik.Client
	log    *logger.Logger
}

// NewClient connects to the CouchDB server at url. Credentials ride in the
// URL userinfo, matching how the rest of the deployment configures CouchDB.
func NewClient(url string) (*Client, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, apperr.ExternalError("couchdb", err)
	}
	return &Client{
		client: client,
		log:    logger.Default().WithField("component", "couchdb"),
	}, nil
}

// Ping verifies the server answers. Startup treats a failure as fatal.
func (c *Client) Ping(ctx context.Context) error {
	up, err := c.client.Ping(ctx)
	if err != nil {
		return apperr.ExternalError("couchdb", err)
	}
	if !up {
		return apperr.ExternalError("couchdb", fmt.Errorf("server not ready"))
	}
	return nil
}

func (c *Client) DBExists(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.DBExists(ctx, name)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

// EnsureDB creates the database when absent. A 412 from a concurrent creation
// counts as success.
func (c *Client) EnsureDB(ctx context.Context, name string) error {
	exists, err := c.DBExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := c.client.CreateDB(ctx, name); err != nil {
		if kivik.HTTPStatus(err) == http.StatusPreconditionFailed {
			return nil
		}
		return classify(err)
	}
	c.log.WithField("database", name).Info("created database")
	return nil
}

func (c *Client) DB(name string) out.Database {
	return &database{db: c.client.DB(name), name: name, log: c.log.WithField("database", name)}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// database implements out.Database over one kivik database handle.
type database struct {
	db   *kivik.DB
	name string
	log  *logger.Logger
}

func (d *database) Name() string { return d.name }

func (d *database) Get(ctx context.Context, id string, doc any) error {
	row := d.db.Get(ctx, id)
	if err := row.ScanDoc(doc); err != nil {
		return classify(err)
	}
	return nil
}

func (d *database) Put(ctx context.Context, id string, doc any) (string, error) {
	rev, err := d.db.Put(ctx, id, doc)
	if err != nil {
		return "", classify(err)
	}
	return rev, nil
}

func (d *database) Delete(ctx context.Context, id, rev string) error {
	if _, err := d.db.Delete(ctx, id, rev); err != nil {
		return classify(err)
	}
	return nil
}

func (d *database) Find(ctx context.Context, selector map[string]any, opts out.FindOptions) ([]json.RawMessage, error) {
	query := map[string]any{"selector": selector}
	if opts.Limit > 0 {
		query["limit"] = opts.Limit
	}
	if opts.Skip > 0 {
		query["skip"] = opts.Skip
	}
	if len(opts.Sort) > 0 {
		query["sort"] = opts.Sort
	}
	if opts.UseIndex != "" {
		query["use_index"] = opts.UseIndex
	}
	if len(opts.Fields) > 0 {
		query["fields"] = opts.Fields
	}
	rs := d.db.Find(ctx, query)
	defer rs.Close()

	var docs []json.RawMessage
	for rs.Next() {
		var doc json.RawMessage
		if err := rs.ScanDoc(&doc); err != nil {
			return nil, classify(err)
		}
		docs = append(docs, doc)
	}
	if err := rs.Err(); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

func (d *database) AllDocs(ctx context.Context, opts out.AllDocsOptions) ([]out.ViewRow, error) {
	params := map[string]any{}
	if opts.StartKey != "" {
		params["startkey"] = opts.StartKey
	}
	if opts.EndKey != "" {
		params["endkey"] = opts.EndKey
	}
	if opts.Descending {
		params["descending"] = true
	}
	if opts.IncludeDocs {
		params["include_docs"] = true
	}
	if opts.Limit > 0 {
		params["limit"] = opts.Limit
	}
	rs := d.db.AllDocs(ctx, kivik.Params(params))
	return collectRows(rs, opts.IncludeDocs)
}

func (d *database) QueryView(ctx context.Context, design, view string, opts out.ViewOptions) ([]out.ViewRow, error) {
	params := map[string]any{}
	if opts.Key != nil {
		params["key"] = opts.Key
	}
	if opts.StartKey != nil {
		params["startkey"] = opts.StartKey
	}
	if opts.EndKey != nil {
		params["endkey"] = opts.EndKey
	}
	if opts.Descending {
		params["descending"] = true
	}
	if opts.IncludeDocs {
		params["include_docs"] = true
	}
	if opts.Limit > 0 {
		params["limit"] = opts.Limit
	}
	if opts.Skip > 0 {
		params["skip"] = opts.Skip
	}
	if opts.Group {
		params["group"] = true
	}
	if opts.GroupLevel > 0 {
		params["group_level"] = opts.GroupLevel
	}
	if !opts.Reduce && !opts.Group {
		params["reduce"] = false
	}
	rs := d.db.Query(ctx, "_design/"+design, "_view/"+view, kivik.Params(params))
	return collectRows(rs, opts.IncludeDocs)
}

func collectRows(rs *kivik.ResultSet, includeDocs bool) ([]out.ViewRow, error) {
	defer rs.Close()
	var rows []out.ViewRow
	for rs.Next() {
		var row out.ViewRow
		id, err := rs.ID()
		if err != nil {
			return nil, classify(err)
		}
		row.ID = id
		if err := rs.ScanKey(&row.Key); err != nil {
			return nil, classify(err)
		}
		// Reduce rows have no value to scan in some drivers; tolerate it.
		_ = rs.ScanValue(&row.Value)
		if includeDocs {
			if err := rs.ScanDoc(&row.Doc); err != nil {
				return nil, classify(err)
			}
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

func (d *database) CreateIndex(ctx context.Context, name string, fields []string) error {
	index := map[string]any{"fields": fields}
	if err := d.db.CreateIndex(ctx, "", name, index); err != nil {
		// Concurrent identical creation is fine.
		if kivik.HTTPStatus(err) == http.StatusConflict {
			return nil
		}
		return classify(err)
	}
	return nil
}

type designDoc struct {
	ID       string              `json:"_id"`
	Rev      string              `json:"_rev,omitempty"`
	Language string              `json:"language"`
	Views    map[string]out.View `json:"views"`
}

// PutDesignDoc installs views under _design/<name>, fetching the current
// revision first and retrying update conflicts with linear backoff.
func (d *database) PutDesignDoc(ctx context.Context, name string, views map[string]out.View) error {
	id := "_design/" + name
	var lastErr error
	for attempt := 1; attempt <= designDocRetries; attempt++ {
		doc := designDoc{ID: id, Language: "javascript", Views: views}
		var existing designDoc
		switch err := d.Get(ctx, id, &existing); {
		case err == nil:
			doc.Rev = existing.Rev
		case apperr.IsNotFound(err):
		default:
			return err
		}
		if _, err := d.db.Put(ctx, id, doc); err != nil {
			if kivik.HTTPStatus(err) == http.StatusConflict {
				lastErr = classify(err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(designDocBackoff * time.Duration(attempt)):
				}
				continue
			}
			return classify(err)
		}
		return nil
	}
	d.log.WithError(lastErr).WithField("design", name).Error("design document install kept conflicting")
	return lastErr
}

// BulkGet fetches documents by id, eliding missing or undecodable ones.
func (d *database) BulkGet(ctx context.Context, ids []string) ([]json.RawMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]kivik.BulkGetReference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, kivik.BulkGetReference{ID: id})
	}
	rs := d.db.BulkGet(ctx, refs)
	defer rs.Close()

	var docs []json.RawMessage
	for rs.Next() {
		var doc json.RawMessage
		if err := rs.ScanDoc(&doc); err != nil {
			continue
		}
		// Missing ids come back as {"error": ...} stubs.
		var probe struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(doc, &probe) == nil && probe.Error != "" {
			continue
		}
		docs = append(docs, doc)
	}
	if err := rs.Err(); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

// classify maps kivik errors to application error kinds by HTTP status.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return apperr.NotFound("document").WithError(err)
	case http.StatusConflict:
		return apperr.Conflict(err.Error())
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Unauthorized(err.Error())
	default:
		return apperr.DatabaseError("couchdb", err)
	}
}
