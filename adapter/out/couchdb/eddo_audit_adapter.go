package couchdb

import (
	"context"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/dbnames"
	"eddo_server/pkg/logger"
)

const (
	idxAuditEntityID      = "entityId-index"
	defaultAuditPageLimit = 50
)

var auditViews = map[string]out.View{
	"by_source": {
		Map: `function(doc) { if (doc.source && doc._id.indexOf('_design/') !== 0) { emit([doc.source, doc.timestamp], null); } }`,
	},
}

// AuditAdapter implements out.AuditStore on one per-user audit database.
// Entries are append-only; nothing here updates or deletes them.
type AuditAdapter struct {
	store out.DocumentStore
	db    out.Database
	log   *logger.Logger

	entityIndexOnce sync.Once
}

func NewAuditAdapter(store out.DocumentStore, prefix, username string) *AuditAdapter {
	name := dbnames.AuditDatabaseName(prefix, username)
	return &AuditAdapter{
		store: store,
		db:    store.DB(name),
		log:   logger.Default().WithField("component", "audit_store").WithField("database", name),
	}
}

// EnsureDatabase provisions the audit database. On first creation the
// entityId index and the by_source view are installed eagerly; existing
// databases get the index lazily on the first filtered query instead.
func (a *AuditAdapter) EnsureDatabase(ctx context.Context) error {
	existed, err := a.store.DBExists(ctx, a.db.Name())
	if err != nil {
		return err
	}
	if err := a.store.EnsureDB(ctx, a.db.Name()); err != nil {
		return err
	}
	if !existed {
		a.ensureEntityIndex(ctx)
		if err := a.db.PutDesignDoc(ctx, "audit", auditViews); err != nil {
			a.log.WithError(err).Warn("failed to install audit views")
		}
	}
	return nil
}

func (a *AuditAdapter) ensureEntityIndex(ctx context.Context) {
	a.entityIndexOnce.Do(func() {
		if err := a.db.CreateIndex(ctx, idxAuditEntityID, []string{"entityId", "_id"}); err != nil {
			a.log.WithError(err).Warn("failed to create entityId index")
		}
	})
}

// Insert appends one entry. The _id equals the timestamp, so a duplicate
// timestamp surfaces as Conflict.
func (a *AuditAdapter) Insert(ctx context.Context, entry *domain.AuditEntry) error {
	rev, err := a.db.Put(ctx, entry.ID, entry)
	if err != nil {
		return err
	}
	entry.Rev = rev
	return nil
}

// List pages through entries newest first. HasMore comes from a limit+1
// probe.
func (a *AuditAdapter) List(ctx context.Context, opts out.AuditListOptions) (*out.AuditPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultAuditPageLimit
	}

	var entries []*domain.AuditEntry
	var err error
	if len(opts.EntityIDs) > 0 {
		entries, err = a.listByEntity(ctx, opts, limit+1)
	} else {
		entries, err = a.listPrimary(ctx, opts, limit+1)
	}
	if err != nil {
		return nil, err
	}

	page := &out.AuditPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.HasMore = true
	}
	return page, nil
}

func (a *AuditAdapter) listByEntity(ctx context.Context, opts out.AuditListOptions, probe int) ([]*domain.AuditEntry, error) {
	a.ensureEntityIndex(ctx)
	selector := map[string]any{
		"entityId": map[string]any{"$in": opts.EntityIDs},
	}
	if opts.StartAfter != "" {
		selector["_id"] = map[string]any{"$lt": opts.StartAfter}
	} else {
		selector["_id"] = map[string]any{"$gt": nil}
	}
	raws, err := a.db.Find(ctx, selector, out.FindOptions{
		Sort:     []map[string]string{{"entityId": "desc"}, {"_id": "desc"}},
		UseIndex: idxAuditEntityID,
		Limit:    probe,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.AuditEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := decodeAuditEntry(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (a *AuditAdapter) listPrimary(ctx context.Context, opts out.AuditListOptions, probe int) ([]*domain.AuditEntry, error) {
	allOpts := out.AllDocsOptions{
		Descending:  true,
		IncludeDocs: true,
		Limit:       probe + 1, // room for an inclusive startkey match
	}
	if opts.StartAfter != "" {
		allOpts.StartKey = opts.StartAfter
	}
	rows, err := a.db.AllDocs(ctx, allOpts)
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		if strings.HasPrefix(row.ID, "_design/") {
			continue
		}
		if opts.StartAfter != "" && row.ID == opts.StartAfter {
			continue
		}
		entry, err := decodeAuditEntry(row.Doc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
		if len(entries) == probe {
			break
		}
	}
	return entries, nil
}

// GetByIDs bulk-fetches entries, eliding missing ids.
func (a *AuditAdapter) GetByIDs(ctx context.Context, ids []string) ([]*domain.AuditEntry, error) {
	raws, err := a.db.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.AuditEntry, 0, len(raws))
	for _, raw := range raws {
		entry, err := decodeAuditEntry(raw)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ListBySource buckets the newest entries per source, querying the sources in
// parallel. A database without the by_source view yields empty buckets.
func (a *AuditAdapter) ListBySource(ctx context.Context, perSource int) (map[domain.AuditSource][]*domain.AuditEntry, error) {
	if perSource <= 0 {
		perSource = 20
	}

	var mu sync.Mutex
	buckets := make(map[domain.AuditSource][]*domain.AuditEntry, len(domain.AuditSources))

	g, ctx := errgroup.WithContext(ctx)
	for _, source := range domain.AuditSources {
		g.Go(func() error {
			rows, err := a.db.QueryView(ctx, "audit", "by_source", out.ViewOptions{
				StartKey:    []any{string(source), map[string]any{}},
				EndKey:      []any{string(source)},
				Descending:  true,
				IncludeDocs: true,
				Limit:       perSource,
			})
			if err != nil {
				if apperr.IsNotFound(err) {
					rows = nil
				} else {
					return err
				}
			}
			entries := make([]*domain.AuditEntry, 0, len(rows))
			for _, row := range rows {
				entry, err := decodeAuditEntry(row.Doc)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
			}
			mu.Lock()
			buckets[source] = entries
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buckets, nil
}

func decodeAuditEntry(raw json.RawMessage) (*domain.AuditEntry, error) {
	var entry domain.AuditEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, apperr.DatabaseError("decode audit entry", err)
	}
	return &entry, nil
}

var _ out.AuditStore = (*AuditAdapter)(nil)
