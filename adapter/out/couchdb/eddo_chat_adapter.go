package couchdb

import (
	"context"
	"sort"

	"github.com/goccy/go-json"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/dbnames"
	"eddo_server/pkg/logger"
)

var chatViews = map[string]out.View{
	"by_session": {
		Map: `function(doc) { if (doc.sessionId && doc._id.indexOf('entry_') === 0) { emit([doc.sessionId, doc._id], null); } }`,
	},
	"sessions_by_updated": {
		Map: `function(doc) { if (doc._id.indexOf('session_') === 0) { emit(doc.updatedAt, null); } }`,
	},
}

// ChatAdapter implements out.ChatStore on one per-user chat database.
type ChatAdapter struct {
	store out.DocumentStore
	db    out.Database
	log   *logger.Logger
}

func NewChatAdapter(store out.DocumentStore, prefix, username string) *ChatAdapter {
	name := dbnames.ChatDatabaseName(prefix, username)
	return &ChatAdapter{
		store: store,
		db:    store.DB(name),
		log:   logger.Default().WithField("component", "chat_store").WithField("database", name),
	}
}

func (c *ChatAdapter) EnsureDatabase(ctx context.Context) error {
	if err := c.store.EnsureDB(ctx, c.db.Name()); err != nil {
		return err
	}
	if err := c.db.PutDesignDoc(ctx, "entries", chatViews); err != nil {
		c.log.WithError(err).Warn("failed to install chat views")
	}
	return nil
}

func (c *ChatAdapter) CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error) {
	rev, err := c.db.Put(ctx, session.ID, session)
	if err != nil {
		return nil, err
	}
	session.Rev = rev
	return session, nil
}

func (c *ChatAdapter) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var session domain.ChatSession
	if err := c.db.Get(ctx, id, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions newest-updated first, via the view with an
// _all_docs prefix scan fallback.
func (c *ChatAdapter) ListSessions(ctx context.Context, limit int) ([]*domain.ChatSession, error) {
	rows, err := c.db.QueryView(ctx, "entries", "sessions_by_updated", out.ViewOptions{
		Descending:  true,
		IncludeDocs: true,
		Limit:       limit,
	})
	if err != nil {
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		rows, err = c.db.AllDocs(ctx, out.AllDocsOptions{
			StartKey:    "session_",
			EndKey:      "session_\ufff0",
			IncludeDocs: true,
		})
		if err != nil {
			return nil, err
		}
	}
	sessions := make([]*domain.ChatSession, 0, len(rows))
	for _, row := range rows {
		var session domain.ChatSession
		if err := json.Unmarshal(row.Doc, &session); err != nil {
			return nil, apperr.DatabaseError("decode chat session", err)
		}
		sessions = append(sessions, &session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt > sessions[j].UpdatedAt
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (c *ChatAdapter) UpdateSession(ctx context.Context, id string, patch func(*domain.ChatSession)) (*domain.ChatSession, error) {
	session, err := c.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	patch(session)
	session.UpdatedAt = domain.Now()
	rev, err := c.db.Put(ctx, session.ID, session)
	if err != nil {
		return nil, err
	}
	session.Rev = rev
	return session, nil
}

// DeleteSession removes the session's entries first, then the session
// document itself.
func (c *ChatAdapter) DeleteSession(ctx context.Context, id string) error {
	entries, err := c.ListEntries(ctx, id)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := c.db.Delete(ctx, entry.DocID, entry.Rev); err != nil && !apperr.IsNotFound(err) {
			return err
		}
	}
	session, err := c.GetSession(ctx, id)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	return c.db.Delete(ctx, session.ID, session.Rev)
}

// AppendEntry writes the entry and folds its stats delta into the session.
func (c *ChatAdapter) AppendEntry(ctx context.Context, entry *domain.ChatEntry) (*domain.ChatEntry, error) {
	rev, err := c.db.Put(ctx, entry.DocID, entry)
	if err != nil {
		return nil, err
	}
	entry.Rev = rev

	delta := entry.StatsDelta()
	if delta != (domain.SessionStats{}) {
		if _, err := c.UpdateSession(ctx, entry.SessionID, func(s *domain.ChatSession) {
			s.Stats.Add(delta)
		}); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// ListEntries returns a session's entries in id order via the by_session
// view, falling back to an _all_docs prefix scan when the design document is
// absent.
func (c *ChatAdapter) ListEntries(ctx context.Context, sessionID string) ([]*domain.ChatEntry, error) {
	rows, err := c.db.QueryView(ctx, "entries", "by_session", out.ViewOptions{
		StartKey:    []any{sessionID},
		EndKey:      []any{sessionID, map[string]any{}},
		IncludeDocs: true,
	})
	if err != nil {
		if !apperr.IsNotFound(err) {
			return nil, err
		}
		prefix := domain.EntryDocPrefix(sessionID)
		rows, err = c.db.AllDocs(ctx, out.AllDocsOptions{
			StartKey:    prefix,
			EndKey:      prefix + "\ufff0",
			IncludeDocs: true,
		})
		if err != nil {
			return nil, err
		}
	}
	entries := make([]*domain.ChatEntry, 0, len(rows))
	for _, row := range rows {
		var entry domain.ChatEntry
		if err := json.Unmarshal(row.Doc, &entry); err != nil {
			return nil, apperr.DatabaseError("decode chat entry", err)
		}
		entries = append(entries, &entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries, nil
}

// Branch walks parent pointers from leafID back to the root. A broken chain
// terminates the walk silently; the collected path is still returned.
func (c *ChatAdapter) Branch(ctx context.Context, sessionID, leafID string) ([]*domain.ChatEntry, error) {
	entries, err := c.ListEntries(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if leafID == "" {
		return entries, nil
	}
	byID := make(map[string]*domain.ChatEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	var path []*domain.ChatEntry
	seen := make(map[string]bool)
	current := byID[leafID]
	for current != nil && !seen[current.ID] {
		seen[current.ID] = true
		path = append(path, current)
		if current.ParentID == nil {
			break
		}
		current = byID[*current.ParentID]
	}
	// Reverse into chronological (root first) order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

var _ out.ChatStore = (*ChatAdapter)(nil)
