package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/pkg/apperr"
)

type fakeChatStore struct {
	sessions map[string]*domain.ChatSession
	entries  map[string][]*domain.ChatEntry
	ensured  int
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		sessions: map[string]*domain.ChatSession{},
		entries:  map[string][]*domain.ChatEntry{},
	}
}

func (f *fakeChatStore) EnsureDatabase(ctx context.Context) error {
	f.ensured++
	return nil
}

func (f *fakeChatStore) CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error) {
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeChatStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, apperr.NotFound("chat session")
	}
	return session, nil
}

func (f *fakeChatStore) ListSessions(ctx context.Context, limit int) ([]*domain.ChatSession, error) {
	var sessions []*domain.ChatSession
	for _, session := range f.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (f *fakeChatStore) UpdateSession(ctx context.Context, id string, patch func(*domain.ChatSession)) (*domain.ChatSession, error) {
	session, err := f.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	patch(session)
	return session, nil
}

func (f *fakeChatStore) DeleteSession(ctx context.Context, id string) error {
	delete(f.sessions, id)
	delete(f.entries, id)
	return nil
}

func (f *fakeChatStore) AppendEntry(ctx context.Context, entry *domain.ChatEntry) (*domain.ChatEntry, error) {
	f.entries[entry.SessionID] = append(f.entries[entry.SessionID], entry)
	if session, ok := f.sessions[entry.SessionID]; ok {
		session.Stats.Add(entry.StatsDelta())
	}
	return entry, nil
}

func (f *fakeChatStore) ListEntries(ctx context.Context, sessionID string) ([]*domain.ChatEntry, error) {
	return f.entries[sessionID], nil
}

func (f *fakeChatStore) Branch(ctx context.Context, sessionID, leafID string) ([]*domain.ChatEntry, error) {
	byID := map[string]*domain.ChatEntry{}
	for _, entry := range f.entries[sessionID] {
		byID[entry.ID] = entry
	}
	var path []*domain.ChatEntry
	for id := leafID; id != ""; {
		entry, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("chat entry")
		}
		path = append([]*domain.ChatEntry{entry}, path...)
		if entry.ParentID == nil {
			break
		}
		id = *entry.ParentID
	}
	return path, nil
}

func TestCreateSessionProvisionsAndStamps(t *testing.T) {
	store := newFakeChatStore()
	svc := NewService(store, "ada")

	session, err := svc.CreateSession(context.Background(), in.CreateSessionRequest{Name: "refactor"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.ensured)
	assert.True(t, strings.HasPrefix(session.ID, "session_"))
	assert.Equal(t, "ada", session.Username)
	assert.Equal(t, session.CreatedAt, session.UpdatedAt)
}

func TestAppendEntryRequiresTypeAndSession(t *testing.T) {
	store := newFakeChatStore()
	svc := NewService(store, "ada")

	_, err := svc.AppendEntry(context.Background(), "session_x", in.AppendEntryRequest{})
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.AppendEntry(context.Background(), "session_x", in.AppendEntryRequest{
		Type: domain.EntryTypeMessage,
	})
	assert.True(t, apperr.IsNotFound(err))
}

func TestAppendEntryRejectsDanglingParent(t *testing.T) {
	store := newFakeChatStore()
	svc := NewService(store, "ada")
	session, err := svc.CreateSession(context.Background(), in.CreateSessionRequest{Name: "threads"})
	require.NoError(t, err)

	root, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{Type: domain.EntryTypeEvent})
	require.NoError(t, err)

	ghost := "entry_" + session.ID + "_deadbeef"
	_, err = svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type:     domain.EntryTypeEvent,
		ParentID: &ghost,
	})
	assert.True(t, apperr.IsValidation(err))

	child, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type:     domain.EntryTypeEvent,
		ParentID: &root.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *child.ParentID)
}

func TestAppendEntryFoldsStats(t *testing.T) {
	store := newFakeChatStore()
	svc := NewService(store, "ada")
	session, err := svc.CreateSession(context.Background(), in.CreateSessionRequest{Name: "chat"})
	require.NoError(t, err)

	entry, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type: domain.EntryTypeMessage,
		Message: &domain.ChatMessage{
			Role: domain.RoleUser,
			Content: []domain.ContentItem{
				{Type: "text", Text: "hello"},
			},
		},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(entry.ID, "entry_"+session.ID+"_"))
	assert.Equal(t, entry.ID, entry.DocID)
	assert.Equal(t, 1, session.Stats.MessageCount)
	assert.Equal(t, 1, session.Stats.UserMessageCount)
}

func TestGetBranchWalksParents(t *testing.T) {
	store := newFakeChatStore()
	svc := NewService(store, "ada")
	session, err := svc.CreateSession(context.Background(), in.CreateSessionRequest{Name: "branching"})
	require.NoError(t, err)

	root, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{Type: domain.EntryTypeEvent})
	require.NoError(t, err)
	child, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type:     domain.EntryTypeEvent,
		ParentID: &root.ID,
	})
	require.NoError(t, err)
	leaf, err := svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type:     domain.EntryTypeEvent,
		ParentID: &child.ID,
	})
	require.NoError(t, err)

	// A sibling branch that must not appear in the walk.
	_, err = svc.AppendEntry(context.Background(), session.ID, in.AppendEntryRequest{
		Type:     domain.EntryTypeEvent,
		ParentID: &root.ID,
	})
	require.NoError(t, err)

	branch, err := svc.GetBranch(context.Background(), session.ID, leaf.ID)
	require.NoError(t, err)
	require.Len(t, branch, 3)
	assert.Equal(t, root.ID, branch[0].ID)
	assert.Equal(t, child.ID, branch[1].ID)
	assert.Equal(t, leaf.ID, branch[2].ID)
}

func TestListSessionsEmptyDatabase(t *testing.T) {
	svc := NewService(newFakeChatStore(), "ada")
	sessions, err := svc.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
