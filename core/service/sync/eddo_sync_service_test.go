package sync

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
)

func TestGenerateExternalIDDeterministic(t *testing.T) {
	item := out.EmailItem{Folder: "eddo", MessageID: "<abc@mail.example>"}
	first := GenerateExternalID(item)
	second := GenerateExternalID(item)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "email:"))
	parts := strings.SplitN(strings.TrimPrefix(first, "email:"), "/", 2)
	require.Len(t, parts, 2)
	assert.Len(t, parts[0], 8)
	assert.Len(t, parts[1], 8)

	// Different folder, same message id: different key.
	other := GenerateExternalID(out.EmailItem{Folder: "inbox", MessageID: "<abc@mail.example>"})
	assert.NotEqual(t, first, other)
}

func TestMapEmailToTodo(t *testing.T) {
	received := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	item := out.EmailItem{
		Subject:        "Quarterly invoice",
		Body:           "please pay by friday",
		From:           "billing@example.com",
		FromName:       "Billing",
		ReceivedDate:   received,
		MessageID:      "<inv-1@example.com>",
		Folder:         "eddo",
		GmailMessageID: "18f2a9",
	}

	todo := MapEmailToTodo(item, []string{"source:email"})

	assert.Equal(t, "Quarterly invoice", todo.Title)
	assert.Equal(t, "email", todo.Context)
	assert.Equal(t, "2026-03-14T09:30:00.000Z", todo.Due)
	assert.Equal(t, []string{"source:email"}, todo.Tags)
	assert.Equal(t, "please pay by friday", todo.Description)
	require.NotNil(t, todo.ExternalID)
	assert.Equal(t, GenerateExternalID(item), *todo.ExternalID)
	require.NotNil(t, todo.Link)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#all/18f2a9", *todo.Link)
	assert.Equal(t, "billing@example.com", todo.Metadata["from"])
	assert.Equal(t, "Billing", todo.Metadata["fromName"])
}

func TestMapEmailToTodoFallbacks(t *testing.T) {
	item := out.EmailItem{
		Body:         strings.Repeat("x", maxBodyLength+500),
		ReceivedDate: time.Now(),
	}
	todo := MapEmailToTodo(item, nil)

	assert.Equal(t, "(no subject)", todo.Title)
	assert.Len(t, todo.Description, maxBodyLength)
	assert.Nil(t, todo.Link)
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	def := 30 * time.Minute

	user := &domain.User{}
	assert.True(t, Due(user, now, def), "never synced")

	user.Preferences.EmailLastSync = "garbage"
	assert.True(t, Due(user, now, def), "unparseable last sync")

	user.Preferences.EmailLastSync = domain.Timestamp(now.Add(-10 * time.Minute))
	assert.False(t, Due(user, now, def), "synced recently")

	user.Preferences.EmailLastSync = domain.Timestamp(now.Add(-45 * time.Minute))
	assert.True(t, Due(user, now, def), "interval elapsed")

	// Per-user interval overrides the default.
	user.Preferences.EmailSyncInterval = 60
	assert.False(t, Due(user, now, def), "per-user interval not yet elapsed")
}

// --- fakes -----------------------------------------------------------------

type fakeProvider struct {
	items    []out.EmailItem
	moved    [][]uint32
	moveFail bool
}

func (f *fakeProvider) FetchUnseen(ctx context.Context, folder string) ([]out.EmailItem, error) {
	return f.items, nil
}

func (f *fakeProvider) MarkAsRead(ctx context.Context, folder string, uids []uint32) error {
	return nil
}

func (f *fakeProvider) MoveToProcessed(ctx context.Context, folder, processedFolder string, uids []uint32) (*out.MoveResult, error) {
	if f.moveFail {
		return nil, assert.AnError
	}
	f.moved = append(f.moved, uids)
	return &out.MoveResult{Moved: uids}, nil
}

type fakeTodoService struct {
	byExternalID map[string]*domain.Todo
	created      []in.CreateTodoRequest
	updates      []map[string]any
}

func newFakeTodoService() *fakeTodoService {
	return &fakeTodoService{byExternalID: map[string]*domain.Todo{}}
}

func (f *fakeTodoService) Create(ctx context.Context, req in.CreateTodoRequest) (*domain.Todo, error) {
	f.created = append(f.created, req)
	todo := domain.NewTodo(time.Now().Add(time.Duration(len(f.created)) * time.Millisecond))
	todo.Title = req.Title
	todo.ExternalID = req.ExternalID
	if req.Metadata != nil {
		todo.Metadata = req.Metadata
	}
	if req.ExternalID != nil {
		f.byExternalID[*req.ExternalID] = todo
	}
	return todo, nil
}

func (f *fakeTodoService) Get(ctx context.Context, id string) (*domain.Todo, error) {
	return nil, nil
}

func (f *fakeTodoService) List(ctx context.Context, q out.TodoQuery) (*in.TodoListResult, error) {
	result := &in.TodoListResult{Filters: map[string]any{}}
	if todo, ok := f.byExternalID[q.ExternalID]; ok {
		result.Todos = []*domain.Todo{todo}
	}
	result.Count = len(result.Todos)
	return result, nil
}

func (f *fakeTodoService) Update(ctx context.Context, id string, patch map[string]any) (*domain.Todo, error) {
	f.updates = append(f.updates, patch)
	return nil, nil
}

func (f *fakeTodoService) ToggleCompletion(ctx context.Context, id string, completed bool) (*in.ToggleResult, error) {
	return nil, nil
}

func (f *fakeTodoService) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeTodoService) StartTimeTracking(ctx context.Context, id string) (*domain.Todo, error) {
	return nil, nil
}

func (f *fakeTodoService) StopTimeTracking(ctx context.Context, id string) (*domain.Todo, bool, error) {
	return nil, false, nil
}

func (f *fakeTodoService) ActiveTimeTracking(ctx context.Context) ([]*domain.Todo, error) {
	return nil, nil
}

func (f *fakeTodoService) TagStats(ctx context.Context) (map[string]int, error) {
	return map[string]int{}, nil
}

type fakeRegistry struct {
	users   []*domain.User
	updated []string
}

func (f *fakeRegistry) EnsureDatabase(ctx context.Context) error        { return nil }
func (f *fakeRegistry) SetupDesignDocuments(ctx context.Context) error  { return nil }
func (f *fakeRegistry) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRegistry) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRegistry) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRegistry) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	return user, nil
}
func (f *fakeRegistry) Update(ctx context.Context, id string, patch func(*domain.User)) (*domain.User, error) {
	f.updated = append(f.updated, id)
	user := &domain.User{ID: id}
	patch(user)
	return user, nil
}
func (f *fakeRegistry) List(ctx context.Context) ([]*domain.User, error) { return f.users, nil }
func (f *fakeRegistry) Delete(ctx context.Context, id string) error      { return nil }
func (f *fakeRegistry) EnsureUserDatabase(ctx context.Context, username string) error {
	return nil
}

func syncTestUser() *domain.User {
	return &domain.User{
		ID:       "user_frida",
		Username: "frida",
		Status:   domain.UserStatusActive,
		Preferences: domain.UserPreferences{
			EmailSync:   true,
			EmailConfig: &domain.EmailConfig{Provider: "imap", Host: "mail.example.com", User: "frida"},
		},
	}
}

func TestSyncUserCreatesAndDedups(t *testing.T) {
	items := []out.EmailItem{
		{Subject: "new one", MessageID: "<new@x>", Folder: "eddo", UID: 7, ReceivedDate: time.Now()},
		{Subject: "seen before", MessageID: "<old@x>", Folder: "eddo", UID: 8, ReceivedDate: time.Now()},
	}
	provider := &fakeProvider{items: items}
	todoSvc := newFakeTodoService()

	// Pre-seed the dedup key of the second message.
	existing := domain.NewTodo(time.Now())
	todoSvc.byExternalID[GenerateExternalID(items[1])] = existing

	registry := &fakeRegistry{}
	svc := NewService(registry,
		func(user *domain.User) in.TodoService { return todoSvc },
		func(cfg domain.EmailConfig) (out.EmailProvider, error) { return provider, nil })

	stats, err := svc.SyncUser(context.Background(), syncTestUser())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)

	require.Len(t, todoSvc.created, 1)
	assert.Equal(t, "new one", todoSvc.created[0].Title)
	assert.Equal(t, DefaultTags, todoSvc.created[0].Tags)

	// Only the created message is filed away, and its todo gets the moved
	// marker.
	require.Len(t, provider.moved, 1)
	assert.Equal(t, []uint32{7}, provider.moved[0])
	require.Len(t, todoSvc.updates, 1)
	meta, ok := todoSvc.updates[0]["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, meta, "moved")

	// The pass stamps the user's last-sync time.
	assert.Equal(t, []string{"user_frida"}, registry.updated)
}

func TestSyncUserMoveFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{
		items:    []out.EmailItem{{Subject: "a", MessageID: "<a@x>", Folder: "eddo", UID: 1, ReceivedDate: time.Now()}},
		moveFail: true,
	}
	todoSvc := newFakeTodoService()
	svc := NewService(&fakeRegistry{},
		func(user *domain.User) in.TodoService { return todoSvc },
		func(cfg domain.EmailConfig) (out.EmailProvider, error) { return provider, nil })

	stats, err := svc.SyncUser(context.Background(), syncTestUser())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
	assert.Empty(t, todoSvc.updates)
}

func TestSyncUserWithoutEmailConfig(t *testing.T) {
	svc := NewService(&fakeRegistry{},
		func(user *domain.User) in.TodoService { return nil },
		func(cfg domain.EmailConfig) (out.EmailProvider, error) { return nil, nil })

	user := syncTestUser()
	user.Preferences.EmailConfig = nil
	_, err := svc.SyncUser(context.Background(), user)
	require.Error(t, err)
}
