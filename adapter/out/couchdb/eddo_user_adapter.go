package couchdb

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/dbnames"
	"eddo_server/pkg/logger"
)

// Registry lookup views installed on the user registry database.
var registryViews = map[string]out.View{
	"by_username": {
		Map: `function(doc) { if (doc.username && doc._id.indexOf('_design/') !== 0) { emit(doc.username, null); } }`,
	},
	"by_email": {
		Map: `function(doc) { if (doc.email && doc._id.indexOf('_design/') !== 0) { emit(doc.email, null); } }`,
	},
	"by_telegram_id": {
		Map: `function(doc) { if (doc.telegram_id !== null && doc.telegram_id !== undefined && doc._id.indexOf('_design/') !== 0) { emit(doc.telegram_id, null); } }`,
	},
	"by_status": {
		Map: `function(doc) { if (doc.status && doc._id.indexOf('_design/') !== 0) { emit(doc.status, null); } }`,
	},
	"active_users": {
		Map: `function(doc) { if (doc.status === 'active' && doc._id.indexOf('_design/') !== 0) { emit(doc.username, null); } }`,
	},
}

// UserRegistryAdapter implements out.UserRegistry on the shared registry
// database. Lookups migrate alpha1 entries on read with a background
// write-back, mirroring the todo store.
type UserRegistryAdapter struct {
	store  out.DocumentStore
	db     out.Database
	prefix string
	log    *logger.Logger
}

func NewUserRegistryAdapter(store out.DocumentStore, prefix string) *UserRegistryAdapter {
	name := dbnames.UserRegistryDatabaseName(prefix)
	return &UserRegistryAdapter{
		store:  store,
		db:     store.DB(name),
		prefix: prefix,
		log:    logger.Default().WithField("component", "user_registry").WithField("database", name),
	}
}

func (r *UserRegistryAdapter) EnsureDatabase(ctx context.Context) error {
	return r.store.EnsureDB(ctx, r.db.Name())
}

func (r *UserRegistryAdapter) SetupDesignDocuments(ctx context.Context) error {
	return r.db.PutDesignDoc(ctx, "users", registryViews)
}

func (r *UserRegistryAdapter) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findByView(ctx, "by_username", username)
}

func (r *UserRegistryAdapter) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.findByView(ctx, "by_telegram_id", telegramID)
}

func (r *UserRegistryAdapter) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByView(ctx, "by_email", email)
}

func (r *UserRegistryAdapter) findByView(ctx context.Context, view string, key any) (*domain.User, error) {
	rows, err := r.db.QueryView(ctx, "users", view, out.ViewOptions{
		Key:         key,
		IncludeDocs: true,
		Limit:       1,
	})
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return r.decode(ctx, rows[0].Doc)
}

func (r *UserRegistryAdapter) decode(ctx context.Context, raw json.RawMessage) (*domain.User, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, apperr.DatabaseError("decode user", err)
	}
	wasLatest := domain.IsUserAlpha2(doc)
	user, err := domain.UserFromDoc(doc)
	if err != nil {
		return nil, apperr.DatabaseError("decode user", err)
	}
	if !wasLatest {
		upgraded := *user
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
			defer cancel()
			if _, err := r.db.Put(ctx, upgraded.ID, &upgraded); err != nil {
				r.log.WithError(err).WithField("user_id", upgraded.ID).Warn("registry migration write-back failed")
			}
		}()
	}
	return user, nil
}

// Create inserts a new registry entry with derived id and database name and
// alpha2 defaults. A sanitized-username collision surfaces as AlreadyExists.
func (r *UserRegistryAdapter) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user.Username == "" {
		return nil, apperr.MissingField("username")
	}
	sanitized := dbnames.SanitizeUsername(user.Username)
	now := domain.Now()

	entry := *user
	entry.ID = domain.UserIDPrefix + sanitized
	entry.DatabaseName = dbnames.UserDatabaseName(r.prefix, user.Username)
	entry.CreatedAt = now
	entry.UpdatedAt = now
	entry.Version = domain.UserVersionAlpha2
	if entry.Permissions == nil {
		entry.Permissions = []string{domain.PermissionRead, domain.PermissionWrite}
	}
	if entry.Status == "" {
		entry.Status = domain.UserStatusActive
	}

	rev, err := r.db.Put(ctx, entry.ID, &entry)
	if err != nil {
		if apperr.IsConflict(err) {
			return nil, apperr.AlreadyExists("user " + user.Username)
		}
		return nil, err
	}
	entry.Rev = rev
	return &entry, nil
}

// Update migrates the stored entry, applies patch and writes it back with a
// refreshed updated_at.
func (r *UserRegistryAdapter) Update(ctx context.Context, id string, patch func(*domain.User)) (*domain.User, error) {
	var doc map[string]any
	if err := r.db.Get(ctx, id, &doc); err != nil {
		return nil, err
	}
	user, err := domain.UserFromDoc(doc)
	if err != nil {
		return nil, apperr.DatabaseError("decode user", err)
	}
	patch(user)
	user.UpdatedAt = domain.Now()
	rev, err := r.db.Put(ctx, user.ID, user)
	if err != nil {
		return nil, err
	}
	user.Rev = rev
	return user, nil
}

// List returns every registry entry, skipping design documents.
func (r *UserRegistryAdapter) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.AllDocs(ctx, out.AllDocsOptions{IncludeDocs: true})
	if err != nil {
		return nil, err
	}
	users := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		if strings.HasPrefix(row.ID, "_design/") {
			continue
		}
		user, err := r.decode(ctx, row.Doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (r *UserRegistryAdapter) Delete(ctx context.Context, id string) error {
	var doc struct {
		Rev string `json:"_rev"`
	}
	if err := r.db.Get(ctx, id, &doc); err != nil {
		return err
	}
	return r.db.Delete(ctx, id, doc.Rev)
}

func (r *UserRegistryAdapter) EnsureUserDatabase(ctx context.Context, username string) error {
	return r.store.EnsureDB(ctx, dbnames.UserDatabaseName(r.prefix, username))
}

var _ out.UserRegistry = (*UserRegistryAdapter)(nil)
