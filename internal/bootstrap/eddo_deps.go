package bootstrap

import (
	"context"
	"time"

	inmcp "eddo_server/adapter/in/mcp"
	"eddo_server/adapter/out/couchdb"
	"eddo_server/adapter/out/imap"
	"eddo_server/config"
	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	auditsvc "eddo_server/core/service/audit"
	chatsvc "eddo_server/core/service/chat"
	syncsvc "eddo_server/core/service/sync"
	todosvc "eddo_server/core/service/todo"
	usersvc "eddo_server/core/service/user"
	"eddo_server/core/tools"
	"eddo_server/pkg/logger"
	"eddo_server/pkg/telemetry"
)

// Version is reported by the MCP handshake and the server info tool.
const Version = "1.0.0"

const startupTimeout = 30 * time.Second

// Dependencies wires every adapter and service once per process.
type Dependencies struct {
	Config *config.Config
	Store  out.DocumentStore

	Registry out.UserRegistry
	Users    in.UserService
	Audits   *auditsvc.Registry
	Syncer   in.SyncService

	Catalog  *tools.Registry
	AuthGate *inmcp.AuthGate
	MCP      *inmcp.Server

	Telemetry *telemetry.Provider
}

// NewDependencies connects to CouchDB, provisions the registry database and
// builds the object graph. An unreachable document store is a startup
// failure; the caller exits non-zero.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tp, err := telemetry.Init(ctx, "eddo-server", Version, cfg.OTelSDKDisabled)
	if err != nil {
		return nil, nil, err
	}

	store, err := couchdb.NewClient(cfg.CouchDBURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Ping(ctx); err != nil {
		return nil, nil, err
	}

	prefix := cfg.Prefix()
	registry := couchdb.NewUserRegistryAdapter(store, prefix)
	if err := registry.EnsureDatabase(ctx); err != nil {
		return nil, nil, err
	}
	if err := registry.SetupDesignDocuments(ctx); err != nil {
		return nil, nil, err
	}

	audits := auditsvc.NewRegistry(cfg.CouchDBURL, func(username string) out.AuditStore {
		return couchdb.NewAuditAdapter(store, prefix, username)
	})

	deps := &Dependencies{
		Config:    cfg,
		Store:     store,
		Registry:  registry,
		Users:     usersvc.NewService(registry),
		Audits:    audits,
		Telemetry: tp,
	}

	deps.Syncer = syncsvc.NewService(registry, deps.todoFactory(domain.SourceEmailSync), deps.providerFactory())

	deps.Catalog = tools.DefaultCatalog()
	deps.AuthGate = inmcp.NewAuthGate(deps.Users, cfg.JWTSecret)
	deps.MCP = inmcp.NewServer(deps.Catalog, deps.AuthGate, deps.sessionFactory(), Version)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown failed")
		}
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("couchdb close failed")
		}
	}
	return deps, cleanup, nil
}

// todoService builds the per-user todo service writing audit entries with
// the given source. The audit database is provisioned once per process and
// user; a provisioning failure only disables auditing for this call.
func (d *Dependencies) todoService(username, dbName string, source domain.AuditSource) in.TodoService {
	repo := couchdb.NewTodoAdapter(d.Store.DB(dbName))

	var audit out.AuditStore
	if err := d.Audits.Ensure(context.Background(), username); err != nil {
		logger.WithError(err).WithField("username", username).Warn("audit database unavailable")
	} else {
		audit = d.Audits.For(username)
	}
	return todosvc.NewService(repo, d.Store, dbName, audit, source)
}

func (d *Dependencies) todoFactory(source domain.AuditSource) syncsvc.TodoFactory {
	return func(user *domain.User) in.TodoService {
		return d.todoService(user.Username, user.DatabaseName, source)
	}
}

// sessionFactory binds an authenticated identity to its per-user services.
func (d *Dependencies) sessionFactory() inmcp.SessionFactory {
	return func(identity *inmcp.Identity) *tools.Session {
		sess := &tools.Session{
			UserID:    identity.UserID,
			Username:  identity.Username,
			DBName:    identity.DBName,
			Anonymous: identity.Anonymous,
			User:      identity.User,
			Users:     d.Users,
		}
		if !identity.Anonymous {
			sess.Todos = d.todoService(identity.Username, identity.DBName, domain.SourceMCP)
		}
		return sess
	}
}

// providerFactory builds the mailbox client for one user's email config,
// attaching a Gmail token source when the provider needs XOAUTH2.
func (d *Dependencies) providerFactory() syncsvc.ProviderFactory {
	return func(cfg domain.EmailConfig) (out.EmailProvider, error) {
		var tokens out.TokenSource
		if cfg.Provider == "gmail" {
			tokens = imap.NewGmailTokenSource(d.Config.GoogleClientID, d.Config.GoogleClientSecret, cfg.RefreshToken)
		}
		return imap.NewProvider(cfg, tokens), nil
	}
}

// ChatService returns the chat session service bound to one user's database.
func (d *Dependencies) ChatService(username string) in.ChatService {
	adapter := couchdb.NewChatAdapter(d.Store, d.Config.Prefix(), username)
	return chatsvc.NewService(adapter, username)
}
