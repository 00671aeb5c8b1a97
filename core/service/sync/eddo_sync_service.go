package sync

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
	"eddo_server/pkg/telemetry"
)

const (
	// DefaultFolder is the mailbox watched when the user has not picked one.
	DefaultFolder = "eddo"
	// ProcessedFolder receives messages after their todo has been created.
	ProcessedFolder = "eddo-processed"
)

// DefaultTags are attached to ingested todos unless the user configured
// their own set.
var DefaultTags = []string{"source:email", domain.TagNext}

// TodoFactory yields the todo service bound to one user's database, writing
// audit entries with the email-sync source.
type TodoFactory func(user *domain.User) in.TodoService

// ProviderFactory builds the mailbox client for one user's email config.
type ProviderFactory func(cfg domain.EmailConfig) (out.EmailProvider, error)

// Service runs one email ingestion pass per user: fetch unseen messages,
// dedup against the todo store by external id, create todos, file processed
// messages away and stamp the user's last-sync time.
type Service struct {
	users     out.UserRegistry
	todos     TodoFactory
	providers ProviderFactory
	log       *logger.Logger
}

func NewService(users out.UserRegistry, todos TodoFactory, providers ProviderFactory) *Service {
	return &Service{
		users:     users,
		todos:     todos,
		providers: providers,
		log:       logger.Default().WithField("component", "email_sync"),
	}
}

// Due reports whether enough wall-clock time has passed since the user's
// last sync. A missing or unparseable last-sync timestamp means sync now.
func Due(user *domain.User, now time.Time, defaultInterval time.Duration) bool {
	last := user.Preferences.EmailLastSync
	if last == "" {
		return true
	}
	t, err := domain.ParseTimestamp(last)
	if err != nil {
		return true
	}
	return now.Sub(t) >= user.SyncInterval(defaultInterval)
}

// SyncUser runs one ingestion pass. Per-message failures increment the error
// counter and the pass continues; only failures that sink the whole pass
// (connection, config) are returned.
func (s *Service) SyncUser(ctx context.Context, user *domain.User) (*in.SyncStats, error) {
	cfg := user.Preferences.EmailConfig
	if cfg == nil {
		return nil, apperr.ConfigError("user has no email config")
	}

	folder := user.Preferences.EmailFolder
	if folder == "" {
		folder = DefaultFolder
	}

	ctx, span := telemetry.Tracer().Start(ctx, "email.sync_user")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.String("user.name", user.Username),
		attribute.String("email.folder", folder),
		attribute.String("email.provider", cfg.Provider),
	)

	stats := &in.SyncStats{}
	defer func() {
		span.SetAttributes(
			attribute.Int("email.fetched", stats.Fetched),
			attribute.Int("email.created", stats.Created),
			attribute.Int("email.skipped", stats.Skipped),
			attribute.Int("email.errors", stats.Errors),
		)
	}()

	conn := *cfg
	if conn.User == "" {
		conn.User = conn.OAuthEmail
	}
	provider, err := s.providers(conn)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items, err := provider.FetchUnseen(ctx, folder)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	stats.Fetched = len(items)

	tags := user.Preferences.EmailSyncTags
	if len(tags) == 0 {
		tags = DefaultTags
	}

	todoSvc := s.todos(user)
	log := s.log.WithField("username", user.Username).WithField("folder", folder)

	type created struct {
		uid    uint32
		todoID string
		todo   *domain.Todo
	}
	var createdTodos []created

	for _, item := range items {
		externalID := GenerateExternalID(item)
		existing, err := todoSvc.List(ctx, out.TodoQuery{ExternalID: externalID, Limit: 1})
		if err != nil {
			log.WithError(err).WithField("messageId", item.MessageID).Warn("dedup lookup failed")
			stats.Errors++
			continue
		}
		if len(existing.Todos) > 0 {
			stats.Skipped++
			continue
		}

		mapped := MapEmailToTodo(item, tags)
		todo, err := todoSvc.Create(ctx, in.CreateTodoRequest{
			Title:       mapped.Title,
			Description: mapped.Description,
			Context:     mapped.Context,
			Due:         mapped.Due,
			Tags:        mapped.Tags,
			Link:        mapped.Link,
			ExternalID:  mapped.ExternalID,
			Metadata:    mapped.Metadata,
		})
		if err != nil {
			log.WithError(err).WithField("messageId", item.MessageID).Warn("todo creation failed")
			stats.Errors++
			continue
		}
		stats.Created++
		createdTodos = append(createdTodos, created{uid: item.UID, todoID: todo.ID, todo: todo})
	}

	if len(createdTodos) > 0 {
		uids := make([]uint32, 0, len(createdTodos))
		byUID := make(map[uint32]created, len(createdTodos))
		for _, c := range createdTodos {
			uids = append(uids, c.uid)
			byUID[c.uid] = c
		}
		moved, err := provider.MoveToProcessed(ctx, folder, ProcessedFolder, uids)
		if err != nil {
			// Ingestion already succeeded; the message stays behind and is
			// deduplicated on the next tick.
			log.WithError(err).Warn("move to processed folder failed")
		} else {
			for _, uid := range moved.Moved {
				c := byUID[uid]
				meta := make(map[string]any, len(c.todo.Metadata)+1)
				for k, v := range c.todo.Metadata {
					meta[k] = v
				}
				meta["moved"] = domain.Now()
				if _, err := todoSvc.Update(ctx, c.todoID, map[string]any{"metadata": meta}); err != nil {
					log.WithError(err).WithField("todo_id", c.todoID).Warn("moved-marker update failed")
				}
			}
		}
	}

	if _, err := s.users.Update(ctx, user.ID, func(u *domain.User) {
		u.Preferences.EmailLastSync = domain.Now()
	}); err != nil {
		log.WithError(err).Warn("failed to record last sync time")
	}

	log.WithFields(map[string]any{
		"fetched": stats.Fetched,
		"created": stats.Created,
		"skipped": stats.Skipped,
		"errors":  stats.Errors,
	}).Info("email sync pass complete")
	return stats, nil
}

var _ in.SyncService = (*Service)(nil)
