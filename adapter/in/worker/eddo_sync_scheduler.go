package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	"eddo_server/core/service/sync"
	"eddo_server/pkg/logger"
)

// SyncScheduler drives the email ingestion loop: every tick it selects the
// users eligible for a sync and fans out to them with bounded parallelism.
// Shutdown stops starting new per-user syncs; in-flight ones run to
// completion.
type SyncScheduler struct {
	users           out.UserRegistry
	syncer          in.SyncService
	tickInterval    time.Duration
	defaultInterval time.Duration
	maxConcurrent   int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    *logger.Logger
}

func NewSyncScheduler(users out.UserRegistry, syncer in.SyncService, tickInterval, defaultInterval time.Duration, maxConcurrent int) *SyncScheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		users:           users,
		syncer:          syncer,
		tickInterval:    tickInterval,
		defaultInterval: defaultInterval,
		maxConcurrent:   maxConcurrent,
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
		log:             logger.Default().WithField("component", "sync_scheduler"),
	}
}

// Start launches the scheduler loop.
func (s *SyncScheduler) Start() {
	s.log.WithFields(map[string]any{
		"tick_interval":    s.tickInterval.String(),
		"default_interval": s.defaultInterval.String(),
		"max_concurrent":   s.maxConcurrent,
	}).Info("starting email sync scheduler")
	go s.run()
}

// Stop signals the loop to exit and waits for the current tick to finish.
func (s *SyncScheduler) Stop() {
	s.log.Info("stopping email sync scheduler")
	s.cancel()
	<-s.done
}

func (s *SyncScheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info("email sync scheduler stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick selects eligible users and syncs them in parallel. A tick with zero
// eligible users performs no writes anywhere.
func (s *SyncScheduler) tick() {
	users, err := s.users.List(s.ctx)
	if err != nil {
		s.log.WithError(err).Error("failed to list users for sync")
		return
	}

	now := time.Now()
	eligible := make([]*domain.User, 0, len(users))
	for _, user := range users {
		if user.SyncEligible() && sync.Due(user, now, s.defaultInterval) {
			eligible = append(eligible, user)
		}
	}
	if len(eligible) == 0 {
		return
	}
	s.log.WithField("users", len(eligible)).Info("email sync tick")

	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrent)
	for _, user := range eligible {
		if s.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A per-user failure is logged and must not stop the others.
			if _, err := s.syncer.SyncUser(s.ctx, user); err != nil {
				s.log.WithError(err).WithField("username", user.Username).Error("user sync failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
