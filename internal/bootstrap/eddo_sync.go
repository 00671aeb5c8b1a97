package bootstrap

import (
	"eddo_server/adapter/in/worker"
	"eddo_server/config"
)

// NewSyncScheduler builds the email sync scheduler from the shared deps.
func NewSyncScheduler(cfg *config.Config, deps *Dependencies) *worker.SyncScheduler {
	return worker.NewSyncScheduler(
		deps.Registry,
		deps.Syncer,
		cfg.SyncTickInterval,
		cfg.SyncDefaultInterval,
		cfg.SyncMaxConcurrent,
	)
}
