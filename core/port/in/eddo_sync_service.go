package in

import (
	"context"

	"eddo_server/core/domain"
)

// SyncStats summarizes one per-user sync run.
type SyncStats struct {
	Fetched int
	Created int
	Skipped int
	Errors  int
}

// SyncService ingests external items into user todo databases.
type SyncService interface {
	// SyncUser runs one email ingestion pass for the user.
	SyncUser(ctx context.Context, user *domain.User) (*SyncStats, error)
}
