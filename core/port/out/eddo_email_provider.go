package out

import (
	"context"
	"time"
)

// EmailItem is one fetched, decoded message.
type EmailItem struct {
	Subject        string
	Body           string
	From           string
	FromName       string
	ReceivedDate   time.Time
	MessageID      string
	UID            uint32
	Folder         string
	GmailMessageID string
}

// MoveResult reports a per-message move outcome.
type MoveResult struct {
	Moved  []uint32
	Failed []uint32
}

// EmailProvider fetches unseen messages from a mailbox folder and files
// processed ones away. Implementations own connection lifecycle per call.
type EmailProvider interface {
	// FetchUnseen returns decoded messages from folder that are not yet
	// flagged \Seen.
	FetchUnseen(ctx context.Context, folder string) ([]EmailItem, error)
	// MarkAsRead sets \Seen on the given UIDs.
	MarkAsRead(ctx context.Context, folder string, uids []uint32) error
	// MoveToProcessed moves UIDs into the processed folder, creating it when
	// absent. Partial failure is reported, not fatal.
	MoveToProcessed(ctx context.Context, folder, processedFolder string, uids []uint32) (*MoveResult, error)
}

// TokenSource yields a fresh access token for XOAUTH2 authentication.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}
