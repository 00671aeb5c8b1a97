package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
)

// maxBodyLength caps the description copied from an email body.
const maxBodyLength = 50_000

// GenerateExternalID derives the deduplication key for an email:
// email:<sha256(folder)[0..8]>/<sha256(messageId)[0..8]>. Deterministic per
// (folder, messageId) pair so repeated fetches of the same message collide.
func GenerateExternalID(item out.EmailItem) string {
	return fmt.Sprintf("email:%s/%s", hash8(item.Folder), hash8(item.MessageID))
}

func hash8(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// MapEmailToTodo builds an alpha3 todo from a fetched message. The id is the
// ingestion moment, the due date comes from the received date, and the body
// is truncated before it lands in the description.
func MapEmailToTodo(item out.EmailItem, tags []string) *domain.Todo {
	todo := domain.NewTodo(time.Now())
	todo.Title = item.Subject
	if todo.Title == "" {
		todo.Title = "(no subject)"
	}
	todo.Context = "email"
	todo.Due = domain.Timestamp(item.ReceivedDate)
	if tags != nil {
		todo.Tags = append([]string{}, tags...)
	}

	body := item.Body
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength]
	}
	todo.Description = body

	externalID := GenerateExternalID(item)
	todo.ExternalID = &externalID

	if item.GmailMessageID != "" {
		link := "https://mail.google.com/mail/u/0/#all/" + item.GmailMessageID
		todo.Link = &link
	}

	if item.From != "" {
		todo.Metadata["from"] = item.From
	}
	if item.FromName != "" {
		todo.Metadata["fromName"] = item.FromName
	}
	return todo
}
