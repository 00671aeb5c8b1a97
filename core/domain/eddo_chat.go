package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chat entry types.
const (
	EntryTypeMessage = "message"
	EntryTypeEvent   = "event"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SessionStats aggregates message counters, kept on the session document and
// updated incrementally as entries are appended.
type SessionStats struct {
	MessageCount          int     `json:"messageCount"`
	UserMessageCount      int     `json:"userMessageCount"`
	AssistantMessageCount int     `json:"assistantMessageCount"`
	ToolCallCount         int     `json:"toolCallCount"`
	InputTokens           int64   `json:"inputTokens"`
	OutputTokens          int64   `json:"outputTokens"`
	TotalCost             float64 `json:"totalCost"`
}

// Add accumulates a delta into the stats.
func (s *SessionStats) Add(d SessionStats) {
	s.MessageCount += d.MessageCount
	s.UserMessageCount += d.UserMessageCount
	s.AssistantMessageCount += d.AssistantMessageCount
	s.ToolCallCount += d.ToolCallCount
	s.InputTokens += d.InputTokens
	s.OutputTokens += d.OutputTokens
	s.TotalCost += d.TotalCost
}

// ChatSession is a conversation container document.
type ChatSession struct {
	ID              string         `json:"_id"`
	Rev             string         `json:"_rev,omitempty"`
	Username        string         `json:"username"`
	Name            string         `json:"name"`
	CreatedAt       string         `json:"createdAt"`
	UpdatedAt       string         `json:"updatedAt"`
	Repository      string         `json:"repository,omitempty"`
	ContainerState  string         `json:"containerState,omitempty"`
	WorktreeState   string         `json:"worktreeState,omitempty"`
	Stats           SessionStats   `json:"stats"`
	ParentSessionID string         `json:"parentSessionId,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// MessageUsage is the token accounting reported by an assistant turn.
type MessageUsage struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalCost    float64 `json:"totalCost"`
}

// ContentItem is one element of a structured message payload.
type ContentItem struct {
	Type  string         `json:"type"` // "text", "tool_call", "tool_result"
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// ChatMessage is the typed payload of a message entry.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content []ContentItem `json:"content"`
	Usage   *MessageUsage `json:"usage,omitempty"`
}

// ChatEntry is one event in a session. ParentID enables branching: a nil
// parent is a root, and a branch is reconstructed by walking parents from a
// leaf.
type ChatEntry struct {
	ID        string       `json:"id"`
	DocID     string       `json:"_id"`
	Rev       string       `json:"_rev,omitempty"`
	SessionID string       `json:"sessionId"`
	Timestamp string       `json:"timestamp"`
	ParentID  *string      `json:"parentId"`
	Type      string       `json:"type"`
	Message   *ChatMessage `json:"message,omitempty"`
	Payload   any          `json:"payload,omitempty"`
}

// StatsDelta computes the session stat increments for appending this entry.
// Non-message entries contribute nothing.
func (e *ChatEntry) StatsDelta() SessionStats {
	var d SessionStats
	if e.Type != EntryTypeMessage || e.Message == nil {
		return d
	}
	d.MessageCount = 1
	switch e.Message.Role {
	case RoleUser:
		d.UserMessageCount = 1
	case RoleAssistant:
		d.AssistantMessageCount = 1
		if u := e.Message.Usage; u != nil {
			d.InputTokens = u.InputTokens
			d.OutputTokens = u.OutputTokens
			d.TotalCost = u.TotalCost
		}
		for _, item := range e.Message.Content {
			if item.Type == "tool_call" {
				d.ToolCallCount++
			}
		}
	}
	return d
}

// hex4 returns a 4-character random hex suffix.
func hex4() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
}

// NewSessionID generates session_<timestamp>_<hex4>.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%s_%s", Timestamp(now), hex4())
}

// NewEntryID generates entry_<sessionId>_<hex4>.
func NewEntryID(sessionID string) string {
	return fmt.Sprintf("entry_%s_%s", sessionID, hex4())
}

// EntryDocPrefix is the _all_docs prefix that selects a session's entries.
func EntryDocPrefix(sessionID string) string {
	return "entry_" + sessionID + "_"
}
