package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionAndEntryIDFormats(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	sessionID := NewSessionID(now)
	assert.Regexp(t, regexp.MustCompile(`^session_2026-05-01T10:00:00\.000Z_[0-9a-f]{4}$`), sessionID)

	entryID := NewEntryID(sessionID)
	assert.Regexp(t, regexp.MustCompile(`^entry_session_.+_[0-9a-f]{4}$`), entryID)
}

func TestStatsDeltaUserMessage(t *testing.T) {
	entry := &ChatEntry{
		Type: EntryTypeMessage,
		Message: &ChatMessage{
			Role:    RoleUser,
			Content: []ContentItem{{Type: "text", Text: "hi"}},
		},
	}
	d := entry.StatsDelta()
	assert.Equal(t, 1, d.MessageCount)
	assert.Equal(t, 1, d.UserMessageCount)
	assert.Equal(t, 0, d.AssistantMessageCount)
}

func TestStatsDeltaAssistantMessageWithUsageAndToolCalls(t *testing.T) {
	entry := &ChatEntry{
		Type: EntryTypeMessage,
		Message: &ChatMessage{
			Role: RoleAssistant,
			Content: []ContentItem{
				{Type: "text", Text: "working on it"},
				{Type: "tool_call", Name: "listTodos"},
				{Type: "tool_call", Name: "createTodo"},
			},
			Usage: &MessageUsage{InputTokens: 100, OutputTokens: 50, TotalCost: 0.01},
		},
	}
	d := entry.StatsDelta()
	assert.Equal(t, 1, d.MessageCount)
	assert.Equal(t, 1, d.AssistantMessageCount)
	assert.Equal(t, 2, d.ToolCallCount)
	assert.Equal(t, int64(100), d.InputTokens)
	assert.Equal(t, int64(50), d.OutputTokens)
	assert.InDelta(t, 0.01, d.TotalCost, 1e-9)
}

func TestStatsDeltaNonMessageEntry(t *testing.T) {
	entry := &ChatEntry{Type: EntryTypeEvent}
	assert.Equal(t, SessionStats{}, entry.StatsDelta())
}

func TestStatsAdd(t *testing.T) {
	var s SessionStats
	s.Add(SessionStats{MessageCount: 1, UserMessageCount: 1})
	s.Add(SessionStats{MessageCount: 1, AssistantMessageCount: 1, ToolCallCount: 3, InputTokens: 10})
	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, 1, s.UserMessageCount)
	assert.Equal(t, 1, s.AssistantMessageCount)
	assert.Equal(t, 3, s.ToolCallCount)
	assert.Equal(t, int64(10), s.InputTokens)
}
