package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Todo schema version literals. Documents are upgraded on read and always
// written as VersionAlpha3.
const (
	VersionAlpha1 = "alpha1"
	VersionAlpha2 = "alpha2"
	VersionAlpha3 = "alpha3"
)

// Well-known structured tags.
const (
	TagCalendar = "gtd:calendar"
	TagNext     = "gtd:next"
	TagMemory   = "user:memory"
)

// RepeatType describes which anchor a repeating todo's successor uses.
type RepeatType string

const (
	// RepeatCalendar anchors the successor on the original due date.
	RepeatCalendar RepeatType = "calendar"
	// RepeatHabit anchors the successor on the completion moment.
	RepeatHabit RepeatType = "habit"
)

// Todo is the alpha3 todo document. The _id doubles as creation timestamp in
// sortable form and is immutable.
type Todo struct {
	ID          string             `json:"_id"`
	Rev         string             `json:"_rev,omitempty"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Context     string             `json:"context"`
	Due         string             `json:"due"`
	Tags        []string           `json:"tags"`
	Completed   *string            `json:"completed"`
	Active      map[string]*string `json:"active"`
	Repeat      *int               `json:"repeat"`
	Link        *string            `json:"link"`
	ExternalID  *string            `json:"externalId"`
	Metadata    map[string]any     `json:"metadata"`
	Version     string             `json:"version"`
}

// NewTodo creates an alpha3 todo with the id derived from now and all
// collection fields initialized.
func NewTodo(now time.Time) *Todo {
	return &Todo{
		ID:       Timestamp(now),
		Tags:     []string{},
		Active:   map[string]*string{},
		Metadata: map[string]any{},
		Version:  VersionAlpha3,
	}
}

// HasTag reports whether the todo carries the given tag.
func (t *Todo) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// ActiveSession returns the start key of the running time-tracking entry, or
// "" when no timer is running.
func (t *Todo) ActiveSession() string {
	for start, end := range t.Active {
		if end == nil {
			return start
		}
	}
	return ""
}

// StartTracking records a new running timer. At most one timer may run at a
// time; a second start is rejected.
func (t *Todo) StartTracking(now time.Time) error {
	if start := t.ActiveSession(); start != "" {
		return fmt.Errorf("time tracking already active since %s", start)
	}
	if t.Active == nil {
		t.Active = map[string]*string{}
	}
	t.Active[Timestamp(now)] = nil
	return nil
}

// StopTracking closes the running timer. Returns false when no timer was
// running (the call is then a no-op).
func (t *Todo) StopTracking(now time.Time) bool {
	start := t.ActiveSession()
	if start == "" {
		return false
	}
	end := Timestamp(now)
	t.Active[start] = &end
	return true
}

// Clone returns a deep copy. Mutating the copy's collection fields never
// reaches the original, so a pre-mutation snapshot stays intact.
func (t *Todo) Clone() *Todo {
	c := *t
	c.Tags = append([]string{}, t.Tags...)
	c.Active = make(map[string]*string, len(t.Active))
	for start, end := range t.Active {
		if end != nil {
			closed := *end
			c.Active[start] = &closed
		} else {
			c.Active[start] = nil
		}
	}
	c.Metadata = make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	return &c
}

// RepeatTypeFor returns the successor anchor: calendar when the todo is
// tagged gtd:calendar, habit otherwise.
func (t *Todo) RepeatTypeFor() RepeatType {
	if t.HasTag(TagCalendar) {
		return RepeatCalendar
	}
	return RepeatHabit
}

// Successor builds the follow-up todo created when a repeating todo is
// completed. Calendar repeats advance the original due date by the repeat
// interval; habit repeats schedule from the completion moment. The successor
// is a fresh document: new id, no running timers, not completed.
func (t *Todo) Successor(completedAt time.Time) (*Todo, error) {
	if t.Repeat == nil {
		return nil, fmt.Errorf("todo %s has no repeat interval", t.ID)
	}
	days := time.Duration(*t.Repeat) * 24 * time.Hour

	var due string
	switch t.RepeatTypeFor() {
	case RepeatCalendar:
		anchor, err := ParseTimestamp(t.Due)
		if err != nil {
			return nil, fmt.Errorf("todo %s has unparseable due date %q: %w", t.ID, t.Due, err)
		}
		due = Timestamp(anchor.Add(days))
	default:
		due = Timestamp(completedAt.Add(days))
	}

	next := NewTodo(completedAt)
	next.Title = t.Title
	next.Description = t.Description
	next.Context = t.Context
	next.Due = due
	next.Tags = append([]string{}, t.Tags...)
	next.Repeat = t.Repeat
	next.Link = t.Link
	next.ExternalID = t.ExternalID
	for k, v := range t.Metadata {
		next.Metadata[k] = v
	}
	return next, nil
}

// --- version detection and migration ---------------------------------------

// IsTodoAlpha1 reports whether a decoded document is an alpha1 todo. Alpha1
// documents predate the version tag, so a versionless document with the core
// todo fields counts.
func IsTodoAlpha1(doc map[string]any) bool {
	if v, ok := doc["version"].(string); ok {
		return v == VersionAlpha1
	}
	_, hasTitle := doc["title"]
	_, hasDue := doc["due"]
	return hasTitle && hasDue
}

// IsTodoAlpha2 reports whether a decoded document is an alpha2 todo.
func IsTodoAlpha2(doc map[string]any) bool {
	v, ok := doc["version"].(string)
	return ok && v == VersionAlpha2
}

// IsTodoAlpha3 reports whether a decoded document is an alpha3 todo.
func IsTodoAlpha3(doc map[string]any) bool {
	v, ok := doc["version"].(string)
	return ok && v == VersionAlpha3
}

// IsLatestTodoVersion short-circuits migration for alpha3 documents.
func IsLatestTodoVersion(doc map[string]any) bool {
	return IsTodoAlpha3(doc)
}

// MigrateTodoDoc upgrades a decoded todo of any version to the alpha3 shape.
// Total: alpha3 input passes through unchanged, unknown fields are preserved,
// and each hop only adds fields.
func MigrateTodoDoc(doc map[string]any) map[string]any {
	if IsLatestTodoVersion(doc) {
		return doc
	}
	out := make(map[string]any, len(doc)+4)
	for k, v := range doc {
		out[k] = v
	}

	if IsTodoAlpha1(out) {
		// alpha1 -> alpha2: version tag plus defaults for the fields alpha1
		// documents could omit.
		if _, ok := out["description"]; !ok {
			out["description"] = ""
		}
		if _, ok := out["context"]; !ok {
			out["context"] = "private"
		}
		if _, ok := out["tags"]; !ok {
			out["tags"] = []any{}
		}
		if _, ok := out["active"]; !ok {
			out["active"] = map[string]any{}
		}
		if _, ok := out["completed"]; !ok {
			out["completed"] = nil
		}
		if _, ok := out["repeat"]; !ok {
			out["repeat"] = nil
		}
		out["version"] = VersionAlpha2
	}

	if IsTodoAlpha2(out) {
		// alpha2 -> alpha3: external linkage fields.
		if _, ok := out["externalId"]; !ok {
			out["externalId"] = nil
		}
		if _, ok := out["link"]; !ok {
			out["link"] = nil
		}
		if _, ok := out["metadata"]; !ok {
			out["metadata"] = map[string]any{}
		}
		out["version"] = VersionAlpha3
	}

	return out
}

// TodoFromDoc migrates a decoded document to alpha3 and unmarshals it into a
// typed Todo.
func TodoFromDoc(doc map[string]any) (*Todo, error) {
	migrated := MigrateTodoDoc(doc)
	raw, err := json.Marshal(migrated)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode todo document: %w", err)
	}
	var todo Todo
	if err := json.Unmarshal(raw, &todo); err != nil {
		return nil, fmt.Errorf("failed to decode todo document: %w", err)
	}
	if todo.Tags == nil {
		todo.Tags = []string{}
	}
	if todo.Active == nil {
		todo.Active = map[string]*string{}
	}
	if todo.Metadata == nil {
		todo.Metadata = map[string]any{}
	}
	todo.Version = VersionAlpha3
	return &todo, nil
}
