package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// User registry schema versions.
const (
	UserVersionAlpha1 = "alpha1"
	UserVersionAlpha2 = "alpha2"
)

// UserStatus values.
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusPending   = "pending"
)

// Permission values.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// UserIDPrefix prefixes every registry document id.
const UserIDPrefix = "user_"

// EmailConfig holds per-user IMAP connection settings stored in preferences.
type EmailConfig struct {
	Provider     string `json:"provider"` // "gmail" or "imap"
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	User         string `json:"user,omitempty"`
	Password     string `json:"password,omitempty"`
	OAuthEmail   string `json:"oauthEmail,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserPreferences carries the email-sync settings consumed by the scheduler.
type UserPreferences struct {
	EmailSync         bool         `json:"emailSync"`
	EmailConfig       *EmailConfig `json:"emailConfig,omitempty"`
	EmailFolder       string       `json:"emailFolder,omitempty"`
	EmailSyncInterval int          `json:"emailSyncInterval,omitempty"` // minutes
	EmailSyncTags     []string     `json:"emailSyncTags,omitempty"`
	EmailLastSync     string       `json:"emailLastSync,omitempty"`
}

// User is a tenant registry entry, one per person. The document id is
// user_<sanitized-username>; the database name is derived, never stored
// inconsistently.
type User struct {
	ID           string          `json:"_id"`
	Rev          string          `json:"_rev,omitempty"`
	Username     string          `json:"username"`
	TelegramID   *int64          `json:"telegram_id"`
	Email        *string         `json:"email"`
	DatabaseName string          `json:"database_name"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
	Permissions  []string        `json:"permissions"`
	Status       string          `json:"status"`
	Preferences  UserPreferences `json:"preferences"`
	Version      string          `json:"version"`
}

// IsActive reports whether the user may authenticate.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// CanWrite reports whether the user holds the write permission.
func (u *User) CanWrite() bool {
	for _, p := range u.Permissions {
		if p == PermissionWrite {
			return true
		}
	}
	return false
}

// SyncEligible reports whether the scheduler should consider this user.
func (u *User) SyncEligible() bool {
	return u.Status == UserStatusActive &&
		u.Preferences.EmailSync &&
		u.Preferences.EmailConfig != nil
}

// SyncInterval returns the per-user sync interval, falling back to def.
func (u *User) SyncInterval(def time.Duration) time.Duration {
	if u.Preferences.EmailSyncInterval > 0 {
		return time.Duration(u.Preferences.EmailSyncInterval) * time.Minute
	}
	return def
}

// IsUserAlpha2 reports whether a decoded registry document is current.
func IsUserAlpha2(doc map[string]any) bool {
	v, ok := doc["version"].(string)
	return ok && v == UserVersionAlpha2
}

// MigrateUserDoc upgrades a decoded registry entry to the alpha2 shape.
// Alpha1 entries predate permissions, status and preferences.
func MigrateUserDoc(doc map[string]any) map[string]any {
	if IsUserAlpha2(doc) {
		return doc
	}
	out := make(map[string]any, len(doc)+4)
	for k, v := range doc {
		out[k] = v
	}
	if _, ok := out["permissions"]; !ok {
		out["permissions"] = []any{PermissionRead, PermissionWrite}
	}
	if _, ok := out["status"]; !ok {
		out["status"] = UserStatusActive
	}
	if _, ok := out["preferences"]; !ok {
		out["preferences"] = map[string]any{"emailSync": false}
	}
	if _, ok := out["telegram_id"]; !ok {
		out["telegram_id"] = nil
	}
	if _, ok := out["email"]; !ok {
		out["email"] = nil
	}
	out["version"] = UserVersionAlpha2
	return out
}

// UserFromDoc migrates a decoded registry document and unmarshals it.
func UserFromDoc(doc map[string]any) (*User, error) {
	migrated := MigrateUserDoc(doc)
	raw, err := json.Marshal(migrated)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode user document: %w", err)
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", err)
	}
	user.Version = UserVersionAlpha2
	if user.Permissions == nil {
		user.Permissions = []string{PermissionRead, PermissionWrite}
	}
	return &user, nil
}
