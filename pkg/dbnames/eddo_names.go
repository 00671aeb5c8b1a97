// Package dbnames derives and classifies the CouchDB database names used for
// per-user isolation. All functions are pure; the same input always yields
// the same name.
package dbnames

import "strings"

const (
	registrySuffix  = "_user_registry"
	userInfix       = "_user_"
	auditInfix      = "_audit_"
	chatInfix       = "_chat_"
	maxUsernameLen  = 50
	fallbackPrepend = "u_"
)

// SanitizeUsername converts an arbitrary username into a database-name-safe
// token: lowercase, every character outside [a-z0-9_$()+/-] replaced with
// '_', prefixed with "u_" when the result does not start with a letter, and
// truncated to 50 characters. Idempotent.
func SanitizeUsername(username string) string {
	lower := strings.ToLower(username)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '$' || r == '(' || r == ')' || r == '+' || r == '/' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := b.String()
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		s = fallbackPrepend + s
	}
	if len(s) > maxUsernameLen {
		s = s[:maxUsernameLen]
	}
	return s
}

// UserRegistryDatabaseName returns the shared registry database name.
func UserRegistryDatabaseName(prefix string) string {
	return prefix + registrySuffix
}

// UserDatabaseName returns the per-user todo database name.
func UserDatabaseName(prefix, username string) string {
	return prefix + userInfix + SanitizeUsername(username)
}

// AuditDatabaseName returns the per-user audit database name.
func AuditDatabaseName(prefix, username string) string {
	return prefix + auditInfix + SanitizeUsername(username)
}

// ChatDatabaseName returns the per-user chat database name.
func ChatDatabaseName(prefix, username string) string {
	return prefix + chatInfix + SanitizeUsername(username)
}

// IsUserRegistryDatabase reports whether name is a registry database under
// any of the given prefixes.
func IsUserRegistryDatabase(name string, prefixes ...string) bool {
	for _, p := range prefixes {
		if name == p+registrySuffix {
			return true
		}
	}
	return false
}

// IsUserDatabase reports whether name is a per-user todo database under any
// of the given prefixes. The registry database is not a user database.
func IsUserDatabase(name string, prefixes ...string) bool {
	if IsUserRegistryDatabase(name, prefixes...) {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(name, p+userInfix) && len(name) > len(p+userInfix) {
			return true
		}
	}
	return false
}

// IsAuditDatabase reports whether name is a per-user audit database under
// any of the given prefixes.
func IsAuditDatabase(name string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p+auditInfix) && len(name) > len(p+auditInfix) {
			return true
		}
	}
	return false
}

// ExtractUsername returns the sanitized username embedded in a user, audit
// or chat database name, or "" when the name does not match any prefix.
func ExtractUsername(name string, prefixes ...string) string {
	if IsUserRegistryDatabase(name, prefixes...) {
		return ""
	}
	for _, p := range prefixes {
		for _, infix := range []string{userInfix, auditInfix, chatInfix} {
			if rest, ok := strings.CutPrefix(name, p+infix); ok && rest != "" {
				return rest
			}
		}
	}
	return ""
}
