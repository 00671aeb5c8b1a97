package dbnames

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeUsername(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"Alice", "alice"},
		{"alice.smith@example.com", "alice_smith_example_com"},
		{"ALICE-2024", "alice-2024"},
		{"9lives", "u_9lives"},
		{"_underscore", "u__underscore"},
		{"üser", "u__ser"},
		{"a b\tc", "a_b_c"},
		{"$money", "u_$money"},
		{"", "u_"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeUsername(tc.in), "input %q", tc.in)
	}
}

func TestSanitizeUsernameIdempotent(t *testing.T) {
	inputs := []string{"alice", "Alice Smith", "9lives", "über@домен", "x", ""}
	for _, in := range inputs {
		once := SanitizeUsername(in)
		assert.Equal(t, once, SanitizeUsername(once), "input %q", in)
	}
}

func TestSanitizeUsernameShape(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z][a-z0-9_$()+/-]*$`)
	inputs := []string{"alice", "BOB!", "9lives", "----", "名前", "a@b.c", "x"}
	for _, in := range inputs {
		got := SanitizeUsername(in)
		assert.LessOrEqual(t, len(got), 50)
		assert.Regexp(t, pattern, got, "input %q", in)
	}
}

func TestSanitizeUsernameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 80; i++ {
		long += "a"
	}
	assert.Len(t, SanitizeUsername(long), 50)
}

func TestDatabaseNames(t *testing.T) {
	assert.Equal(t, "eddo_user_registry", UserRegistryDatabaseName("eddo"))
	assert.Equal(t, "eddo_user_alice", UserDatabaseName("eddo", "Alice"))
	assert.Equal(t, "eddo_audit_alice", AuditDatabaseName("eddo", "Alice"))
	assert.Equal(t, "eddo_chat_alice", ChatDatabaseName("eddo", "Alice"))
}

func TestDatabaseNameEquivalence(t *testing.T) {
	// Two usernames with the same sanitized form derive the same database.
	assert.Equal(t,
		UserDatabaseName("eddo", "alice smith"),
		UserDatabaseName("eddo", "Alice.Smith"))
}

func TestClassifiers(t *testing.T) {
	prefixes := []string{"eddo", "eddo_test"}

	assert.True(t, IsUserRegistryDatabase("eddo_user_registry", prefixes...))
	assert.True(t, IsUserRegistryDatabase("eddo_test_user_registry", prefixes...))
	assert.False(t, IsUserRegistryDatabase("other_user_registry", prefixes...))

	assert.True(t, IsUserDatabase("eddo_user_alice", prefixes...))
	assert.True(t, IsUserDatabase("eddo_test_user_alice", prefixes...))
	assert.False(t, IsUserDatabase("eddo_user_registry", prefixes...))
	assert.False(t, IsUserDatabase("eddo_audit_alice", prefixes...))

	assert.True(t, IsAuditDatabase("eddo_audit_alice", prefixes...))
	assert.False(t, IsAuditDatabase("eddo_user_alice", prefixes...))
}

func TestExtractUsername(t *testing.T) {
	prefixes := []string{"eddo", "eddo_test"}
	assert.Equal(t, "alice", ExtractUsername("eddo_user_alice", prefixes...))
	assert.Equal(t, "alice", ExtractUsername("eddo_audit_alice", prefixes...))
	assert.Equal(t, "alice", ExtractUsername("eddo_chat_alice", prefixes...))
	assert.Equal(t, "alice", ExtractUsername("eddo_test_user_alice", prefixes...))
	assert.Equal(t, "", ExtractUsername("eddo_user_registry", prefixes...))
	assert.Equal(t, "", ExtractUsername("unrelated", prefixes...))
}
