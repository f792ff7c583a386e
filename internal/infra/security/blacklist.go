package security

import "strings"

// builtinBlacklist seeds the lookup table with values that show up in nearly
// every breach corpus. Deployments extend it through configuration.
var builtinBlacklist = []string{
	"password",
	"password1",
	"contraseña",
	"12345678",
	"123456789",
	"qwerty123",
	"iloveyou",
	"admin123",
	"welcome1",
	"letmein1",
}

// Blacklist is an immutable, case-insensitive set of forbidden passwords.
// Built once at startup; lookups are safe for concurrent use.
type Blacklist struct {
	entries map[string]struct{}
}

// NewBlacklist builds a lookup table from the builtin entries plus any extra
// values supplied by configuration.
func NewBlacklist(extra []string) *Blacklist {
	entries := make(map[string]struct{}, len(builtinBlacklist)+len(extra))
	for _, value := range builtinBlacklist {
		entries[strings.ToLower(value)] = struct{}{}
	}
	for _, value := range extra {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		entries[strings.ToLower(value)] = struct{}{}
	}
	return &Blacklist{entries: entries}
}

// Contains reports whether the candidate appears in the table.
func (b *Blacklist) Contains(candidate string) bool {
	if b == nil {
		return false
	}
	_, found := b.entries[strings.ToLower(candidate)]
	return found
}
