package bridge

import "strings"

// NormalizeKey canonicalizes a correlation key derived from a slash-joined
// path. Leading and trailing slashes are stripped so that "a/b/" and "a/b"
// address the same entry; every public bridge operation applies this before
// touching shared state.
func NormalizeKey(key string) string {
	return strings.Trim(key, "/")
}
