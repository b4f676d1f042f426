// Package `uuid` checks UUID strings with `google/uuid`.  See GoDoc
// <https://godoc.org/github.com/google/uuid>.
package uuid

import "github.com/google/uuid"

// `IsCanonical()` reports whether `s` is a UUID in the lowercase
// `xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx` form, which is how blkid prints LUKS
// UUIDs.  `uuid.Parse()` also accepts braces and `urn:uuid:` prefixes, which are
// rejected here.
func IsCanonical(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.String() == s
}
