// Package util provides shared utility functions.
package util

import (
	"regexp"

	"github.com/google/uuid"
)

// ID prefixes for engram entities. Every row minted by the service carries
// one of these so identifiers are self-describing in logs and audit entries.
const (
	NodePrefix     = "n-"
	EdgePrefix     = "e-"
	WorkingPrefix  = "wm-"
	StalePrefix    = "sm-"
	AuditPrefix    = "a-"
	ReviewPrefix   = "r-"
	DialoguePrefix = "d-"
	QueryPrefix    = "q-"
)

// idSuffixLength is the number of UUID characters kept after the prefix.
const idSuffixLength = 8

// idPattern matches any well-formed engram identifier: a short lowercase
// prefix, a dash, and a hex/dash suffix. Used to reject malformed ids before
// they reach SQL (access-stat bumps accept caller-supplied lists).
var idPattern = regexp.MustCompile(`^[a-z]{1,3}-[0-9a-f-]{4,36}$`)

// NewID mints a prefixed identifier, e.g. NewID(EdgePrefix) → "e-3f2a91cc".
func NewID(prefix string) string {
	return prefix + uuid.New().String()[:idSuffixLength]
}

// ValidID reports whether s looks like an identifier minted by NewID.
func ValidID(s string) bool {
	return idPattern.MatchString(s)
}

// ShortID returns a shortened version of an ID for display.
// If n is 0 or negative, the prefix plus 8 characters are kept.
func ShortID(id string, n int) string {
	if n <= 0 {
		n = idSuffixLength + 3
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}
