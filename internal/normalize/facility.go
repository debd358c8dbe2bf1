// Package normalize holds the pure text canonicalization used by every ingestion path.
package normalize

import (
	"regexp"
	"strings"
)

// entitySuffix matches one trailing business-entity suffix with its separator
var entitySuffix = regexp.MustCompile(`(?i)[\s,]+(inc|llc|corp|corporation|ltd|limited|co|company|pc|pa|pllc|lp|llp)\.?\s*$`)

var nonKeyChars = regexp.MustCompile(`[^A-Z0-9]+`)

// FacilityName strips trailing business-entity suffixes ("Inc.", "LLC", ...)
// and surrounding whitespace. Stacked suffixes such as "Co., Inc." are all removed.
func FacilityName(name string) string {
	out := strings.TrimSpace(name)
	for {
		stripped := entitySuffix.ReplaceAllString(out, "")
		stripped = strings.TrimSpace(stripped)
		if stripped == out {
			return out
		}
		out = stripped
	}
}

// CustomerKey is the canonical matching key for a facility name:
// FacilityName, uppercase, then only [A-Z0-9] kept. Empty input yields "".
func CustomerKey(name string) string {
	return Token(FacilityName(name))
}

// Token uppercases s and drops everything outside [A-Z0-9]
func Token(s string) string {
	return nonKeyChars.ReplaceAllString(strings.ToUpper(s), "")
}
