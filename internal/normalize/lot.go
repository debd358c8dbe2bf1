package normalize

import (
	"regexp"
	"strings"
)

// LotPrefix is the manufacturer prefix every normalized lot carries
const LotPrefix = "SLQ-"

// UnknownLot is recorded when no trustworthy lot can be resolved for a row
const UnknownLot = "UNKNOWN"

var strictLot = regexp.MustCompile(`^SLQ-\d{5}$`)

// Lot uppercases a lot code and forces the SLQ- prefix.
// Lot(Lot(x)) == Lot(x) for every x.
func Lot(code string) string {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch {
	case c == "":
		return ""
	case strings.HasPrefix(c, LotPrefix):
		return c
	case strings.HasPrefix(c, "SLQ"):
		return LotPrefix + strings.TrimPrefix(c, "SLQ")
	default:
		return LotPrefix + c
	}
}

// ValidLot reports whether a lot satisfies the strict entry grammar
// (SLQ- followed by exactly five digits). Normalized lots from fulfillment
// notes are not required to pass this check.
func ValidLot(lot string) bool {
	return strictLot.MatchString(lot)
}

var (
	labeledLot = regexp.MustCompile(`(?i)\bLOT\s*[:#]?\s*([A-Z0-9-]+)`)
	slqLot     = regexp.MustCompile(`(?i)\bSLQ-?\d+\b`)
	numericLot = regexp.MustCompile(`\b\d{6,12}\b`)
	hasDigit   = regexp.MustCompile(`\d`)
)

// ExtractLot pulls a single raw lot code out of free-text order notes.
// Priority: an explicit "LOT:" label, then an SLQ code, then a bare 6-12
// digit run. Returns "" when nothing matches.
func ExtractLot(notes string) string {
	if notes == "" {
		return ""
	}
	for _, m := range labeledLot.FindAllStringSubmatch(notes, -1) {
		// "Lot numbers to follow" must not yield "numbers"
		if hasDigit.MatchString(m[1]) {
			return strings.Trim(m[1], "-")
		}
	}
	if m := slqLot.FindString(notes); m != "" {
		return m
	}
	return numericLot.FindString(notes)
}
