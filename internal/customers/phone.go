package customers

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizePhone formats a phone number as E.164 when it parses as a valid
// number for region; anything else is returned trimmed and unchanged.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p, err := libphonenumber.Parse(raw, region)
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return raw
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}
