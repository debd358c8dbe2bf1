package normalize

import (
	"regexp"
	"strings"
)

// Device SKUs. These are the only values a distribution entry may carry.
const (
	SKU14 = "211410SPT"
	SKU16 = "211610SPT"
	SKU18 = "211810SPT"
)

// ValidSKUs is the closed SKU set in display order
var ValidSKUs = []string{SKU14, SKU16, SKU18}

// non-device line items that often carry stray digits
var skuExclusions = []string{
	"SHIP", "FREIGHT", "HANDLING", "DISCOUNT", "SAMPLE",
	"TAX", "FEE", "INSURANCE", "CREDIT", "COUPON", "DEMO",
}

// IsValidSKU reports exact membership in ValidSKUs
func IsValidSKU(sku string) bool {
	for _, s := range ValidSKUs {
		if sku == s {
			return true
		}
	}
	return false
}

// SKU maps a free-text SKU or item name onto the closed set.
// The second return is false when the token cannot be mapped.
func SKU(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if IsValidSKU(s) {
		return s, true
	}
	for _, ex := range skuExclusions {
		if strings.Contains(s, ex) {
			return "", false
		}
	}
	switch {
	case strings.Contains(s, "14"):
		return SKU14, true
	case strings.Contains(s, "16"):
		return SKU16, true
	case strings.Contains(s, "18"):
		return SKU18, true
	}
	return "", false
}

var tenPack = regexp.MustCompile(`(?i)\b10[\s-]?(pack|pk)\b|\bbox\s+of\s+10\b`)

// InferUnits converts an ordered quantity into device units.
// Items named as 10-packs count ten units each.
func InferUnits(itemName string, quantity int) int {
	if quantity <= 0 {
		return 0
	}
	if tenPack.MatchString(itemName) {
		return quantity * 10
	}
	return quantity
}
