// Package productid provides deterministic product IDs for catalog entries that do not carry one.
package productid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const prefix = "prod:"

// For returns a stable product ID derived from name and type. Case and surrounding or
// repeated whitespace do not change the result, so re-importing a catalog updates the
// same product.
func For(name, productType string) string {
	key := normalize(productType) + "|" + normalize(name)
	hash := sha256.Sum256([]byte(key))
	return prefix + hex.EncodeToString(hash[:8])
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
