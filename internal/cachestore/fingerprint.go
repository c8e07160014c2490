package cachestore

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// fingerprintRunes is the normalized prefix length that identifies a text
const fingerprintRunes = 100

// Fingerprint derives the cache key of a text from its normalized prefix.
// Texts sharing the first 100 normalized characters collide and are treated
// as the same entry.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > fingerprintRunes {
		runes = runes[:fingerprintRunes]
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(string(runes)))
	return fmt.Sprintf("%016x", h.Sum64())
}
