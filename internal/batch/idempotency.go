package batch

import (
	"crypto/sha256"
	"encoding/hex"
)

// ItemKey derives the idempotency key for one item of a batch. The key is a
// function of the batch id and the item's content, never of a caller-supplied
// offset, so reordered or re-cursored resumes cannot double-process an item.
func ItemKey(batchID, item string) string {
	h := sha256.New()
	h.Write([]byte(batchID))
	h.Write([]byte{0})
	h.Write([]byte(item))
	return hex.EncodeToString(h.Sum(nil))
}

// dedupeItems drops repeated item texts, keeping the first occurrence.
// Duplicates share an idempotency key within a batch, so only one of them
// can ever be claimed; admitting both would leave the progress counters
// unable to reach zero pending.
func dedupeItems(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	unique := make([]string, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}
