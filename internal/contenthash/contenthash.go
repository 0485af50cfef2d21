// Package contenthash provides the content-addressing scheme shared by the
// entry store and the content cache: entry bodies are normalized to plain
// text, then keyed by a 64-bit xxHash rendered as 16 hex characters. Two
// entries with identical normalized content hash to the same key regardless
// of which feed carried them.
package contenthash

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cespare/xxhash/v2"
)

// Normalize reduces an entry body to comparable plain text. HTML markup is
// stripped, entities decoded, and whitespace runs collapsed to single spaces.
// Plain-text input passes through with only whitespace normalization.
func Normalize(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ""
	}
	if strings.ContainsAny(trimmed, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed)); err == nil {
			trimmed = doc.Text()
		}
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

// Sum returns the content-addressing key for already-normalized text.
func Sum(normalized string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// SumBody normalizes a raw entry body and returns its content key.
func SumBody(body string) string {
	return Sum(Normalize(body))
}

// SumKey hashes an arbitrary identifier (feed URL, entry GUID) into the
// fixed-width key format used for table addressing.
func SumKey(id string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(id)))
}

// SumBytes returns the content key for a binary payload such as a serialized
// embedding vector.
func SumBytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
