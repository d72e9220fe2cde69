package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const fieldSep = "|"

// Primary returns the content fingerprint of a claim: a SHA-256 over the
// lowercased trimmed title, lowercased publisher and published date.
func Primary(title, publisher string, published time.Time) string {
	return digest(
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(publisher)),
		published.UTC().Format(time.DateOnly),
	)
}

// Secondary returns the fallback fingerprint over title and summary. Case
// and runs of whitespace are folded so trivially reformatted copies collide.
func Secondary(title, summary string) string {
	return digest(normalize(title), normalize(summary))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, fieldSep)))
	return hex.EncodeToString(sum[:])
}
