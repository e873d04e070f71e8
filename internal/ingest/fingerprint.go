package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/telescope-hq/telescope/internal/domain"
)

// topFrames is how many leading stack frames participate in the identity.
// Line and column are ignored so recompiled bundles group together.
const topFrames = 5

// Volatile token classes replaced during message normalization, applied in
// order. URLs go first so their digits and hex runs are not shredded by the
// later passes; UUIDs before bare hex so a UUID is one token, not five.
var (
	reURL    = regexp.MustCompile(`https?://[^\s"']+`)
	reUUID   = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	reHex    = regexp.MustCompile(`\b(?:0x)?[0-9a-fA-F]{8,}\b`)
	reQuoted = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	reNumber = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// NormalizeMessage replaces volatile substrings (URLs, UUIDs, hex tokens,
// quoted literals, numbers) with fixed placeholders so logically identical
// errors collapse to the same text.
func NormalizeMessage(msg string) string {
	s := reURL.ReplaceAllString(msg, "<url>")
	s = reUUID.ReplaceAllString(s, "<uuid>")
	s = reHex.ReplaceAllString(s, "<hex>")
	s = reQuoted.ReplaceAllString(s, "<str>")
	s = reNumber.ReplaceAllString(s, "<num>")
	return strings.TrimSpace(s)
}

// Fingerprint computes the stable identity of an error event. The identity
// combines the error type, the normalized message and the first topFrames
// frame identities (function and file only). Events without a stack fall
// back to type + message + page URL. Pure and deterministic.
func Fingerprint(e *domain.RawEvent) string {
	normalized := NormalizeMessage(e.Message)

	var b strings.Builder
	b.WriteString(e.ErrorType)
	b.WriteByte('\n')
	b.WriteString(normalized)
	b.WriteByte('\n')

	if len(e.Frames) > 0 {
		n := len(e.Frames)
		if n > topFrames {
			n = topFrames
		}
		for _, f := range e.Frames[:n] {
			fmt.Fprintf(&b, "%s@%s\n", f.Function, f.File)
		}
	} else if stack := strings.TrimSpace(e.Stack); stack != "" {
		for i, line := range strings.Split(stack, "\n") {
			if i >= topFrames {
				break
			}
			b.WriteString(frameIdentity(line))
			b.WriteByte('\n')
		}
	} else {
		// No stack at all: the page URL is the best call-site proxy left.
		b.WriteString(e.URL)
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// reFrameLine matches textual stack lines like
// "    at render (https://cdn.example.com/bundle.js:1:1234)".
var reFrameLine = regexp.MustCompile(`^\s*at\s+(?:(\S+)\s+)?\(?([^()]+?)(?::\d+){1,2}\)?\s*$`)

// frameIdentity reduces one textual stack line to function@file, dropping
// line and column.
func frameIdentity(line string) string {
	m := reFrameLine.FindStringSubmatch(line)
	if m == nil {
		return strings.TrimSpace(line)
	}
	fn := m[1]
	if fn == "" {
		fn = "<anonymous>"
	}
	return fn + "@" + m[2]
}
