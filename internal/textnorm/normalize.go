// Package textnorm provides the deterministic text normalization used both
// when indexing podcast/episode metadata and when building search queries.
// Index-time and query-time tokens are comparable byte-for-byte because the
// exact same transform is applied on both sides.
package textnorm

import (
	"html"
	"net/url"
	"path"
	"strings"
	"sync"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes to NFD and strips combining diacritical marks,
// so "Café" and "Cafe" normalize to the same token.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// policyPool reuses bluemonday policies across goroutines; building a
// policy allocates noticeably and StripHTML runs per indexed record.
var policyPool = sync.Pool{
	New: func() any {
		return bluemonday.StrictPolicy()
	},
}

// Normalize applies the canonical text transform: NFD decomposition,
// combining-mark removal, replacement of every non-letter/digit/whitespace
// rune with a space, whitespace collapsing, trimming, and lowercasing.
// It is pure and deterministic; normalizing an already-normalized string
// returns the same string.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	folded, _, err := transform.String(foldMarks, raw)
	if err != nil {
		// Malformed input: fall back to the raw bytes, the rune filter
		// below still bounds the output alphabet.
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return strings.ToLower(collapsed)
}

// Tokens returns the normalized query terms for raw, in order.
func Tokens(raw string) []string {
	n := Normalize(raw)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// StripHTML removes all markup from raw, unescapes entities, and collapses
// whitespace. Used on titles and descriptions before they are stored; the
// index never holds raw markup.
func StripHTML(raw string) string {
	if raw == "" {
		return ""
	}
	policy := policyPool.Get().(*bluemonday.Policy)
	sanitized := policy.Sanitize(raw)
	policyPool.Put(policy)

	return strings.Join(strings.Fields(html.UnescapeString(sanitized)), " ")
}

// Truncate bounds s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// FileNameToken derives a searchable token from an audio URL: the path
// tail with the query string stripped, the extension dropped, and
// non-word characters collapsed to spaces. "https://cdn/ep_42-final.mp3?x=1"
// becomes "ep 42 final".
func FileNameToken(audioURL string) string {
	if audioURL == "" {
		return ""
	}

	tail := audioURL
	if u, err := url.Parse(audioURL); err == nil && u.Path != "" {
		tail = u.Path
	} else if i := strings.IndexByte(tail, '?'); i >= 0 {
		tail = tail[:i]
	}
	tail = path.Base(tail)
	if ext := path.Ext(tail); ext != "" {
		tail = strings.TrimSuffix(tail, ext)
	}

	return Normalize(tail)
}
