// Package mathtex protects LaTeX spans from the Markdown renderer.
//
// Markdown engines mangle math: underscores become emphasis, backslashes
// disappear, asterisks bold. Extract swaps every LaTeX span for an inert
// placeholder token before rendering; Restore puts the original spans back
// into the rendered output so the typesetter sees them untouched.
package mathtex

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Span patterns in fixed priority order: block math first so that the inline
// pass never matches the inside of a display equation.
var spanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\$\$.+?\$\$`), // $$ ... $$
	regexp.MustCompile(`(?s)\\\[.+?\\\]`), // \[ ... \]
	regexp.MustCompile(`\$[^$\n]+\$`),     // $ ... $ (single line, no nested $)
	regexp.MustCompile(`(?s)\\\(.+?\\\)`), // \( ... \)
}

var plainToken = regexp.MustCompile(`@@MATH(\d+)@@`)

// Extraction is the result of one Extract call: the rewritten text plus the
// ordered segment table. The table is built fresh per message and discarded
// after Restore; it is never persisted.
type Extraction struct {
	// Replaced is the input with every math span substituted by a token.
	Replaced string
	// Segments holds the exact matched spans, delimiters included,
	// indexed by token number.
	Segments []string

	format  string
	tokenRe *regexp.Regexp
}

// Extract scans text for LaTeX-delimited spans and replaces each with a
// placeholder token. Patterns are applied sequentially, not interleaved;
// within each pass matches are numbered in order of appearance. A later
// pattern never rewrites a span that already carries a token from an earlier
// pass, so no double substitution occurs.
//
// Tokens normally look like "@@MATH0@@". If the input itself contains a
// token-shaped substring, a random salt is mixed into the token instead of
// silently corrupting that text, so the round trip holds unconditionally.
func Extract(text string) Extraction {
	x := Extraction{
		Replaced: text,
		format:   "@@MATH%d@@",
		tokenRe:  plainToken,
	}

	if strings.Contains(text, "@@MATH") {
		salt := newSalt(text)
		x.format = "@@MATH:" + salt + ":%d@@"
		x.tokenRe = regexp.MustCompile(`@@MATH:` + salt + `:(\d+)@@`)
	}

	for _, re := range spanPatterns {
		x.Replaced = re.ReplaceAllStringFunc(x.Replaced, func(m string) string {
			if x.tokenRe.MatchString(m) {
				// Overlaps a token from an earlier pass; leave it alone.
				return m
			}
			x.Segments = append(x.Segments, m)
			return fmt.Sprintf(x.format, len(x.Segments)-1)
		})
	}

	return x
}

// Restore replaces every placeholder token in rendered output with the
// stored span for its index. An out-of-range index (should not occur under
// correct use) substitutes the empty string rather than failing. When no
// spans were extracted, rendered is returned untouched: any token-shaped
// substring then predates the extraction and belongs to the text itself.
func (x Extraction) Restore(rendered string) string {
	if len(x.Segments) == 0 {
		return rendered
	}
	return x.tokenRe.ReplaceAllStringFunc(rendered, func(tok string) string {
		i, err := strconv.Atoi(x.tokenRe.FindStringSubmatch(tok)[1])
		if err != nil || i < 0 || i >= len(x.Segments) {
			return ""
		}
		return x.Segments[i]
	})
}

// ReplaceSpans rewrites every LaTeX span in text through fn, using the same
// patterns and priority order as Extract. Typesetters use it to convert
// restored spans in place.
func ReplaceSpans(text string, fn func(span string) string) string {
	x := Extract(text)
	return x.tokenRe.ReplaceAllStringFunc(x.Replaced, func(tok string) string {
		i, err := strconv.Atoi(x.tokenRe.FindStringSubmatch(tok)[1])
		if err != nil || i < 0 || i >= len(x.Segments) {
			return ""
		}
		return fn(x.Segments[i])
	})
}

func newSalt(text string) string {
	for {
		b := make([]byte, 4)
		rand.Read(b)
		salt := hex.EncodeToString(b)
		if !strings.Contains(text, salt) {
			return salt
		}
	}
}
